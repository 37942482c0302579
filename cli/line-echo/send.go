//go:build unix

package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/transport/adapter"
	"github.com/sagernet/sing-reactor/transport/connection"

	"github.com/jpillora/backoff"
	"github.com/spf13/cobra"
)

type clientOptions struct {
	DNS      string
	Timeout  time.Duration
	Shuffle  bool
	Retries  int
	RetryMin time.Duration
}

func newSendCommand(backend *string) *cobra.Command {
	var options clientOptions
	command := &cobra.Command{
		Use:   "send host:port line...",
		Short: "Send lines and print the echoed replies.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(*backend, args[0], args[1:], options)
		},
	}
	command.Flags().StringVar(&options.DNS, "dns", "", "Resolve through this DNS server instead of the system resolver.")
	command.Flags().DurationVar(&options.Timeout, "timeout", 10*time.Second, "Give up after this long without a reply.")
	command.Flags().BoolVar(&options.Shuffle, "shuffle", false, "Try resolved addresses in random order.")
	command.Flags().IntVar(&options.Retries, "retries", 0, "Retry failed connection attempts this many times.")
	command.Flags().DurationVar(&options.RetryMin, "retry-delay", 200*time.Millisecond, "Set the first retry delay; later ones back off exponentially.")
	return command
}

func send(backend string, address string, lines []string, options clientOptions) error {
	r, err := newReactor(backend)
	if err != nil {
		return err
	}
	defer r.Close()
	var result error
	err = startClient(r, address, lines, options, os.Stdout, func(err error) {
		result = err
	})
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	err = r.Run(ctx)
	if err != nil {
		return err
	}
	return result
}

// startClient connects to address and sends lines once connected. done
// receives the outcome after the connection is gone.
func startClient(r *reactor.Reactor, address string, lines []string, options clientOptions, output io.Writer, done func(err error)) error {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return E.Cause(err, "parse port")
	}
	connectionOptions := connection.Options{Shuffle: options.Shuffle}
	if options.DNS != "" {
		connectionOptions.Resolver = connection.NewCachedResolver(&connection.DNSResolver{Server: options.DNS}, 16, time.Minute)
	}
	stream := connection.NewStream(r, connectionOptions)
	timeout := adapter.NewTimeout(stream, r.Timers())
	line := adapter.NewLine(timeout, []byte("\n"), 0)
	retry := &backoff.Backoff{
		Min:    options.RetryMin,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	connect := func() error {
		return stream.Connect(host, uint16(port))
	}
	var (
		connected bool
		attempts  int
		received  int
	)
	line.SetConnectHandler(func() {
		connected = true
		if len(lines) == 0 {
			line.Disconnect("nothing to send", connection.DisconnectRequested)
			return
		}
		for _, text := range lines {
			err := line.SendLine(connection.PriorityDefault, []byte(text))
			if err != nil {
				logger.Error("send: ", err)
			}
		}
	})
	line.SetDataHandler(func(data []byte) {
		fmt.Fprintln(output, string(data))
		received++
		if received == len(lines) {
			line.Disconnect("done", connection.DisconnectRequested)
		}
	})
	line.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
		switch {
		case !connected && kind == connection.DisconnectError && attempts < options.Retries:
			attempts++
			delay := retry.Duration()
			logger.Warn(reason, ", retry ", attempts, "/", options.Retries, " in ", delay)
			r.Timers().AfterFunc(delay, func() {
				err := connect()
				if err != nil {
					done(err)
				}
			})
		case kind == connection.DisconnectError:
			done(E.New(reason))
		case received < len(lines):
			done(E.New("disconnected after ", received, " of ", len(lines), " replies: ", reason))
		default:
			done(nil)
		}
	})
	timeout.SetIdleTimeout(options.Timeout)
	return connect()
}
