//go:build unix

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/task"
	"github.com/sagernet/sing-reactor/transport/adapter"
	"github.com/sagernet/sing-reactor/transport/connection"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const echoPrefix = "> "

type serverOptions struct {
	Listen      string
	IdleTimeout time.Duration
	MaxLine     int
}

func newServeCommand(backend *string) *cobra.Command {
	var (
		options serverOptions
		metrics string
	)
	command := &cobra.Command{
		Use:   "serve",
		Short: "Echo every received line back, prefixed with \"" + echoPrefix + "\".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*backend, metrics, options)
		},
	}
	command.Flags().StringVar(&options.Listen, "listen", "127.0.0.1:7000", "Set the listen address.")
	command.Flags().DurationVar(&options.IdleTimeout, "idle-timeout", 30*time.Second, "Disconnect peers idle for this long, 0 to disable.")
	command.Flags().IntVar(&options.MaxLine, "max-line", 4096, "Disconnect peers sending longer lines, 0 for unlimited.")
	command.Flags().StringVar(&metrics, "metrics", "", "Serve prometheus metrics on this address.")
	return command
}

func serve(backend string, metricsAddress string, options serverOptions) error {
	var (
		reactorOptions []reactor.Option
		tasks          []func(ctx context.Context) error
	)
	if metricsAddress != "" {
		registry := prometheus.NewRegistry()
		reactorOptions = append(reactorOptions, reactor.WithMetrics(reactor.NewMetrics(registry)))
		tasks = append(tasks, func(ctx context.Context) error {
			return serveMetrics(ctx, metricsAddress, registry)
		})
	}
	r, err := newReactor(backend, reactorOptions...)
	if err != nil {
		return err
	}
	defer r.Close()
	listener, err := startEchoServer(r, options)
	if err != nil {
		return err
	}
	defer listener.Close()
	ctx, cancel := signalContext()
	defer cancel()
	tasks = append(tasks, r.Run)
	err = task.Run(ctx, tasks...)
	if err == nil {
		logger.Info("shutting down")
	}
	return err
}

func serveMetrics(ctx context.Context, address string, gatherer prometheus.Gatherer) error {
	server := &http.Server{
		Addr:    address,
		Handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
	stop := context.AfterFunc(ctx, func() {
		server.Close()
	})
	defer stop()
	logger.Info("metrics on http://", address, "/metrics")
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return E.Cause(err, "metrics server")
}

func startEchoServer(r *reactor.Reactor, options serverOptions) (*connection.Listener, error) {
	listener, err := connection.Listen(r, options.Listen, connection.Options{
		KeepAlive: connection.KeepAliveOptions{
			Enabled:  true,
			Idle:     time.Minute,
			Interval: 15 * time.Second,
		},
	})
	if err != nil {
		return nil, err
	}
	listener.SetAcceptHandler(func(stream *connection.Stream) {
		serveStream(r, stream, options)
	})
	return listener, nil
}

func serveStream(r *reactor.Reactor, stream *connection.Stream, options serverOptions) {
	remote, _ := stream.RemoteAddress()
	sessionLogger := logger.WithField("remote", remote)
	timeout := adapter.NewTimeout(stream, r.Timers())
	line := adapter.NewLine(timeout, []byte("\n"), options.MaxLine)
	line.SetDataHandler(func(data []byte) {
		response := make([]byte, 0, len(echoPrefix)+len(data))
		response = append(response, echoPrefix...)
		response = append(response, data...)
		err := line.SendLine(connection.PriorityDefault, response)
		if err != nil {
			sessionLogger.Debug("echo: ", err)
		}
	})
	line.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
		sessionLogger.Info("disconnected (", kind, "): ", reason)
	})
	timeout.SetIdleTimeout(options.IdleTimeout)
	sessionLogger.Info("accepted")
}
