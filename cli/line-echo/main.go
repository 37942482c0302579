//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/reactor"

	"github.com/spf13/cobra"
)

var logger = log.NewLogger("line-echo")

func main() {
	var (
		logLevel  string
		logCaller bool
		backend   string
	)
	command := &cobra.Command{
		Use:   "line-echo",
		Short: "line echo server and client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logCaller {
				log.EnableCaller()
			}
			return log.SetLevel(logLevel)
		},
		SilenceUsage: true,
	}
	command.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set the log level.")
	command.PersistentFlags().BoolVar(&logCaller, "log-caller", false, "Annotate log entries with the calling file and line.")
	command.PersistentFlags().StringVar(&backend, "backend", "default", "Set the reactor backend: poll or epoll.")
	command.AddCommand(newServeCommand(&backend), newSendCommand(&backend))
	if err := command.Execute(); err != nil {
		logger.Fatal(err)
	}
}

func newReactor(backendName string, options ...reactor.Option) (*reactor.Reactor, error) {
	backend, err := reactor.ParseBackend(backendName)
	if err != nil {
		return nil, err
	}
	return reactor.New(append([]reactor.Option{reactor.WithBackend(backend)}, options...)...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
