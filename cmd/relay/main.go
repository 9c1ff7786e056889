package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"nestnote/local-app/internal/log"
	"nestnote/local-app/internal/relay"
)

const RelayVersion = "0.1.0"

const DefaultAddr = "127.0.0.1:8765"

func main() {
	usage := fmt.Sprintf(
		`nestnote relay.

Broadcasts binary frames between the clients subscribed to the same channel.

Usage:
    relay [--addr=<addr>] [--send_buffer=<n>] [--debug]
    relay -h | --help
    relay --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --addr=<addr>        Listen address [default: %s].
    --send_buffer=<n>    Frames queued per member before frames are dropped [default: 64].
    --debug              Log at debug level.`,
		DefaultAddr,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RelayVersion)
	if err != nil {
		panic(err)
	}

	logger := log.NewWriterLogger(os.Stdout, os.Stderr)
	if debug, _ := opts.Bool("--debug"); debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	settings := relay.DefaultServerSettings()
	if n, err := opts.Int("--send_buffer"); err == nil && n > 0 {
		settings.SendBufferSize = n
	}
	addr, _ := opts.String("--addr")

	if err := serve(addr, settings, logger); err != nil {
		logger.WithError(err).Error("relay stopped")
		os.Exit(1)
	}
}

func serve(addr string, settings *relay.ServerSettings, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	server := relay.NewServer(settings, logger, registry)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", addr).Info("relay listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
