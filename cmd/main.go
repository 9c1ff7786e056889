package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"nestnote/local-app/internal/cli"
	"nestnote/local-app/internal/config"
	"nestnote/local-app/internal/log"
	"nestnote/local-app/internal/provider"
	"nestnote/local-app/internal/relay"
	"nestnote/local-app/internal/session"
	"nestnote/local-app/internal/storage"
	"nestnote/local-app/internal/ui"
)

func main() {
	fmt.Println("Welcome to nestnote! Use 'help' for the list of commands.")

	cfg, err := config.ConfigLoad(config.DefaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.LogFolder, cfg.CommandLog, cfg.ErrorLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open logs: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	store, err := storage.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.EnsureUser(cfg.DefaultUser, ""); err != nil {
		logger.WithError(err).Warn("failed to create default user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	channels := func(name string) (relay.Channel, error) {
		settings := relay.DefaultWebsocketSettings()
		if cfg.ReconnectTimeout > 0 {
			settings.ReconnectTimeout = time.Duration(cfg.ReconnectTimeout)
		}
		return relay.NewWebsocketChannel(ctx, cfg.RelayURL, name, settings, logger)
	}
	metrics := provider.NewMetrics(nil)
	manager := session.NewManager(func() *session.Session {
		return session.New(cfg, logger, store, session.WithChannels(channels), session.WithMetrics(metrics))
	}, logger)
	defer manager.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		logger.WithError(err).Error("failed to initialize readline")
		return
	}
	defer rl.Close()

	c := cli.NewCLI(manager, ui.NewUI(rl.Stdout(), true), rl, logger)

	for _, script := range os.Args[1:] {
		if err := c.ExecuteScript(script); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(os.Stderr, "Error executing script %s: %v\n", script, err)
		}
	}

	for ctx.Err() == nil {
		err := c.Run()
		switch {
		case err == nil:
		case errors.Is(err, readline.ErrInterrupt):
			fmt.Println("Use 'quit' to exit the program.")
		case errors.Is(err, io.EOF):
			return
		default:
			fmt.Println("Error:", err)
		}
	}
}
