package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dealdesk/internal/app"
	"dealdesk/internal/config"
	"dealdesk/internal/logger"
	"dealdesk/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(run(cfg))
}

func run(cfg config.Config) error {
	log := logger.New(logger.Options{Service: "dealdesk-watch", Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return watcher.NewService(a).Run(ctx)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
