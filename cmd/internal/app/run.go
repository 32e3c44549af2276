package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run is the agent entrypoint: it loads config, serves until SIGINT/SIGTERM and cleans up.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx, nil)
}
