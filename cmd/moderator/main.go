// Command moderator runs the content-moderation engine, either serving the
// host's event webhooks (mode "serve") or as a background worker (mode
// "worker"), selected by MODERATOR_MODE.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cdmackie/automod-core/internal/app"
	"github.com/cdmackie/automod-core/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("moderator exited with error", "error", err)
		os.Exit(1)
	}
}
