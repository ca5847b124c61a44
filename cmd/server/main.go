// Package main is the entry point for the VoiceArchive server binary.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/VoiceArchive/internal/app"
	"github.com/dharsanguruparan/VoiceArchive/internal/config"
	"github.com/dharsanguruparan/VoiceArchive/internal/logger"
)

func main() {
	// Step 1: load configuration from the environment (and .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog := logger.New(cfg.LogFile, cfg.IsProduction())
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	// Step 2: construct dependencies.
	srv, err := app.Build(cfg, zlog)
	if err != nil {
		zlog.Fatal("init server", zap.Error(err))
	}

	// Step 3: cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 4: block until the HTTP server exits.
	if err := srv.Serve(ctx); err != nil {
		zlog.Error("server stopped", zap.Error(err))
		_ = zlog.Sync()
		os.Exit(1)
	}
}
