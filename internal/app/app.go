// Package app assembles the server from configuration so every binary wires the
// same dependencies.
package app

import (
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VoiceArchive/internal/config"
	"github.com/dharsanguruparan/VoiceArchive/internal/schedule"
	"github.com/dharsanguruparan/VoiceArchive/internal/server"
	"github.com/dharsanguruparan/VoiceArchive/internal/session"
	"github.com/dharsanguruparan/VoiceArchive/internal/signing"
	"github.com/dharsanguruparan/VoiceArchive/internal/storage"
)

// Build constructs a ready-to-serve Server backed by in-memory sessions.
func Build(cfg *config.Config, log *zap.Logger) (*server.Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store := storage.NewMemoryStore()
	sessions := session.NewRegistry(store, cfg.SessionTTL, session.Options{
		UploadDelay:   cfg.UploadDelay,
		SuccessWindow: cfg.SuccessWindow,
		Scheduler:     schedule.Real{},
		Logger:        log.Named("session"),
	})
	signer := signing.NewSigner(cfg.SigningSecret)
	return server.New(cfg, sessions, store, signer, log)
}
