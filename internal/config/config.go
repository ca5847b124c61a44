// Package config centralizes how VoiceArchive reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	Address          string        `validate:"required"`
	Environment      string        `validate:"oneof=development production test"`
	LogFile          string
	UploadDelay      time.Duration `validate:"gt=0"`
	SuccessWindow    time.Duration `validate:"gt=0"`
	MaxUploadBytes   int64         `validate:"gt=0"`
	SupportedFormats []string      `validate:"dive,required"`
	SessionTTL       time.Duration `validate:"gt=0"`
	SigningSecret    []byte        `validate:"min=16"`
}

const (
	defaultAddress          = ":8080"
	defaultEnvironment      = "development"
	defaultLogFile          = "voicearchive.log"
	defaultUploadDelay      = 1500 * time.Millisecond
	defaultSuccessWindow    = 3 * time.Second
	defaultMaxUploadBytes   = 64 << 20 // 64 MiB
	defaultSupportedFormats = "MP3,WAV"
	defaultSessionTTL       = 24 * time.Hour
)

var validate = validator.New()

// Load reads an optional .env file, then configuration from environment
// variables falling back to defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{
		Address:          readEnv("VOICEARCHIVE_ADDRESS", defaultAddress),
		Environment:      readEnv("VOICEARCHIVE_ENV", defaultEnvironment),
		LogFile:          readEnv("VOICEARCHIVE_LOG_FILE", defaultLogFile),
		UploadDelay:      parseDuration("VOICEARCHIVE_UPLOAD_DELAY", defaultUploadDelay),
		SuccessWindow:    parseDuration("VOICEARCHIVE_SUCCESS_WINDOW", defaultSuccessWindow),
		MaxUploadBytes:   parseInt64("VOICEARCHIVE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		SupportedFormats: parseList("VOICEARCHIVE_SUPPORTED_FORMATS", defaultSupportedFormats),
		SessionTTL:       parseDuration("VOICEARCHIVE_SESSION_TTL", defaultSessionTTL),
		SigningSecret:    parseSecret("VOICEARCHIVE_SIGNING_SECRET"),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Callers that build a Config by hand (tests,
// CLI overrides) should call it before use.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsProduction reports whether logs should be JSON only.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
