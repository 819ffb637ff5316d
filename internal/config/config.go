// Package config loads the relay settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the relay. Defaults match the production
// deployment.
type Config struct {
	Port           string   `env:"PORT" envDefault:"3000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"localhost:3000"`
	AdminSecret    string   `env:"ADMIN_SECRET"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	MaxMessages      int `env:"MAX_MESSAGES" envDefault:"50"`
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH" envDefault:"500"`

	MaxUploadBytes   int64    `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	MaxImageWidth    uint     `env:"MAX_IMAGE_WIDTH" envDefault:"1200"`
	MaxImagePixels   int      `env:"MAX_IMAGE_PIXELS" envDefault:"40000000"`
	AllowedMIMETypes []string `env:"ALLOWED_MIME_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/gif,image/webp"`
	UploadDir        string   `env:"UPLOAD_DIR" envDefault:"uploads"`

	SnapshotPath       string `env:"SNAPSHOT_PATH" envDefault:"data/messages.json"`
	LegacySnapshotPath string `env:"LEGACY_SNAPSHOT_PATH" envDefault:"messages.json"`

	// Messages per minute a single connection may send.
	MessageRate  int `env:"MESSAGE_RATE" envDefault:"30"`
	MessageBurst int `env:"MESSAGE_BURST" envDefault:"10"`
	// Uploads per minute a single IP may send.
	UploadRate  int `env:"UPLOAD_RATE" envDefault:"10"`
	UploadBurst int `env:"UPLOAD_BURST" envDefault:"5"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("internal/config: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.MaxMessages < 1 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGES must be positive, got %d", c.MaxMessages))
	}
	if c.MaxMessageLength < 1 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.MaxImageWidth < 1 {
		errs = append(errs, errors.New("MAX_IMAGE_WIDTH must be positive"))
	}
	if c.MaxImagePixels < 1 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels))
	}
	if len(c.AllowedMIMETypes) == 0 {
		errs = append(errs, errors.New("ALLOWED_MIME_TYPES must not be empty"))
	}
	if strings.TrimSpace(c.SnapshotPath) == "" {
		errs = append(errs, errors.New("SNAPSHOT_PATH must not be empty"))
	}
	if c.MessageRate < 1 || c.MessageBurst < 1 {
		errs = append(errs, errors.New("MESSAGE_RATE and MESSAGE_BURST must be positive"))
	}
	if c.UploadRate < 1 || c.UploadBurst < 1 {
		errs = append(errs, errors.New("UPLOAD_RATE and UPLOAD_BURST must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("internal/config: %w", err)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, falling back to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
