package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultTransport     = "whatsapp"
	DefaultHTTPAddr      = ":8080"
	DefaultSessionPath   = "data/sessions"
	DefaultLogPath       = "data/logs"
	DefaultUploadPath    = "public/uploads"
	DefaultPublicHost    = "http://localhost:8080"
	DefaultCommandPrefix = "!"
	DefaultQRMaxAttempts = 3
	DefaultQRDelay       = "3s"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "wagate"
	DefaultPGSSLMode     = "disable"
	DefaultPruneSchedule = "0 3 * * *"
	DefaultPruneMaxDays  = 7
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Session  SessionConfig  `toml:"session"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Postgres PostgresConfig `toml:"postgres"`
	Archive  ArchiveConfig  `toml:"archive"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr       string `toml:"addr"`
	APIKey     string `toml:"api_key"`
	PublicHost string `toml:"public_host"`
}

// SessionConfig controls on-disk session artifacts and pairing behavior.
type SessionConfig struct {
	Transport     string `toml:"transport"`
	SessionPath   string `toml:"session_path"`
	LogPath       string `toml:"log_path"`
	CommandPrefix string `toml:"command_prefix"`
	QRMaxAttempts int    `toml:"qr_max_attempts"`
	QRDelay       string `toml:"qr_delay"`
}

// WebhookConfig holds the global fallback webhook endpoint. Per-session
// callback overrides live in the callback store.
type WebhookConfig struct {
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UploadPath     string `toml:"upload_path"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// ArchiveConfig controls retention of the outbound message archive.
type ArchiveConfig struct {
	PruneSchedule string `toml:"prune_schedule"`
	MaxAgeDays    int    `toml:"max_age_days"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:       DefaultHTTPAddr,
			PublicHost: DefaultPublicHost,
		},
		Session: SessionConfig{
			Transport:     DefaultTransport,
			SessionPath:   DefaultSessionPath,
			LogPath:       DefaultLogPath,
			CommandPrefix: DefaultCommandPrefix,
			QRMaxAttempts: DefaultQRMaxAttempts,
			QRDelay:       DefaultQRDelay,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: 15,
			UploadPath:     DefaultUploadPath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Archive: ArchiveConfig{
			PruneSchedule: DefaultPruneSchedule,
			MaxAgeDays:    DefaultPruneMaxDays,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
