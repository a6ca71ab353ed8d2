// Package config loads service configuration from defaults, a YAML file and
// RADAR_-prefixed environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "RADAR_"
	defaultConfigPath = "config.yaml"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Database      DatabaseConfig      `koanf:"database"`
	Refresh       RefreshConfig       `koanf:"refresh"`
	Sources       []SourceConfig      `koanf:"sources" validate:"dive"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required,numeric"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,numeric,nefield=Port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig lists origins allowed to call the API from browsers.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DatabaseConfig configures the optional PostgreSQL persistence.
type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	URL             string        `koanf:"url" validate:"required_if=Enabled true"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"min=1s"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RefreshConfig configures snapshot refresh cycles.
type RefreshConfig struct {
	TTL            time.Duration `koanf:"ttl" validate:"min=1s"`
	FetchTimeout   time.Duration `koanf:"fetch_timeout" validate:"min=100ms"`
	UserAgent      string        `koanf:"user_agent"`
	NotifyTimeout  time.Duration `koanf:"notify_timeout" validate:"min=1s"`
	PersistTimeout time.Duration `koanf:"persist_timeout" validate:"min=1s"`
}

// SourceConfig overrides one entry of the built-in feed list.
type SourceConfig struct {
	Provider string        `koanf:"provider" validate:"required"`
	Name     string        `koanf:"name" validate:"required"`
	URL      string        `koanf:"url" validate:"required,url"`
	Timeout  time.Duration `koanf:"timeout"`
}

// NotificationsConfig configures change detection and delivery.
type NotificationsConfig struct {
	LedgerCapacity       int            `koanf:"ledger_capacity" validate:"gte=1"`
	BaselineFirstRefresh bool           `koanf:"baseline_first_refresh"`
	MaxItems             int            `koanf:"max_items" validate:"gte=1"`
	BaseURL              string         `koanf:"base_url" validate:"omitempty,url"`
	Chat                 ChatConfig     `koanf:"chat"`
	Telegram             TelegramConfig `koanf:"telegram"`
	Email                EmailConfig    `koanf:"email"`
}

// ChatConfig lists chat targets and webhook presentation.
type ChatConfig struct {
	Targets  []ChatTargetConfig `koanf:"targets" validate:"dive"`
	Username string             `koanf:"username"`
	IconURL  string             `koanf:"icon_url" validate:"omitempty,url"`
	Timeout  time.Duration      `koanf:"timeout"`
}

// ChatTargetConfig is a webhook URL (mattermost, slack) or chat id (telegram).
type ChatTargetConfig struct {
	Type   string `koanf:"type" validate:"oneof=mattermost slack telegram"`
	Target string `koanf:"target" validate:"required"`
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	BotToken  string  `koanf:"bot_token"`
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	APIURL    string  `koanf:"api_url"`
}

// EmailConfig configures SMTP delivery of digests.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host" validate:"required_if=Enabled true"`
	SMTPPort     int    `koanf:"smtp_port" validate:"gte=0,lte=65535"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address" validate:"required_if=Enabled true"`
	BatchSize    int    `koanf:"batch_size" validate:"gte=1"`
	DisableTLS   bool   `koanf:"disable_tls"`
}

// TelegramEnabled reports whether any chat target needs the Bot API.
func (c NotificationsConfig) TelegramEnabled() bool {
	for _, t := range c.Chat.Targets {
		if t.Type == "telegram" {
			return true
		}
	}
	return false
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnectAttempts: 5,
			ConnectTimeout:  30 * time.Second,
			AutoMigrate:     true,
		},
		Refresh: RefreshConfig{
			TTL:            5 * time.Minute,
			FetchTimeout:   10 * time.Second,
			UserAgent:      "incident-radar/1.0 (+https://github.com/bissquit/incident-radar)",
			NotifyTimeout:  30 * time.Second,
			PersistTimeout: 10 * time.Second,
		},
		Notifications: NotificationsConfig{
			LedgerCapacity:       500,
			BaselineFirstRefresh: true,
			MaxItems:             5,
			Chat: ChatConfig{
				Username: "Incident Radar",
				Timeout:  10 * time.Second,
			},
			Email: EmailConfig{
				SMTPPort:  587,
				BatchSize: 50,
			},
		},
	}
}

// Load reads configuration from the file at CONFIG_PATH (default config.yaml,
// optional) and the environment, then validates it.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat config file %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// envKeyValue maps RADAR_NOTIFICATIONS__EMAIL__SMTP_HOST to
// notifications.email.smtp_host. List values are comma separated.
func envKeyValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "cors.allowed_origins" {
		parts := strings.Split(value, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		return key, origins
	}
	return key, value
}
