// Package config loads Cooper's configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file, then
// COOPER_* environment variables (a .env file in the working directory is
// loaded into the environment first). Nested keys map to variables by
// replacing dots with underscores, e.g. gateway.api_key -> COOPER_GATEWAY_API_KEY.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/pipeline"
	"github.com/mmynk/cooper/internal/poll"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "COOPER"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Receipts ReceiptsConfig `mapstructure:"receipts"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// PublicURL is the externally reachable base URL, used to build receipt links.
	PublicURL string `mapstructure:"public_url"`

	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig selects the ledger database.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `mapstructure:"dsn"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// GatewayConfig configures the payment gateway client and the intents it creates.
type GatewayConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Currency          string        `mapstructure:"currency"`
	IntentType        string        `mapstructure:"intent_type"`
	SettlementMethod  string        `mapstructure:"settlement_method"`
	DestinationPrefix string        `mapstructure:"settlement_destination_prefix"`
}

// PipelineConfig tunes the payment pipeline.
type PipelineConfig struct {
	StatusAttempts    int           `mapstructure:"status_attempts"`
	StatusDelay       time.Duration `mapstructure:"status_delay"`
	EscrowAttempts    int           `mapstructure:"escrow_attempts"`
	EscrowDelay       time.Duration `mapstructure:"escrow_delay"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	RefundConcurrency int           `mapstructure:"refund_concurrency"`
	SettlementLockTTL time.Duration `mapstructure:"settlement_lock_ttl"`

	// ReconcileInterval is how often unverified references are retried. Zero disables it.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// ReceiptsConfig enables the Cloudinary receipt mirror when CloudName is set.
type ReceiptsConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`

	// Format is "text" (colored) or "json".
	Format string `mapstructure:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			PublicURL:   "http://localhost:8080",
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./data/cooper.db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Gateway: GatewayConfig{
			BaseURL:           gateway.DefaultBaseURL,
			Timeout:           15 * time.Second,
			Currency:          gateway.DefaultCurrency,
			IntentType:        gateway.TypeDeliveryVsPayment,
			SettlementMethod:  gateway.SettlementOffRampMock,
			DestinationPrefix: gateway.DestinationPrefix,
		},
		Pipeline: PipelineConfig{
			StatusAttempts:    10,
			StatusDelay:       2 * time.Second,
			EscrowAttempts:    5,
			EscrowDelay:       1500 * time.Millisecond,
			Workers:           4,
			QueueSize:         64,
			RefundConcurrency: 4,
			SettlementLockTTL: 10 * time.Minute,
			ReconcileInterval: time.Minute,
		},
		Receipts: ReceiptsConfig{
			Folder: "cooper/receipts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration. path may be empty, in which case only the
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)

	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.api_key", d.Gateway.APIKey)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("gateway.currency", d.Gateway.Currency)
	v.SetDefault("gateway.intent_type", d.Gateway.IntentType)
	v.SetDefault("gateway.settlement_method", d.Gateway.SettlementMethod)
	v.SetDefault("gateway.settlement_destination_prefix", d.Gateway.DestinationPrefix)

	v.SetDefault("pipeline.status_attempts", d.Pipeline.StatusAttempts)
	v.SetDefault("pipeline.status_delay", d.Pipeline.StatusDelay)
	v.SetDefault("pipeline.escrow_attempts", d.Pipeline.EscrowAttempts)
	v.SetDefault("pipeline.escrow_delay", d.Pipeline.EscrowDelay)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.queue_size", d.Pipeline.QueueSize)
	v.SetDefault("pipeline.refund_concurrency", d.Pipeline.RefundConcurrency)
	v.SetDefault("pipeline.settlement_lock_ttl", d.Pipeline.SettlementLockTTL)
	v.SetDefault("pipeline.reconcile_interval", d.Pipeline.ReconcileInterval)

	v.SetDefault("receipts.cloud_name", d.Receipts.CloudName)
	v.SetDefault("receipts.api_key", d.Receipts.APIKey)
	v.SetDefault("receipts.api_secret", d.Receipts.APISecret)
	v.SetDefault("receipts.folder", d.Receipts.Folder)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Pipeline.StatusAttempts < 1 || c.Pipeline.EscrowAttempts < 1 {
		return errors.New("pipeline attempts must be at least 1")
	}
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// OrchestratorConfig converts the pipeline and gateway settings for the orchestrator.
func (c *Config) OrchestratorConfig() pipeline.Config {
	return pipeline.Config{
		StatusPoll:        poll.Policy{MaxAttempts: c.Pipeline.StatusAttempts, Delay: c.Pipeline.StatusDelay},
		EscrowPoll:        poll.Policy{MaxAttempts: c.Pipeline.EscrowAttempts, Delay: c.Pipeline.EscrowDelay},
		RefundConcurrency: c.Pipeline.RefundConcurrency,
		SettlementLockTTL: c.Pipeline.SettlementLockTTL,
		Currency:          c.Gateway.Currency,
		IntentType:        c.Gateway.IntentType,
		SettlementMethod:  c.Gateway.SettlementMethod,
		DestinationPrefix: c.Gateway.DestinationPrefix,
	}
}
