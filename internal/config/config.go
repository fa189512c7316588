// Package config defines the EasyBet service configuration and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Run modes.
const (
	// ModeStandalone keeps everything in memory. State is lost on exit.
	ModeStandalone = "standalone"
	// ModeServer journals to Postgres and shares state through Redis.
	ModeServer = "server"
	// ModeFull adds scheduled snapshot archival to S3.
	ModeFull = "full"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EASYBET_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Token    TokenConfig    `toml:"token"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Events   EventsConfig   `toml:"events"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the ledger's genesis identities. Changing either after
// the journal has entries makes replay meaningless.
type MarketConfig struct {
	// Admin owns the token and the marketplace.
	Admin string `toml:"admin"`
	// Address is the marketplace spender identity purchases draw
	// allowance against.
	Address string `toml:"address"`
}

// TokenConfig describes the betting token.
type TokenConfig struct {
	Name   string `toml:"name"`
	Symbol string `toml:"symbol"`
	// FaucetAmount is in whole tokens, e.g. "1000" or "0.5".
	FaucetAmount string `toml:"faucet_amount"`
}

// AuthConfig selects how API callers prove their identity.
type AuthConfig struct {
	// Mode is "signature" (EIP-191 signed requests) or "header" (trust
	// X-EasyBet-Address from a wallet gateway).
	Mode    string   `toml:"mode"`
	MaxSkew duration `toml:"max_skew"`
	// AdminAPIKey, when set, is additionally required on /api/admin routes.
	AdminAPIKey string `toml:"admin_api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	// WriterLockTTL bounds how long a crashed writer blocks a successor.
	WriterLockTTL duration `toml:"writer_lock_ttl"`
	ProjectionTTL duration `toml:"projection_ttl"`
	StreamMaxLen  int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// Prefix namespaces every object key, e.g. "prod/easybet".
	Prefix string `toml:"prefix"`
}

// ArchiveConfig schedules snapshot archival in full mode.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a 5-field cron expression or a descriptor like "@hourly".
	Schedule string   `toml:"schedule"`
	Timeout  duration `toml:"timeout"`
}

// EventsConfig tunes the outbox and the sink dispatcher.
type EventsConfig struct {
	// OutboxLimit drops the oldest undelivered events beyond this many.
	// Zero means unbounded.
	OutboxLimit      int      `toml:"outbox_limit"`
	BatchSize        int      `toml:"batch_size"`
	FlushInterval    duration `toml:"flush_interval"`
	MaxRetryElapsed  duration `toml:"max_retry_elapsed"`
	MaxRetryInterval duration `toml:"max_retry_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
	IdempotencyTTL  duration `toml:"idempotency_ttl"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Token: TokenConfig{
			Name:         "EasyBet Token",
			Symbol:       "EBT",
			FaucetAmount: "1000",
		},
		Auth: AuthConfig{
			Mode:    "signature",
			MaxSkew: duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "easybet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			WriterLockTTL: duration{15 * time.Second},
			ProjectionTTL: duration{24 * time.Hour},
			StreamMaxLen:  10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "easybet-snapshots",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:  true,
			Schedule: "@every 1h",
			Timeout:  duration{5 * time.Minute},
		},
		Events: EventsConfig{
			BatchSize:        256,
			FlushInterval:    duration{time.Second},
			MaxRetryElapsed:  duration{30 * time.Second},
			MaxRetryInterval: duration{5 * time.Second},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
			IdempotencyTTL:  duration{24 * time.Hour},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Mode:     ModeStandalone,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeStandalone: true,
	ModeServer:     true,
	ModeFull:       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesPostgres reports whether the mode journals to Postgres.
func (c *Config) UsesPostgres() bool { return c.Mode == ModeServer || c.Mode == ModeFull }

// UsesRedis reports whether the mode shares state through Redis.
func (c *Config) UsesRedis() bool { return c.Mode == ModeServer || c.Mode == ModeFull }

// UsesS3 reports whether the mode archives snapshots.
func (c *Config) UsesS3() bool { return c.Mode == ModeFull && c.Archive.Enabled }

// AdminAddress returns the parsed market.admin.
func (c *Config) AdminAddress() common.Address { return common.HexToAddress(c.Market.Admin) }

// MarketAddress returns the parsed market.address.
func (c *Config) MarketAddress() common.Address { return common.HexToAddress(c.Market.Address) }

// FaucetAmount returns token.faucet_amount in base units.
func (c *Config) FaucetAmount() (domain.Amount, error) {
	return domain.ParseTokens(c.Token.FaucetAmount)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market identities.
	admin, adminOK := validAddress(c.Market.Admin)
	market, marketOK := validAddress(c.Market.Address)
	if !adminOK {
		errs = append(errs, fmt.Sprintf("market: admin must be a non-zero hex address, got %q", c.Market.Admin))
	}
	if !marketOK {
		errs = append(errs, fmt.Sprintf("market: address must be a non-zero hex address, got %q", c.Market.Address))
	}
	if adminOK && marketOK && admin == market {
		errs = append(errs, "market: admin and address must differ")
	}

	// Token.
	if _, err := c.FaucetAmount(); err != nil {
		errs = append(errs, fmt.Sprintf("token: faucet_amount %q: %v", c.Token.FaucetAmount, err))
	}

	// Auth.
	switch c.Auth.Mode {
	case "signature", "header":
	default:
		errs = append(errs, fmt.Sprintf("auth: mode must be signature or header, got %q", c.Auth.Mode))
	}
	if c.Auth.MaxSkew.Duration <= 0 {
		errs = append(errs, "auth: max_skew must be > 0")
	}

	if c.UsesPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.UsesRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.WriterLockTTL.Duration < 3*time.Second {
			errs = append(errs, "redis: writer_lock_ttl must be at least 3s")
		}
	}

	if c.UsesS3() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if strings.TrimSpace(c.Archive.Schedule) == "" {
			errs = append(errs, "archive: schedule must not be empty")
		}
	}

	if c.Events.OutboxLimit < 0 {
		errs = append(errs, "events: outbox_limit must be >= 0")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
		errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	a := common.HexToAddress(s)
	return a, a != (common.Address{})
}
