package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "EASYBET_"

// Load merges the TOML file at path over Defaults, then applies EASYBET_*
// environment overrides (a .env file in the working directory is read first
// if present). An empty path skips the file. The result is not validated;
// call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, len(undec))
			for i, k := range undec {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envSetter binds one variable to one field. A malformed value is an error
// rather than silently ignored, so a typo cannot fall back to a default.
type envSetter struct {
	errs []string
}

func (s *envSetter) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *envSetter) fail(key, v string, err error) {
	s.errs = append(s.errs, fmt.Sprintf("%s%s=%q: %v", EnvPrefix, key, v, err))
}

func (s *envSetter) str(dst *string, key string) {
	if v, ok := s.lookup(key); ok {
		*dst = v
	}
}

func (s *envSetter) integer(dst *int, key string) {
	if v, ok := s.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (s *envSetter) integer64(dst *int64, key string) {
	if v, ok := s.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (s *envSetter) boolean(dst *bool, key string) {
	if v, ok := s.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (s *envSetter) dur(dst *duration, key string) {
	if v, ok := s.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.fail(key, v, err)
			return
		}
		dst.Duration = d
	}
}

func (s *envSetter) list(dst *[]string, key string) {
	if v, ok := s.lookup(key); ok {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) error {
	s := &envSetter{}

	// ── Market / token ──
	s.str(&cfg.Market.Admin, "MARKET_ADMIN")
	s.str(&cfg.Market.Address, "MARKET_ADDRESS")
	s.str(&cfg.Token.Name, "TOKEN_NAME")
	s.str(&cfg.Token.Symbol, "TOKEN_SYMBOL")
	s.str(&cfg.Token.FaucetAmount, "TOKEN_FAUCET_AMOUNT")

	// ── Auth ──
	s.str(&cfg.Auth.Mode, "AUTH_MODE")
	s.dur(&cfg.Auth.MaxSkew, "AUTH_MAX_SKEW")
	s.str(&cfg.Auth.AdminAPIKey, "AUTH_ADMIN_API_KEY")

	// ── Postgres ──
	s.str(&cfg.Postgres.DSN, "POSTGRES_DSN")
	s.str(&cfg.Postgres.DSN, "DATABASE_URL")
	s.str(&cfg.Postgres.Host, "POSTGRES_HOST")
	s.integer(&cfg.Postgres.Port, "POSTGRES_PORT")
	s.str(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	s.str(&cfg.Postgres.User, "POSTGRES_USER")
	s.str(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	s.str(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	s.integer(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	s.integer(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	s.boolean(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	s.str(&cfg.Redis.Addr, "REDIS_ADDR")
	s.str(&cfg.Redis.Password, "REDIS_PASSWORD")
	s.integer(&cfg.Redis.DB, "REDIS_DB")
	s.integer(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	s.integer(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	s.boolean(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	s.dur(&cfg.Redis.WriterLockTTL, "REDIS_WRITER_LOCK_TTL")
	s.dur(&cfg.Redis.ProjectionTTL, "REDIS_PROJECTION_TTL")
	s.integer64(&cfg.Redis.StreamMaxLen, "REDIS_STREAM_MAX_LEN")

	// ── S3 / archive ──
	s.str(&cfg.S3.Endpoint, "S3_ENDPOINT")
	s.str(&cfg.S3.Region, "S3_REGION")
	s.str(&cfg.S3.Bucket, "S3_BUCKET")
	s.str(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	s.str(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	s.boolean(&cfg.S3.UseSSL, "S3_USE_SSL")
	s.boolean(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	s.str(&cfg.S3.Prefix, "S3_PREFIX")
	s.boolean(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	s.str(&cfg.Archive.Schedule, "ARCHIVE_SCHEDULE")
	s.dur(&cfg.Archive.Timeout, "ARCHIVE_TIMEOUT")

	// ── Events ──
	s.integer(&cfg.Events.OutboxLimit, "EVENTS_OUTBOX_LIMIT")
	s.integer(&cfg.Events.BatchSize, "EVENTS_BATCH_SIZE")
	s.dur(&cfg.Events.FlushInterval, "EVENTS_FLUSH_INTERVAL")
	s.dur(&cfg.Events.MaxRetryElapsed, "EVENTS_MAX_RETRY_ELAPSED")
	s.dur(&cfg.Events.MaxRetryInterval, "EVENTS_MAX_RETRY_INTERVAL")

	// ── Server ──
	s.integer(&cfg.Server.Port, "SERVER_PORT")
	s.list(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	s.integer(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")
	s.dur(&cfg.Server.RateLimitWindow, "SERVER_RATE_LIMIT_WINDOW")
	s.dur(&cfg.Server.IdempotencyTTL, "SERVER_IDEMPOTENCY_TTL")
	s.dur(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	s.str(&cfg.Notify.TelegramAPIURL, "NOTIFY_TELEGRAM_API_URL")
	s.str(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	s.str(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	s.str(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	s.list(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Top-level ──
	s.str(&cfg.Mode, "MODE")
	s.str(&cfg.LogLevel, "LOG_LEVEL")

	if len(s.errs) > 0 {
		return fmt.Errorf("config: bad environment overrides:\n  - %s", strings.Join(s.errs, "\n  - "))
	}
	return nil
}
