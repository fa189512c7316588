package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

const (
	adminHex  = "0x00000000000000000000000000000000000000a1"
	marketHex = "0x00000000000000000000000000000000000000b2"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Market.Admin = adminHex
	cfg.Market.Address = marketHex
	return cfg
}

func TestDefaultsNeedMarketIdentities(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market: admin")
	assert.Contains(t, err.Error(), "market: address")

	cfg = validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "Server"
	cfg.Market.Address = adminHex
	cfg.Token.FaucetAmount = "lots"
	cfg.Auth.Mode = "none"
	cfg.Redis.WriterLockTTL.Duration = time.Second
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, ModeServer, cfg.Mode, "mode is normalised")
	for _, want := range []string{
		"admin and address must differ",
		"faucet_amount",
		"auth: mode",
		"writer_lock_ttl",
		"telegram_chat_id",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestModeRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = ""
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate(), "standalone ignores external services")

	cfg.Mode = ModeFull
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host")
	assert.Contains(t, err.Error(), "s3: bucket")

	assert.True(t, cfg.UsesPostgres())
	assert.True(t, cfg.UsesS3())
	cfg.Archive.Enabled = false
	assert.False(t, cfg.UsesS3())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "easybet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"

[market]
admin = "`+adminHex+`"
address = "`+marketHex+`"

[token]
faucet_amount = "250.5"

[server]
port = 9000
rate_limit_window = "30s"
`), 0o600))

	t.Setenv("EASYBET_SERVER_PORT", "9100")
	t.Setenv("EASYBET_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("EASYBET_POSTGRES_PASSWORD", "pw")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "pw", cfg.Postgres.Password)

	faucet, err := cfg.FaucetAmount()
	require.NoError(t, err)
	want, _ := domain.ParseTokens("250.5")
	assert.True(t, faucet.Eq(want))
	assert.Equal(t, common.HexToAddress(adminHex), cfg.AdminAddress())
}

func TestLoadRejectsUnknownKeysAndBadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nprot = 1\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.prot")

	t.Setenv("EASYBET_SERVER_PORT", "eighty")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EASYBET_SERVER_PORT")
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "secret"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.Events = []string{"ProjectSettled"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.S3.SecretKey, "empty secrets stay empty")

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "ProjectSettled", cfg.Notify.Events[0])
	assert.Equal(t, "secret", cfg.Postgres.Password)
}
