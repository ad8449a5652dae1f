package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexbensimon/pakt/pkg/config"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

var configEnv = []string{
	"PORT", "LOG_LEVEL", "DATABASE_URL", "DATA_DIR", "REDIS_URL", "OTEL_ENABLED", "OTEL_ENDPOINT",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI", "ADMIN_ADDRESS",
	"VERIFIER_ADDRESS", "POLICY_FILE", "ARCHIVE_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"PAKT_PRODUCTION",
}

func clearEnv(t *testing.T) {
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.LiteMode())
	assert.Equal(t, "data", cfg.DataDir)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.False(t, cfg.Production)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://ledger:5432/pakt")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("ARCHIVE_URL", "s3://pakt-snapshots/prod")
	t.Setenv("PAKT_PRODUCTION", "1")

	cfg := config.Load()

	assert.True(t, cfg.Production)
	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.LiteMode())
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, "s3://pakt-snapshots/prod", cfg.ArchiveURL)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_MalformedNumbersUseDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "fast")
	t.Setenv("RATE_LIMIT_BURST", "-3")

	cfg := config.Load()

	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy_Overrides(t *testing.T) {
	path := writePolicy(t, `
duration: 72h
max_stake_by_level: [0, 10, 20, 30, 40, 50]
burn_interest_ratio: 3
unlock_fee: "0.25"
goal_type_count: 5
`)

	p, err := config.LoadPolicy(path)
	require.NoError(t, err)

	def := pakt.DefaultPolicy()
	assert.Equal(t, 72*time.Hour, p.Duration)
	assert.Equal(t, pakt.LevelTable{0, 10, 20, 30, 40, 50}, p.MaxStakeByLevel)
	assert.Equal(t, def.InterestRateByLevel, p.InterestRateByLevel)
	assert.Equal(t, int64(3), p.BurnInterestRatio)
	assert.Equal(t, "250000000000000000", p.UnlockFee.String())
	assert.Equal(t, uint8(5), p.GoalTypeCount)
}

func TestLoadPolicy_EmptyFileKeepsDefaults(t *testing.T) {
	p, err := config.LoadPolicy(writePolicy(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, pakt.DefaultPolicy(), p)
}

func TestLoadPolicy_Rejects(t *testing.T) {
	cases := map[string]string{
		"short table":    "interest_rate_by_level: [0, 1, 2]\n",
		"negative rate":  "interest_rate_by_level: [0, -1, 2, 3, 4, 5]\n",
		"bad duration":   "duration: soon\n",
		"zero duration":  "duration: 0s\n",
		"negative ratio": "burn_interest_ratio: -1\n",
		"negative fee":   "unlock_fee: \"-1\"\n",
		"not yaml":       "duration: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadPolicy(writePolicy(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := config.LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
