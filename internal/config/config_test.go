package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDACTER_SIGNING_KEY",
		"REDACTER_DATA_DIR",
		"REDACTER_LOG_LEVEL",
		"REDACTER_LOG_FORMAT",
		"REDACTER_OTEL_ENABLED",
		"REDACTER_PATTERNS_FILE",
		"REDACTER_POLICY_FILE",
		"REDACTER_MIN_CONFIDENCE",
		"REDACTER_SERVER_ADDR",
		"REDACTER_SERVER_RATE_LIMIT_RPM",
		"REDACTER_SERVER_RATE_LIMIT_PER_CALLER_RPM",
		"REDACTER_SERVER_REQUEST_TIMEOUT_S",
		"REDACTER_WATCH_SCHEDULE",
		"REDACTER_WATCH_INTAKE_DIR",
		"REDACTER_WATCH_OUT_DIR",
	} {
		t.Setenv(key, "")
	}
	viper.Reset()
	viper.SetEnvPrefix("REDACTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault(KeyLogLevel, DefaultLogLevel)
	viper.SetDefault(KeyLogFormat, DefaultLogFormat)
	viper.SetDefault(KeyServerAddr, DefaultServerAddr)
	viper.SetDefault(KeyServerRateLimitRPM, DefaultRateLimitRPM)
	viper.SetDefault(KeyServerPerCallerRPM, DefaultPerCallerRPM)
	viper.SetDefault(KeyServerRequestTimeoutS, DefaultRequestTimeoutS)
	viper.SetDefault(KeyWatchSchedule, DefaultWatchSchedule)
	viper.SetDefault(KeyWatchIntakeDir, DefaultWatchIntakeDir)
	viper.SetDefault(KeyWatchOutDir, DefaultWatchOutDir)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRateLimitRPM, cfg.Server.RateLimitRPM)
	assert.Equal(t, DefaultPerCallerRPM, cfg.Server.PerCallerRPM)
	assert.Equal(t, DefaultWatchSchedule, cfg.Watch.Schedule)
	assert.Equal(t, DefaultWatchIntakeDir, cfg.Watch.IntakeDir)
	assert.Equal(t, DefaultWatchOutDir, cfg.Watch.OutDir)
	assert.Zero(t, cfg.MinConfidence)
	assert.Empty(t, cfg.PolicyFile)
	assert.True(t, cfg.UsingDefaultSigningKey(), "should report default key when none is set")
	assert.Len(t, cfg.SigningKey, 64, "derived key is hex-encoded sha256")
}

func TestLoad_ExplicitSigningKey(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_SIGNING_KEY", "my-signing-key-at-least-32-chars!")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "my-signing-key-at-least-32-chars!", cfg.SigningKey)
	assert.False(t, cfg.UsingDefaultSigningKey())
}

func TestLoad_HexSigningKey(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_SIGNING_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.UsingDefaultSigningKey())
}

func TestLoad_InvalidSigningKeyLength(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_SIGNING_KEY", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_key must be at least 32 bytes")
}

func TestLoad_CustomDataDir(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("REDACTER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "audit.db"), cfg.AuditDBPath())
}

func TestLoad_ServerEnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_SERVER_ADDR", ":9000")
	t.Setenv("REDACTER_SERVER_RATE_LIMIT_RPM", "10")
	t.Setenv("REDACTER_SERVER_RATE_LIMIT_PER_CALLER_RPM", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.RateLimitRPM)
	assert.Equal(t, 5, cfg.Server.PerCallerRPM)
}

func TestLoad_WatchEnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_WATCH_SCHEDULE", "*/5 * * * *")
	t.Setenv("REDACTER_WATCH_INTAKE_DIR", "/srv/intake")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cfg.Watch.Schedule)
	assert.Equal(t, "/srv/intake", cfg.Watch.IntakeDir)
}

func TestLoad_MinConfidence(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_MIN_CONFIDENCE", "0.75")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cfg.MinConfidence, 0.0001)
}

func TestLoad_MinConfidenceOutOfRange(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_MIN_CONFIDENCE", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_confidence must be between 0 and 1")
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_SERVER_RATE_LIMIT_RPM", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_rpm must be positive")
}

func TestLoad_PolicyAndPatternsFiles(t *testing.T) {
	resetViper(t)
	t.Setenv("REDACTER_POLICY_FILE", "compliance/loans.policy.yaml")
	t.Setenv("REDACTER_PATTERNS_FILE", "compliance/extra-patterns.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "compliance/loans.policy.yaml", cfg.PolicyFile)
	assert.Equal(t, "compliance/extra-patterns.yaml", cfg.PatternsFile)
}

func TestConfig_EnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: dir + "/nested/deep"}
	require.NoError(t, cfg.EnsureDataDir())
}

func TestDeriveDefaultKey_Deterministic(t *testing.T) {
	k1 := deriveDefaultKey("/home/user/.redacter", "test-salt")
	k2 := deriveDefaultKey("/home/user/.redacter", "test-salt")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestDeriveDefaultKey_DifferentPaths(t *testing.T) {
	k1 := deriveDefaultKey("/home/alice/.redacter", "audit-signing")
	k2 := deriveDefaultKey("/home/bob/.redacter", "audit-signing")
	assert.NotEqual(t, k1, k2)
}

func TestValidateSigningKey(t *testing.T) {
	assert.NoError(t, validateSigningKey("abcdefghijklmnopqrstuvwxyz012345"))
	assert.NoError(t, validateSigningKey(deriveDefaultKey("/data", "audit-signing")))
	assert.Error(t, validateSigningKey(""))
	assert.Error(t, validateSigningKey("0123456789abcdef"))
}
