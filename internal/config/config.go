// Package config holds OPERATOR-LEVEL configuration for a redacter
// installation.
//
// This is infrastructure config set by whoever deploys the tool, NOT the
// redaction policy. The boundary is:
//
//   - Operator config (this package): data directory, audit signing key,
//     server address, rate limits, watch schedule, log settings.
//     Set via env vars (REDACTER_*) or config file (redacter.config.yaml).
//
//   - Redaction policy: which kinds to redact, strict gates, custom
//     recognizers. Lives in redacter.policy.yaml (internal/policy) and is
//     versioned alongside the documents it governs.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/redacter-man/pii-redacter/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the REDACTER_ prefix and dots
// replaced by underscores (e.g. "server.addr" → REDACTER_SERVER_ADDR) and
// to a YAML field in redacter.config.yaml.
const (
	KeyDataDir       = "data_dir"
	KeySigningKey    = "signing_key"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
	KeyOTelEnabled   = "otel_enabled"
	KeyPatternsFile  = "patterns_file"
	KeyPolicyFile    = "policy_file"
	KeyMinConfidence = "min_confidence"

	KeyServerAddr            = "server.addr"
	KeyServerRateLimitRPM    = "server.rate_limit_rpm"
	KeyServerPerCallerRPM    = "server.rate_limit_per_caller_rpm"
	KeyServerRequestTimeoutS = "server.request_timeout_s"

	KeyWatchSchedule  = "watch.schedule"
	KeyWatchIntakeDir = "watch.intake_dir"
	KeyWatchOutDir    = "watch.out_dir"
)

// Defaults that do NOT involve crypto material. The signing key
// intentionally has no baked-in default — when unset we generate a
// deterministic per-machine fallback and warn loudly.
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "auto"
	DefaultServerAddr      = ":8484"
	DefaultRateLimitRPM    = 120
	DefaultPerCallerRPM    = 60
	DefaultRequestTimeoutS = 60
	DefaultWatchSchedule   = "*/1 * * * *"
	DefaultWatchIntakeDir  = "intake"
	DefaultWatchOutDir     = "plans"
)

// Config holds resolved operator-level configuration for a redacter
// process. Redaction behavior itself comes from the policy file.
type Config struct {
	DataDir       string  // Base directory for all state (~/.redacter)
	SigningKey    string  // HMAC-SHA256 key for audit signing (≥32 bytes)
	LogLevel      string  // zerolog level name
	LogFormat     string  // "auto", "console", or "json"
	OTelEnabled   bool    // Export traces/metrics to stdout
	PatternsFile  string  // Optional recognizer overlay YAML, "" for none
	PolicyFile    string  // Optional policy file path, "" for the permissive default
	MinConfidence float64 // Global confidence floor for detection, 0 to keep all

	Server ServerConfig
	Watch  WatchConfig

	usingDefaultSigningKey bool
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr            string // Listen address
	RateLimitRPM    int    // Global requests per minute
	PerCallerRPM    int    // Per-caller requests per minute
	RequestTimeoutS int    // Per-request timeout in seconds
}

// WatchConfig holds the scheduled intake sweep settings.
type WatchConfig struct {
	Schedule  string // Cron expression
	IntakeDir string // Directory swept for new documents
	OutDir    string // Directory receiving redaction plans
}

// UsingDefaultSigningKey returns true if the audit signing key was derived
// (not set explicitly). Commands should warn when this is the case.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set.
// Suppressed when REDACTER_QUICKSTART=1 or true (e.g. first-time exploration, demos).
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default REDACTER_SIGNING_KEY — set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("REDACTER_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
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

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:       resolveDataDir(),
		SigningKey:    viper.GetString(KeySigningKey),
		LogLevel:      viper.GetString(KeyLogLevel),
		LogFormat:     viper.GetString(KeyLogFormat),
		OTelEnabled:   viper.GetBool(KeyOTelEnabled),
		PatternsFile:  viper.GetString(KeyPatternsFile),
		PolicyFile:    viper.GetString(KeyPolicyFile),
		MinConfidence: viper.GetFloat64(KeyMinConfidence),
		Server: ServerConfig{
			Addr:            viper.GetString(KeyServerAddr),
			RateLimitRPM:    viper.GetInt(KeyServerRateLimitRPM),
			PerCallerRPM:    viper.GetInt(KeyServerPerCallerRPM),
			RequestTimeoutS: viper.GetInt(KeyServerRequestTimeoutS),
		},
		Watch: WatchConfig{
			Schedule:  viper.GetString(KeyWatchSchedule),
			IntakeDir: viper.GetString(KeyWatchIntakeDir),
			OutDir:    viper.GetString(KeyWatchOutDir),
		},
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".redacter"
	}
	return filepath.Join(home, ".redacter")
}

// deriveDefaultKey produces a deterministic fallback key from the data
// directory path and a salt, hex-encoded (64 chars, decodes to 32 bytes).
// This is NOT cryptographically strong — it exists solely so
// `redacter redact` works out of the box while still signing records with
// a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("redacter:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1 (got %v)", c.MinConfidence)
	}
	if c.Server.RateLimitRPM <= 0 {
		return fmt.Errorf("server.rate_limit_rpm must be positive")
	}
	if c.Server.PerCallerRPM <= 0 {
		return fmt.Errorf("server.rate_limit_per_caller_rpm must be positive")
	}
	if c.Server.RequestTimeoutS <= 0 {
		return fmt.Errorf("server.request_timeout_s must be positive")
	}
	return nil
}

// validateSigningKey accepts either ≥32 raw bytes or ≥64 hex characters (decoded length ≥32 for HMAC-SHA256).
// Hex is checked first (disjoint from raw) so that hex format is validated; raw is accepted otherwise when n ≥ 32.
func validateSigningKey(key string) error {
	n := len(key)
	if n >= 64 && n%2 == 0 && cryptoutil.IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) < 32 {
			return fmt.Errorf("signing_key hex must decode to at least 32 bytes: %w", err)
		}
		return nil
	}
	if n >= 32 {
		return nil
	}
	return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters (got %d); set REDACTER_SIGNING_KEY", n)
}
