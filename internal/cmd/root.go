package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/redacter-man/pii-redacter/internal/otel"
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v0.3.1).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// tracer is the package-level tracer for all CLI commands
var tracer = otel.Tracer("github.com/redacter-man/pii-redacter/internal/cmd")

var (
	// otelShutdown holds the OTel shutdown function, called from Execute()
	otelShutdown func(context.Context) error

	// Version info injected via ldflags at build time
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "redacter",
	Short: "Span-accurate PII redaction for extracted documents",
	Long: `Redacter maps PII character spans onto the tokens of extracted
documents and emits geometry-bearing redaction plans.

It turns detector output into renderer input with:
- Built-in recognizers for common PII kinds plus custom pattern overlays
- Deterministic span-to-token resolution with per-match error recovery
- Policy gates (strict profiles deny incomplete redactions)
- An HMAC-signed audit trail for every run
- Batch, watch-directory, and HTTP API front ends`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		// Initialize OpenTelemetry when --otel, -v, or REDACTER_OTEL_ENABLED=true
		otelEnabled := otelFlag || verbose || os.Getenv("REDACTER_OTEL_ENABLED") == "true"
		shutdown, err := otel.Setup("redacter", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}

		// Store shutdown for call on exit from Execute()
		otelShutdown = shutdown

		return nil
	},
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// All structured logs go to stderr so stdout stays clean for piping
	// (e.g. redacter scan --json | jq).
	if logFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "infrastructure config file (default: ./redacter.config.yaml or ~/.redacter/redacter.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")

	// Bind to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("otel_enabled", rootCmd.PersistentFlags().Lookup("otel"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig locates the config file. Env binding (REDACTER_ prefix, dot
// replacer) and defaults live in the config package's init so library
// consumers get them too.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search in ~/.redacter/ and current directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.redacter")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("redacter.config")
		viper.SetConfigType("yaml")
	}

	// Read config (ignore errors - file may not exist yet)
	_ = viper.ReadInConfig()
}

// Execute runs the root command and flushes OTel on exit
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	return err
}
