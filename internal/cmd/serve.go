package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/config"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP redaction API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys returns a map of key -> caller name from REDACTER_API_KEYS
// (comma-separated; each entry key or key:name).
func parseAPIKeys(env string) map[string]string {
	m := make(map[string]string)
	if env == "" {
		return m
	}
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		caller := "default"
		if idx := strings.Index(part, ":"); idx > 0 {
			caller = strings.TrimSpace(part[idx+1:])
			part = strings.TrimSpace(part[:idx])
		}
		if caller == "" {
			caller = "default"
		}
		m[part] = caller
	}
	return m
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	pol, err := resolvePolicy(ctx, "", cfg)
	if err != nil {
		return err
	}
	applyConfidenceFloor(pol, cfg, 0)

	detector, err := policy.NewDetectorForPolicy(pol, cfg.PatternsFile)
	if err != nil {
		return err
	}

	engine, err := policy.NewEngine(ctx, pol)
	if err != nil {
		return fmt.Errorf("policy engine: %w", err)
	}

	auditStore, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer auditStore.Close()

	pipe := pipeline.New(pipeline.Config{
		Detector: detector,
		Policy:   pol,
		Engine:   engine,
		Audit:    auditStore,
		Caller:   "api",
	})

	apiKeys := parseAPIKeys(os.Getenv("REDACTER_API_KEYS"))
	if len(apiKeys) == 0 {
		log.Warn().Msg("REDACTER_API_KEYS not set — all API endpoints will return 401. Set for production.")
	}

	srv := server.NewServer(pipe, detector, auditStore, pol, apiKeys,
		server.WithRateLimiter(server.NewRateLimiter(cfg.Server.RateLimitRPM, cfg.Server.PerCallerRPM)),
		server.WithRequestTimeout(time.Duration(cfg.Server.RequestTimeoutS)*time.Second),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("profile", pol.Profile.Name).
		Int("api_keys", len(apiKeys)).
		Msg("redacter_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
