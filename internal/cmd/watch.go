package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/config"
	"github.com/redacter-man/pii-redacter/internal/pipeline"
	"github.com/redacter-man/pii-redacter/internal/policy"
	"github.com/redacter-man/pii-redacter/internal/trigger"
)

var (
	watchDir      string
	watchSchedule string
	watchOut      string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sweep an intake directory for documents on a cron schedule",
	Long: `Scans the intake directory on a cron schedule, redacts every document
JSON file and zip archive it finds, and writes plans to the output
directory. Processed inputs move to processed/, failures to failed/,
so each file is handled exactly once.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "intake directory (default: watch.intake_dir from config)")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron expression (default: watch.schedule from config)")
	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "plan directory (default: watch.out_dir from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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
		Caller:   "watch",
	})

	intakeDir := watchDir
	if intakeDir == "" {
		intakeDir = cfg.Watch.IntakeDir
	}
	outDir := watchOut
	if outDir == "" {
		outDir = cfg.Watch.OutDir
	}
	schedule := watchSchedule
	if schedule == "" {
		schedule = cfg.Watch.Schedule
	}

	if err := os.MkdirAll(intakeDir, 0o755); err != nil {
		return fmt.Errorf("creating intake directory: %w", err)
	}

	sweeper := trigger.NewSweeper(pipe, intakeDir, outDir)

	// First sweep runs immediately so documents already waiting are not
	// held until the first cron tick.
	if err := sweeper.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("initial_sweep_failed")
	}

	scheduler := trigger.NewScheduler(sweeper)
	if err := scheduler.Register(schedule); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info().
		Str("intake_dir", intakeDir).
		Str("out_dir", outDir).
		Str("schedule", schedule).
		Str("profile", pol.Profile.Name).
		Msg("redacter_watch_started")

	<-ctx.Done()
	log.Info().Msg("shutdown_signal_received")
	return nil
}
