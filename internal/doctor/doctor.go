// Package doctor provides health checks for redacter configuration and
// runtime state. Used by `redacter doctor`.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redacter-man/pii-redacter/internal/audit"
	"github.com/redacter-man/pii-redacter/internal/config"
	"github.com/redacter-man/pii-redacter/internal/policy"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context) *Report {
	report := &Report{}

	report.Checks = append(report.Checks, checkConfig(ctx)...)
	report.Checks = append(report.Checks, checkSystem(ctx)...)

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkConfig(ctx context.Context) []CheckResult {
	var results []CheckResult

	cfg, err := config.Load()
	if err != nil {
		return []CheckResult{{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check REDACTER_* environment variables and redacter.config.yaml",
		}}
	}

	results = append(results, checkDataDir(cfg))
	results = append(results, checkSigningKey(cfg))
	results = append(results, checkPolicy(ctx, cfg)...)
	results = append(results, checkAuditDB(cfg))
	return results
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: "warn",
			Message: "Using generated default",
			Fix:     "Set REDACTER_SIGNING_KEY for production",
		}
	}
	return CheckResult{
		Name: "signing_key", Category: "config", Status: "pass", Message: "Configured",
	}
}

// checkPolicy loads the configured policy (or the built-in default), then
// compiles the Rego engine and the detector against it. A policy that fails
// to load short-circuits the dependent checks.
func checkPolicy(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	pol := policy.DefaultPolicy()
	if cfg.PolicyFile == "" {
		results = append(results, CheckResult{
			Name: "policy_valid", Category: "config", Status: "pass",
			Message: "built-in permissive default (no policy file configured)",
		})
	} else {
		loaded, err := policy.LoadPolicy(ctx, filepath.Base(cfg.PolicyFile), false, filepath.Dir(cfg.PolicyFile))
		if err != nil {
			return append(results, CheckResult{
				Name: "policy_valid", Category: "config", Status: "fail",
				Message: fmt.Sprintf("%s — %v", cfg.PolicyFile, err),
				Fix:     fmt.Sprintf("Run 'redacter validate -f %s' for details", cfg.PolicyFile),
			})
		}
		pol = loaded
		results = append(results, CheckResult{
			Name: "policy_valid", Category: "config", Status: "pass",
			Message: fmt.Sprintf("%s (profile %s %s)", cfg.PolicyFile, pol.Profile.Name, pol.Profile.Version),
		})
	}

	if _, err := policy.NewEngine(ctx, pol); err != nil {
		results = append(results, CheckResult{
			Name: "policy_engine", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%v", err),
		})
	} else {
		results = append(results, CheckResult{
			Name: "policy_engine", Category: "config", Status: "pass",
			Message: "Rego policies compile",
		})
	}

	patternsPath := cfg.PatternsFile
	if patternsPath != "" {
		if _, err := os.Stat(patternsPath); err != nil {
			results = append(results, CheckResult{
				Name: "patterns_file", Category: "config", Status: "fail",
				Message: fmt.Sprintf("%s — file not found", patternsPath),
				Fix:     "Set REDACTER_PATTERNS_FILE to an existing recognizer overlay",
			})
			patternsPath = ""
		} else {
			results = append(results, CheckResult{
				Name: "patterns_file", Category: "config", Status: "pass",
				Message: patternsPath,
			})
		}
	}

	detector, err := policy.NewDetectorForPolicy(pol, patternsPath)
	if err != nil {
		results = append(results, CheckResult{
			Name: "detector_compile", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%v", err),
			Fix:     "Run 'redacter validate' against the policy and patterns files",
		})
	} else {
		results = append(results, CheckResult{
			Name: "detector_compile", Category: "config", Status: "pass",
			Message: fmt.Sprintf("%d kinds", len(detector.Kinds())),
		})
	}

	return results
}

func checkAuditDB(cfg *config.Config) CheckResult {
	store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%v", err),
		}
	}
	_ = store.Close()
	return CheckResult{
		Name: "audit_db", Category: "config", Status: "pass",
		Message: cfg.AuditDBPath(),
	}
}

func checkSystem(ctx context.Context) []CheckResult {
	var results []CheckResult

	cfg, err := config.Load()
	if err != nil {
		return results
	}

	store, storeErr := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if storeErr != nil {
		return results
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	entries, listErr := store.ListIndex(ctx, "", "", time.Time{}, time.Time{}, 0)
	if listErr == nil {
		fi, _ := os.Stat(cfg.AuditDBPath())
		sizeStr := "unknown"
		if fi != nil {
			sizeStr = fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024))
		}
		results = append(results, CheckResult{
			Name: "audit_stats", Category: "system", Status: "pass",
			Message: fmt.Sprintf("%d records, %s", len(entries), sizeStr),
		})
	}

	return results
}
