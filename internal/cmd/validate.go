package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/redacter-man/pii-redacter/internal/detect"
	"github.com/redacter-man/pii-redacter/internal/policy"
)

var (
	validateFile     string
	validatePatterns string
	validateStrict   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate policy and recognizer pattern files",
	Long: `Validates redacter.policy.yaml against its JSON schema, compiles the
embedded Rego rules against it, and compiles any recognizer overlay file.
Nothing is redacted; this is the preflight for config changes.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "policy file to validate (default: redacter.policy.yaml)")
	validateCmd.Flags().StringVar(&validatePatterns, "patterns", "", "recognizer overlay YAML to compile")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "require explicit kinds, strict, and audit sections")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "validate")
	defer span.End()

	out := cmd.OutOrStdout()

	if validateFile == "" {
		validateFile = "redacter.policy.yaml"
	}

	pol, err := policy.LoadPolicy(ctx, filepath.Base(validateFile), validateStrict, filepath.Dir(validateFile))
	if err != nil {
		log.Error().
			Err(err).
			Str("file", validateFile).
			Bool("strict", validateStrict).
			Msg("policy_validation_failed")
		fmt.Fprintf(os.Stderr, "%s Validation failed: %s\n", glyphFail, validateFile)
		return fmt.Errorf("validation failed: %w", err)
	}

	// Creating the engine compiles the embedded Rego against this policy.
	if _, err := policy.NewEngine(ctx, pol); err != nil {
		fmt.Fprintf(os.Stderr, "%s Policy compilation failed: %s\n", glyphFail, validateFile)
		return fmt.Errorf("policy engine initialization failed: %w", err)
	}

	// The detector compile covers pattern_file and custom_recognizers from
	// the policy plus the overlay named on the command line.
	detector, err := policy.NewDetectorForPolicy(pol, validatePatterns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s Recognizer compilation failed\n", glyphFail)
		return fmt.Errorf("recognizer compilation failed: %w", err)
	}

	if validatePatterns != "" {
		// NewDetectorForPolicy treats a missing overlay as absent config;
		// an explicitly named file must exist.
		if _, err := os.Stat(validatePatterns); err != nil {
			fmt.Fprintf(os.Stderr, "%s Patterns file not found: %s\n", glyphFail, validatePatterns)
			return fmt.Errorf("reading patterns file: %w", err)
		}
		if _, err := detect.LoadRecognizerFile(validatePatterns); err != nil {
			fmt.Fprintf(os.Stderr, "%s Patterns file invalid: %s\n", glyphFail, validatePatterns)
			return fmt.Errorf("parsing patterns file: %w", err)
		}
		fmt.Fprintf(out, "%s Patterns valid: %s\n", glyphPass, validatePatterns)
	}

	log.Info().
		Str("file", validateFile).
		Str("version", pol.VersionTag).
		Bool("strict", validateStrict).
		Msg("policy_validated")

	fmt.Fprintf(out, "%s Policy valid: %s\n", glyphPass, validateFile)
	fmt.Fprintf(out, "  Profile: %s v%s\n", pol.Profile.Name, pol.Profile.Version)
	fmt.Fprintf(out, "  Version: %s\n", pol.VersionTag)
	fmt.Fprintf(out, "  Kinds:   %d detectable\n", len(detector.Kinds()))
	if validateStrict {
		fmt.Fprintln(out, "  Mode:    strict")
	}

	for _, warning := range policy.ValidateKinds(pol) {
		fmt.Fprintf(out, "  %s %s\n", glyphWarn, warning.Message)
	}

	return nil
}
