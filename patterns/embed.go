// Package patterns provides the embedded default recognizer definitions
// compiled into the binary. Deployments extend or override them with a
// pattern file (config patterns_file) or per-detector custom recognizers;
// recognizer names are the override key.
package patterns

import _ "embed"

//go:embed pii_financial.yaml
var piiFinancialYAML []byte

// PIIFinancialYAML returns the embedded default financial-PII recognizer
// definitions.
func PIIFinancialYAML() []byte { return piiFinancialYAML }
