package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys for document processing facts. The pipeline, server,
// and CLI all tag their spans from this vocabulary so traces stay queryable
// across surfaces.

const (
	// Document attributes
	DocumentID     = attribute.Key("document.id")
	DocumentPages  = attribute.Key("document.pages")
	DocumentTokens = attribute.Key("document.tokens")

	// Run outcome attributes
	RunMatches        = attribute.Key("run.matches")
	RunRedactedTokens = attribute.Key("run.redacted_tokens")
	RunSkippedMatches = attribute.Key("run.skipped_matches")
	RunAllowed        = attribute.Key("run.allowed")
	RunPolicyVersion  = attribute.Key("run.policy_version")
)

// DocumentAttributes creates standard attributes for a document entering the pipeline
func DocumentAttributes(id string, pages, tokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		DocumentID.String(id),
		DocumentPages.Int(pages),
		DocumentTokens.Int(tokens),
	}
}

// RunAttributes creates attributes for a completed run's outcome
func RunAttributes(matches, redactedTokens, skippedMatches int, allowed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		RunMatches.Int(matches),
		RunRedactedTokens.Int(redactedTokens),
		RunSkippedMatches.Int(skippedMatches),
		RunAllowed.Bool(allowed),
	}
}
