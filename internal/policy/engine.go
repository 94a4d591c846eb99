package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed rego/*.rego
var embeddedPolicies embed.FS

// Decision represents the result of policy evaluation for one run.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Action        string   `json:"action"` // "allow" or "deny"
	Reasons       []string `json:"reasons,omitempty"`
	PolicyVersion string   `json:"policy_version"`
}

// RunFacts is the policy-relevant summary of one redaction run. It carries
// counts, kind names, and nothing else: matched text never reaches the
// policy engine.
type RunFacts struct {
	DocumentID     string   `json:"document_id"`
	PageCount      int      `json:"page_count"`
	TokenCount     int      `json:"token_count"`
	MatchCount     int      `json:"match_count"`
	RedactedTokens int      `json:"redacted_tokens"`
	SkippedCount   int      `json:"skipped_count"`
	Kinds          []string `json:"kinds"`
	UncoveredKinds []string `json:"uncovered_kinds"`
}

// regoPolicy maps a Rego file to the OPA query used to extract deny messages.
type regoPolicy struct {
	file  string
	query string
}

// allPolicies defines the Rego files and the query path for each.
var allPolicies = []regoPolicy{
	{file: "rego/redaction.rego", query: "data.redacter.policy.redaction.deny"},
	{file: "rego/coverage.rego", query: "data.redacter.policy.coverage.deny"},
}

// Engine evaluates redaction governance policies using embedded OPA.
type Engine struct {
	policy   *Policy
	prepared map[string]rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with precompiled Rego policies.
// The provided Policy is serialized to JSON and loaded as OPA data.
func NewEngine(ctx context.Context, pol *Policy) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "policy.engine.new")
	defer span.End()

	policyData, err := policyToData(pol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("converting policy to OPA data: %w", err)
	}

	prepared, err := prepareRegoQueries(ctx, allPolicies, map[string]interface{}{
		"policy": policyData,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("policy.prepared_count", len(prepared)))

	return &Engine{
		policy:   pol,
		prepared: prepared,
	}, nil
}

// prepareRegoQueries initializes OPA prepared queries for a given set of
// policies.
func prepareRegoQueries(ctx context.Context, policies []regoPolicy, opaData map[string]interface{}) (map[string]rego.PreparedEvalQuery, error) {
	prepared := make(map[string]rego.PreparedEvalQuery, len(policies))

	for _, rp := range policies {
		content, err := embeddedPolicies.ReadFile(rp.file)
		if err != nil {
			return nil, fmt.Errorf("reading embedded policy %s: %w", rp.file, err)
		}

		store := inmem.NewFromObject(opaData)

		r := rego.New(
			rego.Query(rp.query),
			rego.Module(rp.file, string(content)),
			rego.Store(store),
		)

		preparedQuery, err := r.PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing Rego policy %s: %w", rp.file, err)
		}

		prepared[rp.file] = preparedQuery
	}

	return prepared, nil
}

// Evaluate runs every governance policy against the facts of one run and
// returns a combined Decision. Reasons are sorted so the decision is
// deterministic regardless of OPA's set iteration order.
func (e *Engine) Evaluate(ctx context.Context, facts RunFacts) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(
			attribute.String("policy.version", e.policy.VersionTag),
			attribute.String("document.id", facts.DocumentID),
		))
	defer span.End()

	input, err := factsToInput(facts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	decision := &Decision{
		Allowed:       true,
		Action:        "allow",
		PolicyVersion: e.policy.VersionTag,
	}

	for _, rp := range allPolicies {
		reasons, err := e.evaluateDenyPolicy(ctx, rp.file, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		decision.Reasons = append(decision.Reasons, reasons...)
	}

	if len(decision.Reasons) > 0 {
		sort.Strings(decision.Reasons)
		decision.Allowed = false
		decision.Action = "deny"
	}

	span.SetAttributes(
		attribute.Bool("policy.allowed", decision.Allowed),
		attribute.Int("policy.deny_reasons", len(decision.Reasons)),
	)
	if decision.Allowed {
		span.SetStatus(codes.Ok, "policy evaluation passed")
	}

	return decision, nil
}

// evaluateDenyPolicy runs a single prepared Rego policy that produces a set
// of deny reason strings.
func (e *Engine) evaluateDenyPolicy(ctx context.Context, pkg string, input map[string]interface{}) ([]string, error) {
	pq, ok := e.prepared[pkg]
	if !ok {
		return nil, fmt.Errorf("policy package %s not prepared", pkg)
	}

	results, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", pkg, err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	// The result of querying "data.xxx.deny" is a set of strings.
	// OPA returns it as []interface{} or, occasionally, map[string]interface{}.
	var reasons []string
	exprVal := results[0].Expressions[0].Value
	switch v := exprVal.(type) {
	case []interface{}:
		for _, msg := range v {
			if msgStr, ok := msg.(string); ok {
				reasons = append(reasons, msgStr)
			}
		}
	case map[string]interface{}:
		for _, msg := range v {
			if msgStr, ok := msg.(string); ok {
				reasons = append(reasons, msgStr)
			}
		}
	}

	return reasons, nil
}

// factsToInput converts RunFacts to map[string]interface{} for OPA input.
// We marshal to JSON then unmarshal to get clean map types.
func factsToInput(facts RunFacts) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("marshalling run facts: %w", err)
	}

	var input map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &input); err != nil {
		return nil, fmt.Errorf("unmarshalling run facts: %w", err)
	}

	return input, nil
}

// policyToData converts a Policy struct to map[string]interface{} for OPA.
// We marshal to JSON then unmarshal to get clean map types.
func policyToData(pol *Policy) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(pol)
	if err != nil {
		return nil, fmt.Errorf("marshalling policy: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return nil, fmt.Errorf("unmarshalling policy data: %w", err)
	}

	return data, nil
}
