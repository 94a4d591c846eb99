package policy

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// schemaV1 is the JSON Schema for redacter.policy.yaml configuration.
const schemaV1 = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "redacter.policy.yaml Configuration",
  "description": "Redaction profile configuration v1.0",
  "type": "object",
  "required": ["profile"],
  "additionalProperties": true,
  "properties": {
    "profile": {
      "type": "object",
      "required": ["name", "version"],
      "properties": {
        "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_-]+$"},
        "description": {"type": "string"},
        "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"}
      }
    },
    "redaction": {
      "type": "object",
      "properties": {
        "kinds": {"type": "array", "items": {"type": "string"}},
        "disabled_kinds": {"type": "array", "items": {"type": "string"}},
        "min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "pattern_file": {"type": "string"},
        "custom_recognizers": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "kind", "patterns"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "kind": {"type": "string", "minLength": 1},
              "validate": {"type": "string", "enum": ["none", "luhn", "digits"]},
              "min_digits": {"type": "integer", "minimum": 1},
              "max_digits": {"type": "integer", "minimum": 1},
              "capture": {"type": "string", "enum": ["match", "value"]},
              "patterns": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "required": ["name", "regex"],
                  "properties": {
                    "name": {"type": "string"},
                    "regex": {"type": "string"},
                    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
                  }
                }
              }
            }
          }
        }
      }
    },
    "strict": {
      "type": "object",
      "properties": {
        "fail_on_skipped": {"type": "boolean"},
        "fail_on_uncovered": {"type": "boolean"},
        "max_skipped": {"type": "integer", "minimum": 0},
        "required_kinds": {"type": "array", "items": {"type": "string"}}
      }
    },
    "audit": {
      "type": "object",
      "properties": {
        "retention_days": {"type": "integer", "minimum": 1},
        "include_spans": {"type": "boolean"}
      }
    }
  }
}`

// ValidateSchema validates YAML policy bytes against the v1.0 JSON schema.
// The YAML is first converted to JSON because gojsonschema operates on JSON.
// If strict is true, additional business-rule checks are applied.
func ValidateSchema(yamlBytes []byte, strict bool) error {
	// Convert YAML to a generic map, then marshal to JSON
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	// yaml.v3 unmarshals map keys as string, but we need to ensure
	// nested maps also use string keys for JSON marshalling.
	normalized := normalizeYAML(raw)

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(schemaV1)
	documentLoader := gojsonschema.NewBytesLoader(jsonBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("schema validation errors:\n%s", errMsg)
	}

	if strict {
		if err := strictValidation(jsonBytes); err != nil {
			return err
		}
	}

	return nil
}

// strictValidation applies additional business-rule checks beyond schema.
// Strict mode enforces an auditable posture: explicit kind enumeration, a
// declared failure policy, and audit retention.
func strictValidation(jsonBytes []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return fmt.Errorf("parsing policy for strict validation: %w", err)
	}

	// 1. Redaction kinds must be enumerated explicitly (implicit "everything"
	// is not reviewable).
	redaction, ok := doc["redaction"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("strict mode: 'redaction' section is required")
	}
	kinds, ok := redaction["kinds"].([]interface{})
	if !ok || len(kinds) == 0 {
		return fmt.Errorf("strict mode: redaction.kinds must enumerate the kinds to redact")
	}

	// 2. Strict section must declare how failures are handled
	if _, ok := doc["strict"]; !ok {
		return fmt.Errorf("strict mode: 'strict' section is required (set fail_on_skipped, fail_on_uncovered)")
	}

	// 3. Audit section must exist
	if _, ok := doc["audit"]; !ok {
		return fmt.Errorf("strict mode: 'audit' section is required for compliance")
	}

	return nil
}

// normalizeYAML recursively converts map[interface{}]interface{} to
// map[string]interface{} so that json.Marshal can handle it.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(v)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
