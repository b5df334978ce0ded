// Package policyfile loads YAML policy seed files for policyd. A seed file
// carries any number of platform-scoped policies that are validated against
// a JSON Schema and the wire rules before anything is stored, so a bad seed
// fails startup instead of planting rejectable policies.
package policyfile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/panthersecurity/panther/pkg/wire"
)

// Seed is one platform-scoped policy entry. Platform strings are free-form
// like the upsert endpoint's device_platform.
type Seed struct {
	DevicePlatform string      `json:"device_platform"`
	Policy         wire.Policy `json:"policy"`
}

type seedDocument struct {
	Policies []Seed `json:"policies"`
}

const seedSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["policies"],
  "properties": {
    "policies": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["device_platform", "policy"],
        "properties": {
          "device_platform": {"type": "string", "minLength": 1},
          "policy": {
            "type": "object",
            "additionalProperties": false,
            "required": ["policy_id", "app_id", "app_version", "env", "rules", "signature", "issued_at"],
            "properties": {
              "policy_id": {"type": "string", "minLength": 1},
              "app_id": {"type": "string", "minLength": 1},
              "app_version": {"type": "string", "minLength": 1},
              "env": {"type": "string", "minLength": 1},
              "signature": {"type": "string", "minLength": 1},
              "issued_at": {"type": "string", "minLength": 1},
              "rules": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "additionalProperties": false,
                  "required": ["action", "decision"],
                  "properties": {
                    "action": {"type": "string", "minLength": 1},
                    "decision": {"enum": ["ALLOW", "STEP_UP", "DEGRADE", "DENY"]},
                    "conditions": {
                      "type": "object",
                      "additionalProperties": false,
                      "properties": {
                        "attestation": {"enum": ["pass", "fail", "unknown"]},
                        "debugger": {"type": "boolean"},
                        "hooking": {"type": "boolean"},
                        "proxy_detected": {"type": "boolean"},
                        "app_version": {"type": "string"},
                        "risk_score_gte": {"type": "integer", "minimum": 0}
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var seedSchema = mustCompileSeedSchema()

func mustCompileSeedSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://panthersecurity.io/schemas/policy-seed.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(seedSchemaJSON)); err != nil {
		panic(fmt.Sprintf("seed schema load failed: %v", err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("seed schema compile failed: %v", err))
	}
	return compiled
}

// Load reads and parses the seed file at path.
func Load(path string) ([]Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seeds, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return seeds, nil
}

// Parse validates and decodes a seed document. The YAML is normalized to
// JSON first so the schema, the strict decoder, and the stored payloads all
// see the same document shape.
func Parse(data []byte) ([]Seed, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize seed document: %w", err)
	}
	var generic any
	if err := json.Unmarshal(jsonBytes, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize seed document: %w", err)
	}

	if err := seedSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("seed schema validation failed: %w", err)
	}

	var parsed seedDocument
	if err := wire.DecodeStrictBytes(jsonBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode seed document: %w", err)
	}

	for i := range parsed.Policies {
		if err := wire.ValidatePolicy(&parsed.Policies[i].Policy); err != nil {
			return nil, fmt.Errorf("seed policy %d: %w", i, err)
		}
	}
	return parsed.Policies, nil
}
