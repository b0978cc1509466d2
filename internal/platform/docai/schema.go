package docai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildFieldsSchema returns a JSON-Schema (draft 2020-12 subset) as a generic
// map. We embed it in the prompt as a structured output constraint and also
// use it locally to validate what comes back.
func BuildFieldsSchema() map[string]any {
	props := map[string]any{
		"first_name":          map[string]any{"type": "string", "minLength": 1},
		"last_name":           map[string]any{"type": "string", "minLength": 1},
		"date_of_birth":       map[string]any{"type": "string", "pattern": `^\d{2}/\d{2}/\d{4}$`},
		"insurance_plan":      map[string]any{"type": "string"},
		"insurance_member_id": map[string]any{"type": "string"},
		"insurance_group_id":  map[string]any{"type": "string"},
		"phone":               map[string]any{"type": "string"},
		"email":               map[string]any{"type": "string"},
		"address":             map[string]any{"type": "string"},
		"prescriber_name":     map[string]any{"type": "string"},
		"confidence":          map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"transcript_text":     map[string]any{"type": "string"},
	}

	// Nothing is required: referral faxes routinely arrive with pieces
	// missing, and the review queue handles incomplete results.
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// sanitizeOptional drops null and empty-string values plus unknown keys so a
// slightly sloppy model response can still pass strict validation. Returns
// the cleaned JSON and the list of removed keys.
func sanitizeOptional(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	known := BuildFieldsSchema()["properties"].(map[string]any)

	dropped := make([]string, 0, 4)
	for k, v := range m {
		if _, ok := known[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k)
			continue
		}
		switch t := v.(type) {
		case nil:
			delete(m, k)
			dropped = append(dropped, k)
		case string:
			if strings.TrimSpace(t) == "" {
				delete(m, k)
				dropped = append(dropped, k)
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// decodeResult strips fences, validates against the schema (trying a lenient
// sanitize pass before giving up), and unmarshals the provider content into a
// Result.
func decodeResult(content, provider, model string) (*Result, error) {
	raw := []byte(cleanJSON(content))
	schema := BuildFieldsSchema()

	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		cleaned, _, sErr := sanitizeOptional(raw)
		if sErr != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			return nil, fmt.Errorf("schema validation failed: %w", vErr)
		}
		raw = cleaned
	}

	var env struct {
		Fields
		TranscriptText string `json:"transcript_text"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}

	return &Result{
		Fields:         env.Fields,
		TranscriptText: env.TranscriptText,
		Provider:       provider,
		Model:          model,
		RawJSON:        raw,
	}, nil
}
