package llm

import "github.com/joseph-ayodele/po-extractor/constants"

// OrderLinesKey holds per-line objects in a multi-line refined record.
const OrderLinesKey = "Order Lines"

// BuildRefinedRecordSchema returns a JSON-Schema (draft 2020-12 subset) for
// the refine pass. Every field is optional; known fields must be strings.
func BuildRefinedRecordSchema() map[string]any {
	fields := map[string]any{}
	for _, f := range constants.RequiredFields {
		fields[f] = map[string]any{"type": "string"}
	}

	line := map[string]any{
		"type":       "object",
		"properties": fields,
	}

	props := map[string]any{}
	for k, v := range fields {
		props[k] = v
	}
	props[OrderLinesKey] = map[string]any{
		"type":  "array",
		"items": line,
	}

	return map[string]any{
		"type":          "object",
		"properties":    props,
		"minProperties": 1,
	}
}
