package reconcile

import (
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
)

// lineArrayKeys are checked first, in order, when an object carries more than one array.
var lineArrayKeys = []string{"Order Lines", "purchaseOrderLines", "Line Items", "lines", "items"}

var errNoRecords = errors.New("no records")

// Parse decodes refined upstream output into one record per order line.
//
// Accepted shapes are a single object, an object holding an array of line
// objects (header scalars are copied into each line that lacks them) and a
// top-level array of line objects. Markdown code fences and prose around a
// single JSON value are tolerated. Anything else is an ExtractionFormatError.
func Parse(raw string) ([]Record, error) {
	body := stripFences(raw)
	v, err := decodeOne(body)
	if err != nil {
		// fall back to the outermost {...} or [...] span
		if span, ok := outerSpan(body); ok {
			v, err = decodeOne(span)
		}
		if err != nil {
			return nil, newFormatError(raw, err)
		}
	}

	var out []Record
	switch t := v.(type) {
	case map[string]any:
		out = flattenObject(t)
	case []any:
		for _, el := range t {
			if obj, ok := el.(map[string]any); ok {
				out = append(out, toRecord(obj))
			}
		}
	}
	if len(out) == 0 {
		return nil, newFormatError(raw, errNoRecords)
	}
	return out, nil
}

func decodeOne(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func outerSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func flattenObject(obj map[string]any) []Record {
	key, lines := lineArray(obj)
	if key == "" {
		return []Record{toRecord(obj)}
	}

	header := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == key {
			continue
		}
		if _, isArr := v.([]any); isArr {
			continue
		}
		header[k] = v
	}
	base := toRecord(header)

	out := make([]Record, 0, len(lines))
	for _, el := range lines {
		line, ok := el.(map[string]any)
		if !ok {
			continue
		}
		rec := toRecord(line)
		for k, v := range base {
			if _, has := rec[k]; !has {
				rec[k] = v
			}
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return []Record{base}
	}
	return out
}

// lineArray returns the key and elements of the array holding line objects.
func lineArray(obj map[string]any) (string, []any) {
	for _, k := range lineArrayKeys {
		if arr, ok := obj[k].([]any); ok && hasObject(arr) {
			return k, arr
		}
	}
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if arr, ok := v.([]any); ok && hasObject(arr) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", nil
	}
	slices.Sort(keys)
	return keys[0], obj[keys[0]].([]any)
}

func hasObject(arr []any) bool {
	for _, el := range arr {
		if _, ok := el.(map[string]any); ok {
			return true
		}
	}
	return false
}

// toRecord coerces JSON scalars to strings and drops nulls. Nested values
// are kept as compact JSON text.
func toRecord(obj map[string]any) Record {
	rec := make(Record, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case nil:
		case string:
			rec[k] = t
		case json.Number:
			rec[k] = t.String()
		case bool:
			if t {
				rec[k] = "true"
			} else {
				rec[k] = "false"
			}
		default:
			b, err := json.Marshal(t)
			if err == nil {
				rec[k] = string(b)
			}
		}
	}
	return rec
}
