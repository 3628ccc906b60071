package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/po-extractor/constants"
)

// synonyms maps lower-cased labels seen in customer layouts onto canonical keys.
var synonyms = map[string]string{
	"order no":                     constants.FieldPurchaseOrderNumber,
	"order number":                 constants.FieldPurchaseOrderNumber,
	"document number":              constants.FieldPurchaseOrderNumber,
	"po number":                    constants.FieldPurchaseOrderNumber,
	"purchase order":               constants.FieldPurchaseOrderNumber,
	"purchase order number":        constants.FieldPurchaseOrderNumber,
	"quantity":                     constants.FieldQuantity,
	"qty":                          constants.FieldQuantity,
	"order quantity":               constants.FieldQuantity,
	"delivery date":                constants.FieldRequiredDeliveryDate,
	"required delivery date":       constants.FieldRequiredDeliveryDate,
	"material no.":                 constants.FieldMaterialNumber,
	"material no":                  constants.FieldMaterialNumber,
	"material/description":         constants.FieldMaterialNumber,
	"material number":              constants.FieldMaterialNumber,
	"delivery address":             constants.FieldDeliverTo,
	"shipping address":             constants.FieldDeliverTo,
	"ship to":                      constants.FieldDeliverTo,
	"please deliver to":            constants.FieldDeliverTo,
	"deliver to":                   constants.FieldDeliverTo,
	"order lines":                  OrderLinesKey,
	"purchaseorderlines":           OrderLinesKey,
	"line items":                   OrderLinesKey,
	"order quantity in kg":         kgQuantityKey,
	"quantity in kg":               kgQuantityKey,
	"required delivery date (iso)": constants.FieldRequiredDeliveryDate,
}

// kgQuantityKey marks labels whose value is a bare kilogram amount.
const kgQuantityKey = "\x00kg"

// NormalizeAndSanitizeJSON rewrites a refined record so it fits the refined
// record schema:
//   - renames known label synonyms to canonical keys
//   - coerces numbers and booleans to strings
//   - drops nulls and empty strings
//   - trims strings
//
// Line objects under "Order Lines" get the same treatment.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	out := sanitizeObject(m, &dropped)
	if lines, ok := out[OrderLinesKey].([]any); ok {
		clean := make([]any, 0, len(lines))
		for _, el := range lines {
			if obj, ok := el.(map[string]any); ok {
				clean = append(clean, sanitizeObject(obj, &dropped))
			} else {
				dropped = append(dropped, OrderLinesKey+"[](type)")
			}
		}
		out[OrderLinesKey] = clean
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.refine.sanitize", "dropped", dropped)
	}
	return b, dropped, nil
}

func sanitizeObject(m map[string]any, dropped *[]string) map[string]any {
	out := make(map[string]any, len(m))
	// sorted so that clashing synonyms resolve the same way every run
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		key := strings.TrimSpace(k)
		if canon, ok := synonyms[strings.ToLower(key)]; ok {
			if canon != key {
				*dropped = append(*dropped, key+"->"+canon)
			}
			key = canon
		}

		if key == OrderLinesKey {
			out[key] = v
			continue
		}

		var s string
		switch t := v.(type) {
		case nil:
			*dropped = append(*dropped, key+"(null)")
			continue
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			// nested values outside the line array are kept for the reconciler to flatten
			out[key] = v
			continue
		}
		if s == "" {
			*dropped = append(*dropped, key+"(empty)")
			continue
		}

		if key == kgQuantityKey {
			key = constants.FieldQuantity
			if !strings.Contains(strings.ToUpper(s), constants.UnitKG) {
				s += " " + constants.UnitKG
			}
		}
		// an explicit canonical key wins over a renamed synonym
		if _, exists := out[key]; exists && !isCanonical(k) {
			continue
		}
		out[key] = s
	}
	return out
}

func isCanonical(k string) bool {
	if k == OrderLinesKey {
		return true
	}
	for _, f := range constants.RequiredFields {
		if k == f {
			return true
		}
	}
	return false
}
