package normalize

import (
	"time"

	"github.com/joseph-ayodele/po-extractor/constants"
)

// Date rewrites a strict MM/DD/YYYY date as YYYY-MM-DD. Anything else,
// including single-digit month or day, is returned unchanged with ok=false.
func Date(raw string) (string, bool) {
	t, err := time.Parse(constants.InputDateLayout, raw)
	if err != nil {
		return raw, false
	}
	return t.Format(constants.OutputDateLayout), true
}
