package profiles

import (
	"strings"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/normalize"
)

// PagePolicy selects which PDF pages feed the extraction prompt.
type PagePolicy string

const (
	// PagesAll keeps every page.
	PagesAll PagePolicy = "all"
	// PagesFirstTwo keeps the first two pages.
	PagesFirstTwo PagePolicy = "first_two"
	// PagesAllButLast drops the trailing terms-and-conditions page when there is more than one page.
	PagesAllButLast PagePolicy = "all_but_last"
)

// SoldTo is the fixed sold-to identifier merged into every record.
type SoldTo struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Profile is the static configuration for one customer. Profiles handed out
// by a Registry are shared between goroutines and must not be mutated.
type Profile struct {
	Code   string
	Label  string
	SoldTo *SoldTo
	// ShipTo is ordered; earlier entries win ties in address matching.
	ShipTo []normalize.Candidate

	// QuantityPrecision and MatchThreshold override the global settings when set.
	QuantityPrecision *int
	MatchThreshold    *float64

	// NormalizeOnly skips sold-to merge and ship-to matching.
	NormalizeOnly bool

	Pages PagePolicy
	// ExtractFields are the labels the first-pass prompt asks for, in order.
	ExtractFields []string
	// ExtractInstructions and RefineInstructions are customer-specific prompt lines.
	ExtractInstructions []string
	RefineInstructions  []string
}

// Precision returns the profile override or def.
func (p *Profile) Precision(def int) int {
	if p.QuantityPrecision != nil {
		return *p.QuantityPrecision
	}
	return def
}

// Threshold returns the profile override or def.
func (p *Profile) Threshold(def float64) float64 {
	if p.MatchThreshold != nil {
		return *p.MatchThreshold
	}
	return def
}

// ShipToAddress returns the representative address for code.
func (p *Profile) ShipToAddress(code string) (string, bool) {
	for _, c := range p.ShipTo {
		if c.Code == code {
			return c.Address, true
		}
	}
	return "", false
}

// SelectPages returns the zero-based page indexes to read out of total.
func (p *Profile) SelectPages(total int) []int {
	n := total
	switch p.Pages {
	case PagesFirstTwo:
		n = min(2, total)
	case PagesAllButLast:
		if total > 1 {
			n = total - 1
		}
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (p *Profile) clone() *Profile {
	cp := *p
	cp.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	if p.SoldTo != nil {
		s := *p.SoldTo
		cp.SoldTo = &s
	}
	cp.ShipTo = append([]normalize.Candidate(nil), p.ShipTo...)
	cp.ExtractFields = append([]string(nil), p.ExtractFields...)
	cp.ExtractInstructions = append([]string(nil), p.ExtractInstructions...)
	cp.RefineInstructions = append([]string(nil), p.RefineInstructions...)
	if p.QuantityPrecision != nil {
		v := *p.QuantityPrecision
		cp.QuantityPrecision = &v
	}
	if p.MatchThreshold != nil {
		v := *p.MatchThreshold
		cp.MatchThreshold = &v
	}
	if cp.Pages == "" {
		cp.Pages = PagesAllButLast
	}
	if len(cp.ExtractFields) == 0 {
		cp.ExtractFields = append([]string(nil), constants.RequiredFields...)
	}
	return &cp
}
