package normalize

import (
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/po-extractor/constants"
)

// Candidate is one known ship-to facility.
type Candidate struct {
	Code    string `json:"code" toml:"code"`
	Address string `json:"address" toml:"address"`
}

// Match is the outcome of scoring an address against a directory.
type Match struct {
	// Code is the winning ship-to code, or constants.UnmatchedShipTo.
	Code string
	// Ratio is the best similarity seen, even when it fell below the threshold.
	Ratio float64
	// Best is the highest scoring code regardless of threshold.
	Best    string
	Matched bool
}

// AddressMatcher picks the closest ship-to code for a free-text address.
// It holds no mutable state and is safe for concurrent use.
type AddressMatcher struct {
	threshold float64
}

// NewAddressMatcher returns a matcher that rejects ratios below threshold.
func NewAddressMatcher(threshold float64) *AddressMatcher {
	return &AddressMatcher{threshold: threshold}
}

// Threshold returns the minimum accepted ratio.
func (m *AddressMatcher) Threshold() float64 {
	return m.threshold
}

// Match scores address against every candidate in order. The strictly
// highest ratio wins and ties keep the earlier candidate.
func (m *AddressMatcher) Match(address string, directory []Candidate) Match {
	best, bestRatio := -1, -1.0
	for i, c := range directory {
		r := SimilarityRatio(address, c.Address)
		if r > bestRatio {
			best, bestRatio = i, r
		}
	}
	if best < 0 {
		return Match{Code: constants.UnmatchedShipTo}
	}

	res := Match{Ratio: bestRatio, Best: directory[best].Code}
	if bestRatio < m.threshold {
		res.Code = constants.UnmatchedShipTo
		return res
	}
	res.Code = directory[best].Code
	res.Matched = true
	return res
}

// SimilarityRatio returns 2*M/T over the runes of a and b, where M is the
// number of characters in matching blocks and T the total length.
// Identical strings score 1.0.
func SimilarityRatio(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	s = norm.NFC.String(s)
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
