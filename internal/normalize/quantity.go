package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/po-extractor/constants"
)

// QuantityOutcome describes what Quantity did with its input.
type QuantityOutcome int

const (
	// QuantityUntouched means no unit token was found.
	QuantityUntouched QuantityOutcome = iota
	// QuantityKilograms means the value was already in kilograms.
	QuantityKilograms
	// QuantityConverted means a pound value was converted to kilograms.
	QuantityConverted
	// QuantityUnparseable means a unit token was present but no leading number.
	QuantityUnparseable
)

func (o QuantityOutcome) String() string {
	switch o {
	case QuantityKilograms:
		return "kilograms"
	case QuantityConverted:
		return "converted"
	case QuantityUnparseable:
		return "unparseable"
	default:
		return "untouched"
	}
}

// Normalized reports whether the value now carries a KG unit.
func (o QuantityOutcome) Normalized() bool {
	return o == QuantityKilograms || o == QuantityConverted
}

var (
	leadingNumber     = regexp.MustCompile(`^\s*([-+]?(?:\d+(?:\.\d*)?|\.\d+))`)
	poundsPerKilogram = decimal.RequireFromString(constants.PoundsPerKilogram)
)

// Quantity splits a raw quantity such as "1,234.500 LB" into a kilogram
// amount. The returned value is only meaningful when the outcome is
// Normalized; otherwise raw is returned unchanged.
//
// A "KG" token wins over "LB" when both are present. Pound values are
// divided by 2.2046 and rounded half away from zero to precision places.
func Quantity(raw string, precision int) (string, QuantityOutcome) {
	upper := strings.ToUpper(raw)
	isKG := strings.Contains(upper, constants.UnitKG)
	isLB := !isKG && strings.Contains(upper, constants.UnitLB)
	if !isKG && !isLB {
		return raw, QuantityUntouched
	}

	token := leadingNumber.FindStringSubmatch(strings.ReplaceAll(raw, ",", ""))
	if token == nil {
		return raw, QuantityUnparseable
	}
	if isKG {
		return token[1], QuantityKilograms
	}

	pounds, err := decimal.NewFromString(token[1])
	if err != nil {
		return raw, QuantityUnparseable
	}
	if precision < 0 {
		precision = 0
	}
	return pounds.DivRound(poundsPerKilogram, int32(precision)).String(), QuantityConverted
}
