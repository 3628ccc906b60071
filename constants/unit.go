package constants

// Unit codes recognised in quantity strings.
const (
	UnitKG = "KG"
	UnitLB = "LB"
)

// PoundsPerKilogram is the divisor applied to LB quantities.
const PoundsPerKilogram = "2.2046"

// Reconciliation defaults, overridable per customer profile.
const (
	DefaultQuantityPrecision = 3
	DefaultMatchThreshold    = 0.3
)

// DateLayouts for the delivery date (input MM/DD/YYYY, output YYYY-MM-DD).
const (
	InputDateLayout  = "01/02/2006"
	OutputDateLayout = "2006-01-02"
)
