package reconcile

import (
	"log/slog"

	"github.com/joseph-ayodele/po-extractor/constants"
	"github.com/joseph-ayodele/po-extractor/internal/normalize"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
)

// Options are the global reconciliation settings. Profiles may override
// QuantityPrecision and MatchThreshold.
type Options struct {
	QuantityPrecision int
	MatchThreshold    float64
	// KeepAddressOnMiss leaves the free-text address in place instead of
	// writing constants.UnmatchedShipTo when no ship-to code is confident.
	KeepAddressOnMiss bool
	// RequireFields reports missing required fields as warnings.
	RequireFields bool
}

// DefaultOptions returns 3-decimal rounding, a 0.3 threshold and the sentinel policy.
func DefaultOptions() Options {
	return Options{
		QuantityPrecision: constants.DefaultQuantityPrecision,
		MatchThreshold:    constants.DefaultMatchThreshold,
	}
}

// Outcome is one reconciled record plus what each step did to it.
type Outcome struct {
	Record   Record                    `json:"record"`
	Quantity normalize.QuantityOutcome `json:"-"`
	// DateNormalized is false when the date was absent or left as-is.
	DateNormalized bool `json:"-"`
	// ShipTo is nil when the address step did not run.
	ShipTo   *normalize.Match `json:"-"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Reconciler turns extracted records into canonical records. It performs
// no I/O and keeps no state between calls, so one instance can serve many
// goroutines.
type Reconciler struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Reconciler.
func New(opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{opts: opts, logger: logger}
}

// Options returns the settings the reconciler was built with.
func (r *Reconciler) Options() Options {
	return r.opts
}

// Reconcile normalizes one record against profile. The input is not modified.
//
// Steps run in a fixed order: quantity, delivery date, sold-to merge, then
// ship-to matching on whatever "Deliver to" holds after the merge.
func (r *Reconciler) Reconcile(in Record, profile *profiles.Profile) Outcome {
	rec := in.Clone()
	out := Outcome{Record: rec}
	log := r.logger.With("customer", profile.Code)

	if raw, ok := rec[constants.FieldQuantity]; ok {
		v, res := normalize.Quantity(raw, profile.Precision(r.opts.QuantityPrecision))
		out.Quantity = res
		switch {
		case res.Normalized():
			rec[constants.FieldQuantity] = v
			rec[constants.FieldUnit] = constants.UnitKG
			if res == normalize.QuantityConverted {
				log.Debug("reconcile.quantity.converted", "raw", raw, "kg", v)
			}
		case res == normalize.QuantityUnparseable:
			log.Warn("reconcile.quantity.unparseable", "raw", raw)
		default:
			log.Debug("reconcile.quantity.no_unit", "raw", raw)
		}
	}

	if raw, ok := rec[constants.FieldRequiredDeliveryDate]; ok {
		if v, parsed := normalize.Date(raw); parsed {
			rec[constants.FieldRequiredDeliveryDate] = v
			out.DateNormalized = true
		} else {
			log.Warn("reconcile.date.unparsed", "raw", raw)
		}
	}

	if !profile.NormalizeOnly {
		if profile.SoldTo != nil {
			rec[profile.SoldTo.Key] = profile.SoldTo.Value
		}

		if addr, ok := rec[constants.FieldDeliverTo]; ok {
			m := normalize.NewAddressMatcher(profile.Threshold(r.opts.MatchThreshold)).Match(addr, profile.ShipTo)
			out.ShipTo = &m
			switch {
			case m.Matched:
				rec[constants.FieldDeliverTo] = m.Code
				log.Debug("reconcile.address.matched", "code", m.Code, "ratio", m.Ratio)
			case r.opts.KeepAddressOnMiss:
				log.Warn("reconcile.address.unmatched", "best", m.Best, "ratio", m.Ratio, "kept", true)
			default:
				rec[constants.FieldDeliverTo] = constants.UnmatchedShipTo
				log.Warn("reconcile.address.unmatched", "best", m.Best, "ratio", m.Ratio)
			}
		}
	}

	if r.opts.RequireFields {
		for _, f := range constants.RequiredFields {
			if v, ok := rec[f]; !ok || v == "" {
				out.Warnings = append(out.Warnings, "missing field: "+f)
			}
		}
	}
	return out
}

// ReconcileMany reconciles each line of a multi-line document independently
// against the same profile, preserving order.
func (r *Reconciler) ReconcileMany(records []Record, profile *profiles.Profile) []Outcome {
	out := make([]Outcome, len(records))
	for i, rec := range records {
		out[i] = r.Reconcile(rec, profile)
	}
	return out
}

// ReconcileDocument parses raw upstream output and reconciles every record
// in it. A parse failure returns an ExtractionFormatError and no records.
func (r *Reconciler) ReconcileDocument(raw string, profile *profiles.Profile) ([]Outcome, error) {
	records, err := Parse(raw)
	if err != nil {
		r.logger.Warn("reconcile.parse.failed", "customer", profile.Code, "err", err)
		return nil, err
	}
	return r.ReconcileMany(records, profile), nil
}

// Records strips outcomes down to their canonical records.
func Records(outcomes []Outcome) []Record {
	out := make([]Record, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Record
	}
	return out
}
