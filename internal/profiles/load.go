package profiles

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/normalize"
)

// fileProfile is the TOML shape of one [[customer]] table.
type fileProfile struct {
	Code                string                `toml:"code"`
	Label               string                `toml:"label"`
	SoldToKey           string                `toml:"sold_to_key"`
	SoldTo              string                `toml:"sold_to"`
	ShipTo              []normalize.Candidate `toml:"ship_to"`
	QuantityPrecision   *int                  `toml:"quantity_precision"`
	MatchThreshold      *float64              `toml:"match_threshold"`
	NormalizeOnly       bool                  `toml:"normalize_only"`
	Pages               string                `toml:"pages"`
	ExtractFields       []string              `toml:"extract_fields"`
	ExtractInstructions []string              `toml:"extract_instructions"`
	RefineInstructions  []string              `toml:"refine_instructions"`
}

type profileFile struct {
	Customers []fileProfile `toml:"customer"`
}

// Decode reads [[customer]] tables from TOML.
func Decode(r io.Reader) ([]*Profile, error) {
	var f profileFile
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, common.NewAppError("INVALID_PROFILE", "decode profiles", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	out := make([]*Profile, 0, len(f.Customers))
	for _, fp := range f.Customers {
		p := &Profile{
			Code:                fp.Code,
			Label:               fp.Label,
			ShipTo:              fp.ShipTo,
			QuantityPrecision:   fp.QuantityPrecision,
			MatchThreshold:      fp.MatchThreshold,
			NormalizeOnly:       fp.NormalizeOnly,
			Pages:               PagePolicy(fp.Pages),
			ExtractFields:       fp.ExtractFields,
			ExtractInstructions: fp.ExtractInstructions,
			RefineInstructions:  fp.RefineInstructions,
		}
		if fp.SoldTo != "" {
			key := fp.SoldToKey
			if key == "" {
				key = soldToKey
			}
			p.SoldTo = &SoldTo{Key: key, Value: fp.SoldTo}
		}
		out = append(out, p)
	}
	return out, nil
}

// Load returns the builtin registry overlaid with the profiles in path.
// An empty path returns the builtin registry.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := Builtin()
	if path == "" {
		return base, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles file: %w", err)
	}
	defer f.Close()

	overlay, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reg, err := base.With(overlay...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("profiles.loaded", "path", path, "overlay", len(overlay), "total", len(reg.Codes()))
	return reg, nil
}
