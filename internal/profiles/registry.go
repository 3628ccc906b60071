package profiles

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/po-extractor/internal/common"
)

const (
	// DefaultCode is the generic profile used when a document has no dedicated layout.
	DefaultCode = "DEFAULT"
	// DefaultUploadCode is assumed when an upload names no customer.
	DefaultUploadCode = "BA"
)

// Registry maps customer codes to immutable profiles. It is built once and
// then only read, so it is safe for concurrent use without locking.
type Registry struct {
	order  []string
	byCode map[string]*Profile
}

// NewRegistry validates and copies the given profiles, keeping their order.
func NewRegistry(list ...*Profile) (*Registry, error) {
	r := &Registry{byCode: make(map[string]*Profile, len(list))}
	for _, p := range list {
		if err := r.put(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) put(p *Profile) error {
	if p == nil {
		return common.NewAppError("INVALID_PROFILE", "nil profile", common.ErrInvalidInput)
	}
	cp := p.clone()
	if err := validate(cp); err != nil {
		return err
	}
	if _, exists := r.byCode[cp.Code]; !exists {
		r.order = append(r.order, cp.Code)
	}
	r.byCode[cp.Code] = cp
	return nil
}

func validate(p *Profile) error {
	if p.Code == "" {
		return common.NewAppError("INVALID_PROFILE", "customer code is required", common.ErrInvalidInput)
	}
	if p.SoldTo != nil && (p.SoldTo.Key == "" || p.SoldTo.Value == "") {
		return common.NewAppError("INVALID_PROFILE", fmt.Sprintf("%s: sold-to key and value are required", p.Code), common.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(p.ShipTo))
	for _, c := range p.ShipTo {
		if c.Code == "" {
			return common.NewAppError("INVALID_PROFILE", fmt.Sprintf("%s: ship-to code is required", p.Code), common.ErrInvalidInput)
		}
		if _, dup := seen[c.Code]; dup {
			return common.NewAppError("INVALID_PROFILE", fmt.Sprintf("%s: duplicate ship-to code %q", p.Code, c.Code), common.ErrInvalidInput)
		}
		seen[c.Code] = struct{}{}
	}
	if p.QuantityPrecision != nil && *p.QuantityPrecision < 0 {
		return common.NewAppError("INVALID_PROFILE", fmt.Sprintf("%s: quantity precision must not be negative", p.Code), common.ErrInvalidInput)
	}
	if p.MatchThreshold != nil && (*p.MatchThreshold < 0 || *p.MatchThreshold > 1) {
		return common.NewAppError("INVALID_PROFILE", fmt.Sprintf("%s: match threshold must be within [0,1]", p.Code), common.ErrInvalidInput)
	}
	switch p.Pages {
	case PagesAll, PagesFirstTwo, PagesAllButLast:
	default:
		return common.NewAppError("INVALID_PROFILE", fmt.Sprintf("%s: unknown page policy %q", p.Code, p.Pages), common.ErrInvalidInput)
	}
	return nil
}

// With returns a new registry where overlay profiles replace or extend r.
func (r *Registry) With(overlay ...*Profile) (*Registry, error) {
	out := &Registry{
		order:  append([]string(nil), r.order...),
		byCode: make(map[string]*Profile, len(r.byCode)+len(overlay)),
	}
	for k, v := range r.byCode {
		out.byCode[k] = v
	}
	for _, p := range overlay {
		if err := out.put(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Lookup finds a profile by exact, case-insensitive code. Unknown codes
// return an AppError wrapping common.ErrUnrecognizedCustomer.
func (r *Registry) Lookup(code string) (*Profile, error) {
	key := strings.ToUpper(strings.TrimSpace(code))
	if p, ok := r.byCode[key]; ok {
		return p, nil
	}
	return nil, common.NewAppError(common.CodeUnrecognizedCustomer, fmt.Sprintf("unrecognized customer %q", code), common.ErrUnrecognizedCustomer)
}

// Codes returns registered codes in registration order.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.order...)
}

// Profiles returns registered profiles in registration order.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.byCode[c])
	}
	return out
}
