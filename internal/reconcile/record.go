package reconcile

import (
	"maps"
	"slices"
)

// Record is a flat field-name to string mapping, used both for records
// extracted from a document and for their reconciled form.
type Record map[string]string

// Clone returns an independent copy.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	return maps.Clone(r)
}

// Get returns the field value and whether the field is present.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}
