package model

import (
	"sort"
)

// Snapshot is an immutable mapping of flag key to Value, tagged with the
// validator of the response it was built from. Snapshots are never modified
// once constructed; share them freely.
type Snapshot struct {
	values    map[string]Value
	validator string
	version   uint64
}

// EmptySnapshot has no flags and no validator.
var EmptySnapshot = &Snapshot{values: map[string]Value{}}

// NewSnapshot copies values into a new Snapshot.
func NewSnapshot(values map[string]Value, validator string) *Snapshot {
	copied := make(map[string]Value, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Snapshot{values: copied, validator: validator}
}

// WithVersion returns a copy of s sharing its mapping, tagged with the
// configuration version it was fetched under.
func (s *Snapshot) WithVersion(version uint64) *Snapshot {
	return &Snapshot{values: s.values, validator: s.validator, version: version}
}

// Get returns the value stored under key.
func (s *Snapshot) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Snapshot) Len() int { return len(s.values) }

// Validator is the opaque token used for conditional re-fetch.
func (s *Snapshot) Validator() string { return s.validator }

// Version is the configuration version the snapshot was fetched under.
func (s *Snapshot) Version() uint64 { return s.version }

// Keys returns the flag keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the mapping.
func (s *Snapshot) Map() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Equal reports whether s and o hold the same keys and values. Validators are
// not compared.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.values) != len(o.values) {
		return false
	}
	for k, v := range s.values {
		ov, ok := o.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
