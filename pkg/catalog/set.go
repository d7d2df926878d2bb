package catalog

import (
	"strings"
	"time"
)

// Set is an immutable collection of descriptors indexed by name.
// Lookups accept either the bare table name or schema.table, case-insensitively.
type Set struct {
	descriptors []*Descriptor
	byName      map[string]*Descriptor
	builtAt     time.Time
}

// NewSet indexes descriptors. When two schemas hold the same bare table name
// the first one wins for bare lookups; qualified lookups stay exact.
func NewSet(descriptors []*Descriptor, builtAt time.Time) *Set {
	s := &Set{
		descriptors: descriptors,
		byName:      make(map[string]*Descriptor, len(descriptors)*2),
		builtAt:     builtAt,
	}
	for _, d := range descriptors {
		s.byName[strings.ToLower(d.QualifiedName())] = d
		bare := strings.ToLower(d.Name)
		if _, exists := s.byName[bare]; !exists {
			s.byName[bare] = d
		}
	}
	return s
}

// Get returns the descriptor for name.
func (s *Set) Get(name string) (*Descriptor, bool) {
	if s == nil {
		return nil, false
	}
	key := strings.ToLower(strings.Trim(strings.TrimSpace(name), "[]\""))
	key = strings.NewReplacer("].[", ".", "\".\"", ".").Replace(key)
	d, ok := s.byName[key]
	return d, ok
}

// Describe renders the named tables in the given order, skipping unknown names.
func (s *Set) Describe(tables []string) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if d, ok := s.Get(t); ok {
			out = append(out, d.Describe())
		}
	}
	return out
}

// Missing returns the names in tables that the set does not contain.
func (s *Set) Missing(tables []string) []string {
	var missing []string
	for _, t := range tables {
		if _, ok := s.Get(t); !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// Descriptors returns the descriptors in discovery order.
func (s *Set) Descriptors() []*Descriptor {
	if s == nil {
		return nil
	}
	out := make([]*Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Len returns the number of tables.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.descriptors)
}

// BuiltAt returns when the set was built.
func (s *Set) BuiltAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.builtAt
}
