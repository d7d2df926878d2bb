// Package rules holds the externally maintained rule records injected into prompts.
// Rule text is opaque: it is never parsed or executed, only copied verbatim.
package rules

import (
	"strings"
)

// Kind classifies a rule record by where it lands in the prompt.
type Kind string

const (
	KindGeneric       Kind = "generic"        // SQL discipline applying to every question
	KindDateHandling  Kind = "date_handling"  // how dates and periods must be written
	KindCommonMistake Kind = "common_mistake" // known wrong names or patterns
	KindBusiness      Kind = "business"       // domain definition with an SQL pattern
	KindMetric        Kind = "metric"         // metric formula
	KindExample       Kind = "example"        // verified question/SQL pair
)

// IsHardRule reports whether records of this kind belong to the enumerated
// rule list rather than the table-scoped rules section.
func (k Kind) IsHardRule() bool {
	switch k {
	case KindGeneric, KindDateHandling, KindCommonMistake:
		return true
	}
	return false
}

// Record is a single named rule.
type Record struct {
	Name   string   `yaml:"name" json:"name"`
	Kind   Kind     `yaml:"kind" json:"kind"`
	Text   string   `yaml:"text" json:"text"`
	Tables []string `yaml:"tables,omitempty" json:"tables,omitempty"` // empty = applies to every table
}

// AppliesTo reports whether the record concerns any of tables.
// Records without tables apply everywhere.
func (r Record) AppliesTo(tables []string) bool {
	if len(r.Tables) == 0 {
		return true
	}
	for _, rt := range r.Tables {
		for _, t := range tables {
			if strings.EqualFold(rt, t) {
				return true
			}
		}
	}
	return false
}

// Store is an immutable, versioned collection of rule records.
// It is safe for concurrent use because nothing mutates it after NewStore.
type Store struct {
	version string
	records []Record
}

// NewStore copies records into a new store. Record order is preserved and is
// the order rules appear in prompts.
func NewStore(version string, records []Record) *Store {
	copied := make([]Record, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		r.Tables = append([]string(nil), r.Tables...)
		if r.Kind == "" {
			r.Kind = KindGeneric
		}
		copied = append(copied, r)
	}
	return &Store{version: version, records: copied}
}

// Version identifies the loaded rule set.
func (s *Store) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// Len returns the number of records.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// HardRules returns generic, date-handling and common-mistake records that apply to tables.
func (s *Store) HardRules(tables []string) []Record {
	return s.filter(tables, true)
}

// ForTables returns business, metric and example records that apply to tables.
func (s *Store) ForTables(tables []string) []Record {
	return s.filter(tables, false)
}

func (s *Store) filter(tables []string, hard bool) []Record {
	if s == nil {
		return nil
	}
	var out []Record
	for _, r := range s.records {
		if r.Kind.IsHardRule() != hard {
			continue
		}
		if r.AppliesTo(tables) {
			out = append(out, r)
		}
	}
	return out
}
