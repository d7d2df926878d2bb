// Package topics shortlists candidate warehouse tables for a question by
// similarity between the question and curated keyword phrases.
package topics

import "strings"

// Entry maps a keyword phrase (and its synonyms) to the tables that answer it.
// Keywords need not be unique and entries may reference overlapping tables.
type Entry struct {
	Keyword string   `yaml:"keyword" json:"keyword"`
	Tables  []string `yaml:"tables" json:"tables"`
	Related []string `yaml:"related_keywords,omitempty" json:"related,omitempty"`
}

// Phrases returns the keyword followed by its related phrases, skipping blanks.
func (e Entry) Phrases() []string {
	phrases := make([]string, 0, 1+len(e.Related))
	if k := strings.TrimSpace(e.Keyword); k != "" {
		phrases = append(phrases, k)
	}
	for _, r := range e.Related {
		if r = strings.TrimSpace(r); r != "" {
			phrases = append(phrases, r)
		}
	}
	return phrases
}

// AllTables returns the distinct tables referenced by entries, in first-seen order.
func AllTables(entries []Entry) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range entries {
		for _, t := range e.Tables {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}
