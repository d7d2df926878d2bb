// Package catalog builds the immutable schema descriptor set the prompt
// assembler renders from.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Column is one declared column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// ForeignKey is a declared edge from a source column to a target table column.
type ForeignKey struct {
	Column       string `json:"column"`
	TargetSchema string `json:"target_schema,omitempty"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// Descriptor describes one table. It is never modified after Build returns.
type Descriptor struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	RowCount    int64            `json:"row_count"`
	Columns     []Column         `json:"columns"`
	ForeignKeys []ForeignKey     `json:"foreign_keys,omitempty"`
	Samples     []map[string]any `json:"samples,omitempty"`
}

// QualifiedName returns schema.table, or the bare name when no schema is known.
func (d *Descriptor) QualifiedName() string {
	if d.Schema == "" {
		return d.Name
	}
	return d.Schema + "." + d.Name
}

// Describe renders the descriptor as a CREATE TABLE statement followed by
// comment blocks for foreign keys and sample data.
func (d *Descriptor) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", d.QualifiedName())
	for i, c := range d.Columns {
		b.WriteString("  ")
		b.WriteString(c.Name)
		b.WriteString(" ")
		b.WriteString(c.Type)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(d.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")

	if len(d.ForeignKeys) > 0 {
		b.WriteString("\n/* Foreign Keys:\n")
		for _, fk := range d.ForeignKeys {
			target := fk.TargetTable
			if fk.TargetSchema != "" {
				target = fk.TargetSchema + "." + fk.TargetTable
			}
			fmt.Fprintf(&b, "   - %s -> %s.%s\n", fk.Column, target, fk.TargetColumn)
		}
		b.WriteString("*/")
	}

	b.WriteString("\n/* Sample data:\n")
	b.WriteString(d.sampleText())
	b.WriteString("\n*/")

	return b.String()
}

// sampleText renders samples column-wise as "col: v1, v2, v3" in column order.
func (d *Descriptor) sampleText() string {
	if len(d.Samples) == 0 {
		return "No sample data available"
	}

	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		for k := range d.Samples[0] {
			names = append(names, k)
		}
		sort.Strings(names)
	}

	lines := make([]string, 0, len(names))
	for _, name := range names {
		values := make([]string, 0, len(d.Samples))
		for _, row := range d.Samples {
			values = append(values, formatValue(row[name]))
		}
		lines = append(lines, name+": "+strings.Join(values, ", "))
	}
	return strings.Join(lines, "\n")
}

const maxSampleValueLen = 60

func formatValue(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(val))
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxSampleValueLen {
		s = s[:maxSampleValueLen] + "..."
	}
	return s
}
