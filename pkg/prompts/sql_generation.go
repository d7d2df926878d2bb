// Package prompts renders the text sent to the generation model.
// Every function here is pure: identical inputs give byte-identical output.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ddsprasad/data-sense-ai/pkg/rules"
)

// SystemMessage frames the model for every generation call.
const SystemMessage = "You are a senior data analyst who writes correct, read-only SQL for a star-schema data warehouse. " +
	"You answer with a single SQL statement in a ```sql fenced block and nothing else."

// SchemaSource renders descriptors for the named tables, in the given order,
// skipping names it does not know. *catalog.Set implements it.
type SchemaSource interface {
	Describe(tables []string) []string
}

// Prior is the context carried from a succeeded question into a follow-up.
type Prior struct {
	Question string
	SQL      string
}

// Request holds everything a generation prompt is built from.
type Request struct {
	Question string
	// Dialect names the SQL dialect, e.g. "Microsoft SQL Server (T-SQL)".
	Dialect string
	// Tables is the shortlist. When empty, DefaultTables is used instead.
	Tables        []string
	DefaultTables []string
	Schema        SchemaSource
	Rules         *rules.Store
	Temporal      rules.TemporalContext
	Prior         *Prior
}

// EffectiveTables returns the tables the schema section is rendered for.
func (r Request) EffectiveTables() []string {
	if len(r.Tables) > 0 {
		return r.Tables
	}
	return r.DefaultTables
}

var baseHardRules = []string{
	"Use only table and column names that appear in the DATABASE SCHEMA section. Never invent or guess a name.",
	"Never use GETDATE(), NOW(), CURRENT_DATE, CURRENT_TIMESTAMP or SYSDATETIME(). Resolve relative periods from the TEMPORAL CONTEXT section.",
	"Never return _key or _id columns in the final SELECT. Join to the dimension table and return its descriptive column instead.",
	"Write exactly one read-only statement starting with SELECT or WITH. Never modify data or schema.",
}

// Assemble builds the generation prompt. Sections always appear in this order:
// role, hard rules, schema, business rules, temporal context, prior context
// (follow-ups only), question, output format.
func Assemble(req Request) string {
	tables := req.EffectiveTables()
	var b strings.Builder

	b.WriteString("### ROLE\n")
	fmt.Fprintf(&b, "You translate business questions into %s queries against a star-schema data warehouse.\n", dialectName(req.Dialect))
	if hint := dialectHint(req.Dialect); hint != "" {
		b.WriteString(hint)
		b.WriteString("\n")
	}

	b.WriteString("\n### HARD RULES\n")
	n := 1
	for _, rule := range baseHardRules {
		fmt.Fprintf(&b, "%d. %s\n", n, rule)
		n++
	}
	for _, rec := range req.Rules.HardRules(tables) {
		fmt.Fprintf(&b, "%d. %s\n", n, strings.TrimSpace(rec.Text))
		n++
	}

	b.WriteString("\n### DATABASE SCHEMA\n")
	var described []string
	if req.Schema != nil {
		described = req.Schema.Describe(tables)
	}
	if len(described) == 0 {
		b.WriteString("No schema is available for the selected tables.\n")
	}
	for i, d := range described {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(d)
		b.WriteString("\n")
	}

	if scoped := req.Rules.ForTables(tables); len(scoped) > 0 {
		b.WriteString("\n### BUSINESS RULES\n")
		for _, rec := range scoped {
			writeScopedRule(&b, rec)
		}
	}

	b.WriteString("\n### TEMPORAL CONTEXT\n")
	for _, s := range req.Temporal.Statements() {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}

	if req.Prior != nil && (req.Prior.Question != "" || req.Prior.SQL != "") {
		b.WriteString("\n### PREVIOUS QUESTION\n")
		b.WriteString("This is a follow-up. Build on the previous query where it helps; do not repeat it unchanged.\n")
		fmt.Fprintf(&b, "Previous question: %s\n", req.Prior.Question)
		b.WriteString("Previous SQL:\n```sql\n")
		b.WriteString(req.Prior.SQL)
		b.WriteString("\n```\n")
	}

	b.WriteString("\n### QUESTION\n")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n")

	b.WriteString("\n### OUTPUT FORMAT\n")
	b.WriteString(outputFormat)

	return b.String()
}

const outputFormat = "Return a single SQL statement inside one ```sql fenced block. No explanation, no comments, no prose before or after the block.\n"

func writeScopedRule(b *strings.Builder, rec rules.Record) {
	text := strings.TrimSpace(rec.Text)
	switch rec.Kind {
	case rules.KindExample:
		fmt.Fprintf(b, "- Verified example (%s):\n%s\n", rec.Name, text)
	case rules.KindMetric:
		fmt.Fprintf(b, "- Metric %s: %s\n", rec.Name, text)
	default:
		if rec.Name != "" {
			fmt.Fprintf(b, "- %s: %s\n", rec.Name, text)
		} else {
			fmt.Fprintf(b, "- %s\n", text)
		}
	}
}

func dialectName(dialect string) string {
	if dialect == "" {
		return "SQL"
	}
	return dialect
}

func dialectHint(dialect string) string {
	d := strings.ToLower(dialect)
	switch {
	case strings.Contains(d, "sql server"), strings.Contains(d, "t-sql"):
		return "Use TOP (n) to limit rows, never LIMIT. Qualify tables with their schema."
	case strings.Contains(d, "postgres"):
		return "Use LIMIT n to limit rows, never TOP. Qualify tables with their schema."
	}
	return ""
}

// AssembleCorrection extends base with the failed query and the verbatim
// database error, asking the model to repair only the offending part.
func AssembleCorrection(base, failedSQL, dbError string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n### CORRECTION\n")
	b.WriteString("The previous query failed with error: ")
	b.WriteString(dbError)
	b.WriteString("\n\nFailed query:\n```sql\n")
	b.WriteString(failedSQL)
	b.WriteString("\n```\n")
	b.WriteString("Fix only the part of the query that caused this error. Check every table and column name against the DATABASE SCHEMA section. Keep everything else unchanged.\n")
	b.WriteString(outputFormat)
	return b.String()
}

// AssembleReminder extends base after an attempt produced no usable SQL.
// reason is the extraction or validation failure shown to the model.
func AssembleReminder(base, reason string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n### REMINDER\n")
	fmt.Fprintf(&b, "Your previous answer was rejected: %s.\n", reason)
	b.WriteString("Answer with exactly one read-only SELECT or WITH statement. ")
	b.WriteString(outputFormat)
	return b.String()
}
