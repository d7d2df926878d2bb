package sql

import (
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		found bool
	}{
		{
			name:  "sql fence",
			raw:   "Here you go:\n```sql\nSELECT COUNT(*) FROM fact_loan;\n```\nThis counts loans.",
			want:  "SELECT COUNT(*) FROM fact_loan",
			found: true,
		},
		{
			name:  "sql fence upper case tag",
			raw:   "```SQL\nSELECT a FROM dim_a\n```",
			want:  "SELECT a FROM dim_a",
			found: true,
		},
		{
			name:  "sql fence wins over earlier plain fence",
			raw:   "```\nSELECT 'draft' AS x FROM t\n```\nfinal:\n```sql\nSELECT final_col FROM dim_final\n```",
			want:  "SELECT final_col FROM dim_final",
			found: true,
		},
		{
			name:  "untagged fence",
			raw:   "```\nWITH t AS (SELECT 1 AS x) SELECT x FROM t\n```",
			want:  "WITH t AS (SELECT 1 AS x) SELECT x FROM t",
			found: true,
		},
		{
			name:  "fence with other tag skipped unless it holds a query",
			raw:   "```json\n{\"a\": 1}\n```\n```tsql\nSELECT b FROM dim_b\n```",
			want:  "SELECT b FROM dim_b",
			found: true,
		},
		{
			name:  "bare select cut at blank line",
			raw:   "SELECT branch_name, COUNT(*)\nFROM dim_branch\nGROUP BY branch_name;\n\nThe query groups by branch.",
			want:  "SELECT branch_name, COUNT(*)\nFROM dim_branch\nGROUP BY branch_name",
			found: true,
		},
		{
			name:  "bare select cut at explanation marker",
			raw:   "SELECT a FROM dim_a\nExplanation: selects a",
			want:  "SELECT a FROM dim_a",
			found: true,
		},
		{
			name:  "bare select cut at this query",
			raw:   "Answer:\nSELECT a FROM dim_a WHERE b = 1\nThis query filters on b.",
			want:  "SELECT a FROM dim_a WHERE b = 1",
			found: true,
		},
		{
			name:  "prose select skipped",
			raw:   "We select the branch table first.\nSELECT * FROM dim_branch",
			want:  "SELECT * FROM dim_branch",
			found: true,
		},
		{
			name:  "keyword in preamble before blank line",
			raw:   "Here is the SELECT query you need:\n\nSELECT branch_name FROM dim_branch",
			want:  "SELECT branch_name FROM dim_branch",
			found: true,
		},
		{
			name:  "keyword in preamble on previous line",
			raw:   "Use a SELECT with a join:\nSELECT b.branch_name FROM dim_branch b",
			want:  "SELECT b.branch_name FROM dim_branch b",
			found: true,
		},
		{
			name: "mid-line keyword without from",
			raw:  "You could use a SELECT statement for this.",
		},
		{
			name:  "bare cte",
			raw:   "WITH latest AS (SELECT MAX(year) AS y FROM dim_date)\nSELECT y FROM latest\nNote: uses the date dimension",
			want:  "WITH latest AS (SELECT MAX(year) AS y FROM dim_date)\nSELECT y FROM latest",
			found: true,
		},
		{
			name:  "prose with is not a cte",
			raw:   "With this in mind, SELECT a FROM dim_a",
			want:  "SELECT a FROM dim_a",
			found: true,
		},
		{
			name:  "comments stripped",
			raw:   "```sql\n-- total loans\nSELECT COUNT(*) /* all rows */ FROM fact_loan -- here\nWHERE note = 'a--b'\n```",
			want:  "SELECT COUNT(*)   FROM fact_loan\nWHERE note = 'a--b'",
			found: true,
		},
		{
			name:  "reasoning block dropped",
			raw:   "<think>maybe SELECT wrong FROM nowhere</think>\n```sql\nSELECT right_col FROM dim_right\n```",
			want:  "SELECT right_col FROM dim_right",
			found: true,
		},
		{
			name:  "stray closing think tag",
			raw:   "I think SELECT x FROM y is wrong.</think>SELECT z FROM dim_z",
			want:  "SELECT z FROM dim_z",
			found: true,
		},
		{
			name:  "empty sql fence falls through",
			raw:   "```sql\n```\nSELECT a FROM dim_a",
			want:  "SELECT a FROM dim_a",
			found: true,
		},
		{
			name: "no sql",
			raw:  "I cannot answer that question with the available tables.",
		},
		{
			name: "empty response",
			raw:  "",
		},
		{
			name: "only comments",
			raw:  "```sql\n-- nothing\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Extract(tt.raw)
			if found != tt.found {
				t.Fatalf("found = %v, want %v (got %q)", found, tt.found, got)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractThenValidate(t *testing.T) {
	raw := "```sql\nSELECT TOP 5 a.x FROM dim_a a;\n```"
	sqlQuery, ok := Extract(raw)
	if !ok {
		t.Fatal("expected extraction")
	}
	if r := Validate(sqlQuery); !r.Valid() {
		t.Errorf("expected valid, got %s: %s", r.Reason, r.Message)
	}
}
