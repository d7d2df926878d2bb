package sql

import (
	"errors"
	"strings"
	"testing"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
)

func TestValidate_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "top with alias",
			input:    "SELECT TOP 5 a.x FROM dim_a a",
			expected: "SELECT TOP 5 a.x FROM dim_a a",
		},
		{
			name:     "trailing semicolon and whitespace",
			input:    "  SELECT branch_name FROM dim_branch;  ",
			expected: "SELECT branch_name FROM dim_branch",
		},
		{
			name:     "short select without from",
			input:    "SELECT 1 AS answer_value",
			expected: "SELECT 1 AS answer_value",
		},
		{
			name:     "recursive cte",
			input:    "WITH n AS (SELECT 1 AS x UNION ALL SELECT x + 1 FROM n WHERE x < 5) SELECT x FROM n",
			expected: "WITH n AS (SELECT 1 AS x UNION ALL SELECT x + 1 FROM n WHERE x < 5) SELECT x FROM n",
		},
		{
			name:     "cte with column list",
			input:    "WITH totals (branch, amount) AS (SELECT b, SUM(a) FROM f GROUP BY b) SELECT * FROM totals",
			expected: "WITH totals (branch, amount) AS (SELECT b, SUM(a) FROM f GROUP BY b) SELECT * FROM totals",
		},
		{
			name:     "declare batch",
			input:    "DECLARE @latest INT = 2024\nSELECT COUNT(*) FROM fact_loan WHERE year = @latest",
			expected: "DECLARE @latest INT = 2024\nSELECT COUNT(*) FROM fact_loan WHERE year = @latest",
		},
		{
			name:     "keyword inside literal",
			input:    "SELECT * FROM dim_note WHERE body = 'please DROP by; (soon'",
			expected: "SELECT * FROM dim_note WHERE body = 'please DROP by; (soon'",
		},
		{
			name:     "keyword as part of identifier",
			input:    "SELECT created_date, last_update_by FROM dim_member",
			expected: "SELECT created_date, last_update_by FROM dim_member",
		},
		{
			name:     "keyword in bracketed identifier",
			input:    "SELECT [update], \"delete\" FROM dim_audit",
			expected: "SELECT [update], \"delete\" FROM dim_audit",
		},
		{
			name:     "escaped quote in literal",
			input:    "SELECT * FROM dim_member WHERE last_name = 'O''Brien'",
			expected: "SELECT * FROM dim_member WHERE last_name = 'O''Brien'",
		},
		{
			name:     "lower case keywords",
			input:    "select branch_name from dim_branch where region = 'West'",
			expected: "select branch_name from dim_branch where region = 'West'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.input)
			if !result.Valid() {
				t.Fatalf("unexpected rejection %s: %s", result.Reason, result.Message)
			}
			if result.Err() != nil {
				t.Errorf("expected nil error, got %v", result.Err())
			}
			if result.SQL != tt.expected {
				t.Errorf("got %q, want %q", result.SQL, tt.expected)
			}
		})
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason Reason
	}{
		{name: "empty", input: "", reason: ReasonEmpty},
		{name: "whitespace only", input: "  \n\t ", reason: ReasonEmpty},
		{name: "too short", input: "SELECT x FROM t", reason: ReasonTooShort},
		{name: "too short after semicolon strip", input: "SELECT a FROM tbl;;", reason: ReasonTooShort},
		{name: "starts with show", input: "SHOW TABLES FROM warehouse_db", reason: ReasonInvalidStart},
		{name: "starts with parenthesis", input: "(SELECT a FROM t) UNION (SELECT b FROM u)", reason: ReasonInvalidStart},
		{name: "starts with prose", input: "Here is the query: SELECT a FROM t", reason: ReasonInvalidStart},
		{name: "delete", input: "DELETE FROM fact_loan WHERE year = 2024", reason: ReasonForbiddenKeyword},
		{name: "short drop", input: "DROP TABLE x", reason: ReasonForbiddenKeyword},
		{name: "short truncate", input: "TRUNCATE t", reason: ReasonForbiddenKeyword},
		{name: "fragment", input: "SEL", reason: ReasonTooShort},
		{name: "drop after select", input: "SELECT * FROM dim_a; DROP TABLE dim_a", reason: ReasonForbiddenKeyword},
		{name: "exec in select", input: "SELECT * FROM dim_a WHERE x = 1 EXEC sp_who", reason: ReasonForbiddenKeyword},
		{name: "lower case update", input: "with x as (select 1 as a) update dim_a set a = 1", reason: ReasonForbiddenKeyword},
		{name: "cte followed by values", input: "WITH x AS (SELECT 1 AS a FROM t) VALUES (1), (2)", reason: ReasonModifyingCTE},
		{name: "select into", input: "SELECT * INTO backup_members FROM dim_member", reason: ReasonSelectInto},
		{name: "cte select into", input: "WITH m AS (SELECT * FROM dim_member) SELECT * INTO copy FROM m", reason: ReasonSelectInto},
		{name: "two selects", input: "SELECT a FROM dim_a; SELECT b FROM dim_b", reason: ReasonMultipleStatements},
		{name: "unbalanced open", input: "SELECT COUNT(* FROM fact_loan", reason: ReasonUnbalancedParens},
		{name: "unbalanced close first", input: "SELECT a) FROM (fact_loan", reason: ReasonUnbalancedParens},
		{name: "missing from", input: "SELECT member_count, loan_total, branch_name", reason: ReasonMissingFrom},
		{name: "injection in literal", input: "SELECT * FROM dim_member WHERE name = ''' OR ''1''=''1'", reason: ReasonInjection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.input)
			if result.Valid() {
				t.Fatalf("expected rejection %s, got valid %q", tt.reason, result.SQL)
			}
			if result.Reason != tt.reason {
				t.Errorf("reason = %s, want %s (%s)", result.Reason, tt.reason, result.Message)
			}
			if result.Message == "" {
				t.Error("expected a message")
			}
			if !errors.Is(result.Err(), apperrors.ErrValidationFailure) {
				t.Errorf("expected ErrValidationFailure, got %v", result.Err())
			}
		})
	}
}

func TestValidate_ForbiddenKeywordsListed(t *testing.T) {
	result := Validate("SELECT * FROM dim_a WHERE 1 = 1 GRANT ALL TO x REVOKE ALL FROM y")
	if result.Reason != ReasonForbiddenKeyword {
		t.Fatalf("reason = %s", result.Reason)
	}
	if !strings.Contains(result.Message, "GRANT, REVOKE") {
		t.Errorf("message %q does not list both keywords", result.Message)
	}
}

func TestValidate_CanonicalRejectionsAreDistinct(t *testing.T) {
	tests := []struct {
		input  string
		reason Reason
	}{
		{"DROP TABLE x", ReasonForbiddenKeyword},
		{"SELECT * FROM t WHERE (", ReasonUnbalancedParens},
		{"", ReasonEmpty},
		{"SEL", ReasonTooShort},
	}

	seen := make(map[Reason]string)
	for _, tt := range tests {
		result := Validate(tt.input)
		if result.Reason != tt.reason {
			t.Errorf("Validate(%q) reason = %s, want %s (%s)", tt.input, result.Reason, tt.reason, result.Message)
		}
		if prev, ok := seen[result.Reason]; ok {
			t.Errorf("%q and %q share reason %s", prev, tt.input, result.Reason)
		}
		seen[result.Reason] = tt.input
	}
}

func TestValidate_DistinctReasons(t *testing.T) {
	inputs := []string{
		"SELECT a FROM dim_a; SELECT b FROM dim_b",
		"SELECT COUNT(* FROM fact_loan",
		"SELECT member_count, loan_total, branch_name",
		"SHOW TABLES FROM warehouse_db",
	}
	seen := make(map[Reason]string)
	for _, in := range inputs {
		r := Validate(in).Reason
		if prev, ok := seen[r]; ok {
			t.Errorf("%q and %q share reason %s", prev, in, r)
		}
		seen[r] = in
	}
}

func TestScan(t *testing.T) {
	sc := scan("SELECT 'a;b' AS x, [c;d] -- trailing ;\nFROM t /* ; */ WHERE y = 'it''s'")

	if strings.Contains(sc.code, ";") {
		t.Errorf("code should have no semicolons: %q", sc.code)
	}
	if len(sc.code) != len("SELECT 'a;b' AS x, [c;d] -- trailing ;\nFROM t /* ; */ WHERE y = 'it''s'") {
		t.Errorf("code length changed")
	}
	if want := []string{"a;b", "it's"}; strings.Join(sc.literals, "|") != strings.Join(want, "|") {
		t.Errorf("literals = %q, want %q", sc.literals, want)
	}
	if strings.Contains(sc.text, "trailing") {
		t.Errorf("line comment not stripped: %q", sc.text)
	}
	if !strings.Contains(sc.text, "'it''s'") {
		t.Errorf("literal not kept verbatim: %q", sc.text)
	}
}

func TestStripTrailingSemicolon(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT 1;", "SELECT 1"},
		{"SELECT 1 ;  \n", "SELECT 1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripTrailingSemicolon(tt.input); got != tt.expected {
			t.Errorf("stripTrailingSemicolon(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
