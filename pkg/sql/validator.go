// Package sql extracts a single statement from model output and checks that
// it is safe to run against a read-only warehouse.
package sql

import (
	"fmt"
	"strings"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
)

// MinStatementLength is the shortest statement accepted.
const MinStatementLength = 20

// bareSelectLength is the length below which a SELECT needs no FROM (SELECT 1 AS x).
const bareSelectLength = 30

// Reason identifies which check rejected a statement.
type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonTooShort           Reason = "too_short"
	ReasonInvalidStart       Reason = "invalid_start"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonModifyingCTE       Reason = "modifying_cte"
	ReasonSelectInto         Reason = "select_into"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonUnbalancedParens   Reason = "unbalanced_parentheses"
	ReasonMissingFrom        Reason = "missing_from"
	ReasonInjection          Reason = "injection"
)

// ForbiddenKeywords are rejected anywhere outside literals and quoted identifiers.
var ForbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "INSERT", "UPDATE", "ALTER", "CREATE",
	"EXEC", "EXECUTE", "MERGE", "GRANT", "REVOKE",
}

var (
	forbidden    = toSet(ForbiddenKeywords)
	validStarts  = toSet([]string{"SELECT", "WITH", "DECLARE"})
	cteMainVerbs = toSet([]string{"SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "VALUES", "TABLE"})
)

// Result is the outcome of Validate. A zero Reason means the statement passed.
type Result struct {
	// SQL is the normalized statement (trimmed, trailing semicolon removed).
	SQL     string
	Reason  Reason
	Message string
}

func (r Result) Valid() bool {
	return r.Reason == ""
}

// Err returns nil for a valid result, otherwise an error wrapping
// apperrors.ErrValidationFailure.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", apperrors.ErrValidationFailure, r.Message)
}

// Validate applies the read-only safety checks in a fixed order and reports
// the first one that fails. Forbidden keywords are checked before length. Column and table names are not checked; the
// database is the authority on those.
func Validate(sqlQuery string) Result {
	trimmed := strings.TrimSpace(sqlQuery)
	if trimmed == "" {
		return reject("", ReasonEmpty, "no SQL query extracted")
	}

	normalized := stripTrailingSemicolon(trimmed)
	sc := scan(normalized)
	tokens := words(sc.code)

	// A write is reported as such no matter how short it is.
	if found := forbiddenIn(tokens); len(found) > 0 {
		return reject(normalized, ReasonForbiddenKeyword,
			"query contains forbidden operations: "+strings.Join(found, ", "))
	}

	if len(normalized) < MinStatementLength {
		return reject(normalized, ReasonTooShort, "query too short to be valid")
	}

	if len(tokens) == 0 || !validStarts[tokens[0].text] || strings.TrimSpace(sc.code)[0] == '(' {
		return reject(normalized, ReasonInvalidStart,
			fmt.Sprintf("SQL must start with SELECT, WITH, or DECLARE; found: %s", preview(normalized)))
	}

	if tokens[0].text == "WITH" {
		if verb := cteMainVerb(tokens); verb != "SELECT" {
			if verb == "" {
				verb = "none"
			}
			return reject(normalized, ReasonModifyingCTE,
				fmt.Sprintf("common table expression must be followed by SELECT; found: %s", verb))
		}
	}

	for _, w := range tokens {
		if w.text == "INTO" {
			return reject(normalized, ReasonSelectInto, "query writes its result into a table")
		}
	}

	if strings.Contains(sc.code, ";") {
		return reject(normalized, ReasonMultipleStatements,
			"multiple SQL statements not allowed; only single statements are permitted")
	}

	if !balanced(sc.code) {
		return reject(normalized, ReasonUnbalancedParens, "unbalanced parentheses in query")
	}

	if hasWord(tokens, "SELECT") && !hasWord(tokens, "FROM") && len(normalized) >= bareSelectLength {
		return reject(normalized, ReasonMissingFrom, "SELECT query missing FROM clause")
	}

	if hit := CheckLiteralsForInjection(sc.literals); hit != nil {
		return reject(normalized, ReasonInjection,
			fmt.Sprintf("string literal matches an injection pattern (fingerprint %s)", hit.Fingerprint))
	}

	return Result{SQL: normalized}
}

func reject(sqlQuery string, reason Reason, msg string) Result {
	return Result{SQL: sqlQuery, Reason: reason, Message: msg}
}

func forbiddenIn(tokens []word) []string {
	var found []string
	seen := make(map[string]bool)
	for _, w := range tokens {
		if forbidden[w.text] && !seen[w.text] {
			seen[w.text] = true
			found = append(found, w.text)
		}
	}
	return found
}

// cteMainVerb returns the statement keyword that follows the CTE list.
func cteMainVerb(tokens []word) string {
	for _, w := range tokens[1:] {
		if w.depth == 0 && cteMainVerbs[w.text] {
			return w.text
		}
	}
	return ""
}

func balanced(code string) bool {
	depth := 0
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func hasWord(tokens []word, text string) bool {
	for _, w := range tokens {
		if w.text == text {
			return true
		}
	}
	return false
}

func preview(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
