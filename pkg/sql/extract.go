package sql

import (
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	sqlFence   = regexp.MustCompile("(?is)```sql\\b[ \\t]*\\r?\\n?(.*?)```")
	anyFence   = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")
	bareStart  = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)
	cteHead    = regexp.MustCompile(`(?i)^WITH\s+(RECURSIVE\s+)?[\w\[\]"]+\s*(\([^)]*\)\s*)?AS\s*\(`)
	blankLine  = regexp.MustCompile(`\n[ \t]*\r?\n`)
	fromClause = regexp.MustCompile(`(?i)\bFROM\b`)
	// Explanatory prose that follows a bare statement.
	explanation = regexp.MustCompile(`(?i)\n\s*(?:--\s*)?(?:Explanation|Note|This query)`)
)

// Extract pulls one SQL statement out of raw model output. The first
// matching form wins:
//
//  1. a ```sql fenced block
//  2. any fenced block whose content starts with SELECT or WITH
//  3. a bare SELECT or WITH statement, cut at the first blank line or
//     explanatory marker; statements opening a line are preferred, and a
//     mid-line one must reach a FROM
//
// Reasoning blocks (<think>...</think>) are dropped first. The result has
// comments stripped and no trailing semicolon. ok is false when nothing
// usable was found.
func Extract(raw string) (string, bool) {
	text := stripReasoning(raw)
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	if m := sqlFence.FindStringSubmatch(text); m != nil {
		if sqlQuery := clean(m[1]); sqlQuery != "" {
			return sqlQuery, true
		}
	}

	for _, m := range anyFence.FindAllStringSubmatch(text, -1) {
		if startsWithQuery(m[1]) {
			if sqlQuery := clean(m[1]); sqlQuery != "" {
				return sqlQuery, true
			}
		}
	}

	for _, c := range bareCandidates(text) {
		stmt := text[c.start:]
		if loc := blankLine.FindStringIndex(stmt); loc != nil {
			stmt = stmt[:loc[0]]
		}
		if loc := explanation.FindStringIndex(stmt); loc != nil {
			stmt = stmt[:loc[0]]
		}
		// Mid-sentence keywords are usually prose ("the SELECT query below").
		if !c.lineStart && !fromClause.MatchString(stmt) {
			continue
		}
		if sqlQuery := clean(stmt); sqlQuery != "" {
			return sqlQuery, true
		}
	}

	return "", false
}

func stripReasoning(raw string) string {
	text := thinkBlock.ReplaceAllString(raw, "")
	// An opening tag may have been part of the prompt.
	if i := strings.LastIndex(strings.ToLower(text), "</think>"); i >= 0 {
		text = text[i+len("</think>"):]
	}
	return text
}

func startsWithQuery(block string) bool {
	upper := strings.ToUpper(strings.TrimSpace(block))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

type bareCandidate struct {
	start     int
	lineStart bool
}

// bareCandidates lists where an unfenced statement may begin, those opening a
// line first. SELECT must be upper case or open a line so prose like "we
// select the" is skipped; WITH must introduce a CTE.
func bareCandidates(text string) []bareCandidate {
	var lineStarts, midLine []bareCandidate
	for _, loc := range bareStart.FindAllStringIndex(text, -1) {
		kw := text[loc[0]:loc[1]]
		opensLine := atLineStart(text, loc[0])
		if strings.EqualFold(kw, "WITH") {
			if !cteHead.MatchString(text[loc[0]:]) {
				continue
			}
		} else if kw != "SELECT" && !opensLine {
			continue
		}
		c := bareCandidate{start: loc[0], lineStart: opensLine}
		if opensLine {
			lineStarts = append(lineStarts, c)
		} else {
			midLine = append(midLine, c)
		}
	}
	return append(lineStarts, midLine...)
}

func atLineStart(text string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch text[j] {
		case '\n':
			return true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}

// clean strips comments, blank lines and the trailing semicolon.
func clean(stmt string) string {
	text := scan(stmt).text

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}

	return stripTrailingSemicolon(strings.TrimSpace(strings.Join(kept, "\n")))
}
