package sql

import "strings"

// scanned is a statement split into what the server parses and what it
// treats as data.
type scanned struct {
	// code has comments blanked and the bodies of string literals and
	// quoted identifiers replaced by spaces. Offsets match the input.
	code string
	// text has comments removed and everything else verbatim.
	text string
	// literals holds the unescaped contents of each single-quoted literal.
	literals []string
}

// scan walks sqlQuery once, tracking quote and comment state.
// Handles '' escapes, "quoted" and [bracketed] identifiers, -- line
// comments and /* block */ comments. An unterminated literal or comment
// runs to the end of the input.
func scan(sqlQuery string) scanned {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBracket
		stateLineComment
		stateBlockComment
	)

	var code, text, literal strings.Builder
	var literals []string
	code.Grow(len(sqlQuery))
	text.Grow(len(sqlQuery))

	state := stateNormal
	blank := func(c byte) {
		if c == '\n' {
			code.WriteByte('\n')
		} else {
			code.WriteByte(' ')
		}
	}

	for i := 0; i < len(sqlQuery); i++ {
		c := sqlQuery[i]
		next := byte(0)
		if i+1 < len(sqlQuery) {
			next = sqlQuery[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == '-' && next == '-':
				state = stateLineComment
				code.WriteString("  ")
				i++
				continue
			case c == '/' && next == '*':
				state = stateBlockComment
				code.WriteString("  ")
				text.WriteByte(' ')
				i++
				continue
			case c == '\'':
				state = stateSingleQuote
				literal.Reset()
			case c == '"':
				state = stateDoubleQuote
			case c == '[':
				state = stateBracket
			}
			code.WriteByte(c)
			text.WriteByte(c)

		case stateSingleQuote:
			text.WriteByte(c)
			if c == '\'' {
				if next == '\'' {
					literal.WriteByte('\'')
					text.WriteByte(next)
					code.WriteString("  ")
					i++
					continue
				}
				state = stateNormal
				literals = append(literals, literal.String())
				code.WriteByte(c)
				continue
			}
			literal.WriteByte(c)
			blank(c)

		case stateDoubleQuote, stateBracket:
			text.WriteByte(c)
			closer := byte('"')
			if state == stateBracket {
				closer = ']'
			}
			if c == closer {
				if next == closer {
					text.WriteByte(next)
					code.WriteString("  ")
					i++
					continue
				}
				state = stateNormal
				code.WriteByte(c)
				continue
			}
			blank(c)

		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				code.WriteByte('\n')
				text.WriteByte('\n')
				continue
			}
			code.WriteByte(' ')

		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				code.WriteString("  ")
				i++
				continue
			}
			blank(c)
		}
	}

	if state == stateSingleQuote {
		literals = append(literals, literal.String())
	}

	return scanned{code: code.String(), text: text.String(), literals: literals}
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}

// words returns the upper-cased identifier-like tokens of code with the
// parenthesis depth each one appears at.
func words(code string) []word {
	var out []word
	depth := 0
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case isWordStart(c):
			j := i + 1
			for j < len(code) && isWordChar(code[j]) {
				j++
			}
			out = append(out, word{text: strings.ToUpper(code[i:j]), depth: depth, offset: i})
			i = j
		default:
			i++
		}
	}
	return out
}

type word struct {
	text   string
	depth  int
	offset int
}

func isWordStart(c byte) bool {
	return c == '_' || c == '@' || c == '#' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isWordStart(c) || c == '$' || (c >= '0' && c <= '9')
}
