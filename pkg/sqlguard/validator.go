package sqlguard

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
)

// forbiddenKeywords are statement types and side-effecting constructs that
// must never appear outside string literals in a generated query.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE", "MERGE", "COPY", "VACUUM", "LOCK", "REINDEX",
	"CALL", "DO", "SET", "COMMENT", "INTO",
}

// ValidateReadOnly checks that sql is a single read-only statement.
// All violations return an error wrapping apperrors.ErrUnsafeQuery.
func ValidateReadOnly(sqlQuery string) error {
	normalized := strings.TrimSpace(sqlQuery)
	normalized = strings.TrimSuffix(normalized, ";")
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return fmt.Errorf("%w: empty statement", apperrors.ErrUnsafeQuery)
	}

	if idx := semicolonOutsideStrings(normalized); idx >= 0 {
		return fmt.Errorf("%w: multiple statements", apperrors.ErrUnsafeQuery)
	}

	upper := strings.ToUpper(normalized)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("%w: only SELECT statements are allowed", apperrors.ErrUnsafeQuery)
	}

	masked := maskStringLiterals(normalized)
	maskedUpper := strings.ToUpper(masked)
	for _, kw := range forbiddenKeywords {
		if containsKeyword(maskedUpper, kw) {
			return fmt.Errorf("%w: forbidden keyword %s", apperrors.ErrUnsafeQuery, kw)
		}
	}

	for _, literal := range stringLiterals(normalized) {
		if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
			return fmt.Errorf("%w: injection pattern in literal (fingerprint %s)",
				apperrors.ErrUnsafeQuery, fingerprint)
		}
	}

	return nil
}

// semicolonOutsideStrings returns the index of the first semicolon outside
// string literals and quoted identifiers, or -1. Postgres escapes a quote by
// doubling it ('' or ""); under standard_conforming_strings a backslash is an
// ordinary character, so treating \' as an escape would let a literal ending
// in a backslash hide the rest of the statement.
func semicolonOutsideStrings(sqlQuery string) int {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal

	for i := 0; i < len(sqlQuery); i++ {
		char := sqlQuery[i]
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return i
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if char == '\'' {
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
					i++ // doubled quote stays inside the literal
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			if char == '"' {
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '"' {
					i++
				} else {
					state = stateNormal
				}
			}
		}
	}

	return -1
}

// maskStringLiterals replaces the contents of single-quoted literals with
// spaces so keyword scanning cannot be fooled by quoted text.
func maskStringLiterals(sqlQuery string) string {
	out := []byte(sqlQuery)
	inString := false

	for i := 0; i < len(out); i++ {
		if inString {
			if out[i] == '\'' {
				if i+1 < len(out) && out[i+1] == '\'' {
					out[i] = ' '
					out[i+1] = ' '
					i++
				} else {
					inString = false
				}
			} else {
				out[i] = ' '
			}
		} else if out[i] == '\'' {
			inString = true
		}
	}

	return string(out)
}

// stringLiterals collects the contents of single-quoted literals.
func stringLiterals(sqlQuery string) []string {
	var literals []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(sqlQuery); i++ {
		char := sqlQuery[i]
		if inString {
			if char == '\'' {
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
					current.WriteByte('\'')
					i++
					continue
				}
				literals = append(literals, current.String())
				current.Reset()
				inString = false
			} else {
				current.WriteByte(char)
			}
		} else if char == '\'' {
			inString = true
		}
	}

	return literals
}

// containsKeyword reports whether kw appears at a word boundary in upper.
func containsKeyword(upper, kw string) bool {
	return indexOfKeyword(upper, kw) >= 0
}
