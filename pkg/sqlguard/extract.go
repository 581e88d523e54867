// Package sqlguard extracts SQL from model output and enforces the read-only
// boundary before anything reaches a target database.
package sqlguard

import (
	"regexp"
	"strings"

	"github.com/lumina-data/lumina-engine/pkg/llm"
)

// codeFencePattern matches ```sql ... ``` or plain ``` ... ``` blocks.
var codeFencePattern = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

// ExtractSQL pulls a single SQL statement out of raw model output.
// It strips leading think tags, prefers fenced code blocks, falls back to the
// first SELECT/WITH in the text, and normalizes away a trailing semicolon.
// Returns empty string when no statement can be found.
func ExtractSQL(response string) string {
	cleaned := llm.StripThinkTags(response)

	if m := codeFencePattern.FindStringSubmatch(cleaned); len(m) >= 2 {
		cleaned = m[1]
	} else {
		cleaned = firstStatementText(cleaned)
	}

	cleaned = strings.TrimSpace(cleaned)
	cleaned = firstStatement(cleaned)
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), ";")
	return strings.TrimSpace(cleaned)
}

// firstStatementText finds the start of the first SELECT or WITH keyword so
// prose before the statement is dropped.
func firstStatementText(s string) string {
	upper := strings.ToUpper(s)
	selectIdx := indexOfKeyword(upper, "SELECT")
	withIdx := indexOfKeyword(upper, "WITH")

	start := selectIdx
	if withIdx >= 0 && (start < 0 || withIdx < start) {
		start = withIdx
	}
	if start < 0 {
		return ""
	}
	return s[start:]
}

// indexOfKeyword finds kw at a word boundary.
func indexOfKeyword(upper, kw string) int {
	idx := 0
	for {
		i := strings.Index(upper[idx:], kw)
		if i < 0 {
			return -1
		}
		pos := idx + i
		beforeOK := pos == 0 || !isWordChar(upper[pos-1])
		afterOK := pos+len(kw) >= len(upper) || !isWordChar(upper[pos+len(kw)])
		if beforeOK && afterOK {
			return pos
		}
		idx = pos + len(kw)
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// firstStatement truncates at the first semicolon outside string literals,
// keeping only the leading statement when the model emits several.
func firstStatement(s string) string {
	if idx := semicolonOutsideStrings(s); idx >= 0 {
		return s[:idx]
	}
	return s
}
