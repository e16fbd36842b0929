// Package sql compiles rule scans and msql templates into dialect-specific SQL.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the trailing semicolon.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

type quoteKind int

const (
	quoteSingle quoteKind = iota + 1
	quoteDouble
)

// quotedSpan is a quoted region [start, end) including its delimiters.
type quotedSpan struct {
	kind  quoteKind
	start int
	end   int
}

// quotedSpans finds single-quoted literals and double-quoted identifiers.
// Both the SQL standard doubled quote ('') and a backslash escape (\') stay inside the literal.
// An unterminated quote runs to the end of the input.
func quotedSpans(s string) []quotedSpan {
	var spans []quotedSpan
	for i := 0; i < len(s); i++ {
		var kind quoteKind
		switch s[i] {
		case '\'':
			kind = quoteSingle
		case '"':
			kind = quoteDouble
		default:
			continue
		}
		delim := s[i]
		start := i
		i++
		for i < len(s) {
			if s[i] == delim && s[i-1] != '\\' {
				if i+1 < len(s) && s[i+1] == delim {
					i += 2
					continue
				}
				break
			}
			i++
		}
		end := i + 1
		if end > len(s) {
			end = len(s)
		}
		spans = append(spans, quotedSpan{kind: kind, start: start, end: end})
	}
	return spans
}

// unquotedMask marks the bytes of s that lie outside quoted spans.
func unquotedMask(s string) []bool {
	mask := make([]bool, len(s))
	for i := range mask {
		mask[i] = true
	}
	for _, sp := range quotedSpans(s) {
		for i := sp.start; i < sp.end; i++ {
			mask[i] = false
		}
	}
	return mask
}

// stringLiterals returns the contents of single-quoted literals, unescaped.
func stringLiterals(s string) []string {
	var lits []string
	for _, sp := range quotedSpans(s) {
		if sp.kind != quoteSingle || sp.end-sp.start < 2 {
			continue
		}
		body := s[sp.start+1 : sp.end-1]
		lits = append(lits, strings.ReplaceAll(body, "''", "'"))
	}
	return lits
}

func hasSemicolonOutsideStrings(sqlQuery string) bool {
	mask := unquotedMask(sqlQuery)
	for i := 0; i < len(sqlQuery); i++ {
		if mask[i] && sqlQuery[i] == ';' {
			return true
		}
	}
	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
