package sql

import (
	"regexp"
	"strings"
)

var (
	selectListStartRe = regexp.MustCompile(`(?i)^\s*select\s+(distinct\s+|top\s+\(?\d+\)?\s+)*`)
	explicitAliasRe   = regexp.MustCompile(`(?is)\s+as\s+("[^"]+"|\[[^\]]+\]|` + "`[^`]+`" + `|\w+)\s*$`)
	funcNameRe        = regexp.MustCompile(`^(\w+)\s*\(`)
	nonWordRe         = regexp.MustCompile(`\W`)
)

// selectListTerminators end the select list when seen at parenthesis depth 0.
var selectListTerminators = []string{"from", "where", "group", "order", "limit", "union", "intersect", "except"}

// ParseSelectColumns returns the output column names of a generated SELECT statement,
// in select-list order. It understands double-quoted, bracketed and backtick identifiers
// as well as explicit and implicit aliases. A star or a non-SELECT statement yields nil.
func ParseSelectColumns(stmt string) []string {
	loc := selectListStartRe.FindStringIndex(stmt)
	if loc == nil {
		return nil
	}
	items := splitSelectList(stmt[loc[1]:])
	if len(items) == 0 {
		return nil
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		if item == "*" || strings.HasSuffix(item, ".*") {
			return nil
		}
		names = append(names, columnName(item))
	}
	return names
}

// splitSelectList splits the select list on top-level commas and stops at the first
// top-level clause keyword. Quoted identifiers and string literals are kept intact.
func splitSelectList(s string) []string {
	var (
		items []string
		cur   strings.Builder
		depth int
		quote byte
	)
	flush := func() {
		if item := strings.TrimSpace(cur.String()); item != "" {
			items = append(items, item)
		}
		cur.Reset()
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '[':
			quote = ']'
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				flush()
				return items
			}
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		default:
			if depth == 0 && isWordBoundary(s, i) && startsTerminator(s[i:]) {
				flush()
				return items
			}
		}
		cur.WriteByte(ch)
	}
	flush()
	return items
}

func isWordBoundary(s string, i int) bool {
	return i == 0 || !isWordChar(s[i-1])
}

func isWordChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func startsTerminator(s string) bool {
	for _, kw := range selectListTerminators {
		if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
			continue
		}
		if len(s) == len(kw) || !isWordChar(s[len(kw)]) {
			return true
		}
	}
	return false
}

// columnName derives the output name of one select-list item.
func columnName(item string) string {
	if m := explicitAliasRe.FindStringSubmatch(item); m != nil {
		return unquoteIdent(m[1])
	}

	// Implicit alias: "expr alias", where the expression is balanced and the
	// alias is a single token.
	if last, rest, ok := lastToken(item); ok && rest != "" && strings.Count(rest, "(") == strings.Count(rest, ")") &&
		!strings.ContainsAny(last, "()'") && !strings.HasSuffix(rest, ".") && !strings.HasSuffix(rest, "::") {
		return unquoteIdent(last)
	}

	// Qualified identifier: keep the last part.
	name := item
	if idx := lastTopLevelDot(name); idx >= 0 {
		name = name[idx+1:]
	}
	if m := funcNameRe.FindStringSubmatch(name); m != nil {
		return strings.ToLower(m[1])
	}
	if isQuotedIdent(name) {
		return unquoteIdent(name)
	}
	if strings.HasPrefix(strings.ToLower(name), "case") {
		return "case"
	}
	return strings.ToLower(nonWordRe.ReplaceAllString(name, ""))
}

// lastToken splits item at its last top-level whitespace run.
func lastToken(item string) (last, rest string, ok bool) {
	var quote byte
	split := -1
	for i := 0; i < len(item); i++ {
		ch := item[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '[':
			quote = ']'
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			split = i
		}
	}
	if split < 0 {
		return "", "", false
	}
	return item[split+1:], strings.TrimSpace(item[:split]), true
}

func lastTopLevelDot(s string) int {
	var quote byte
	idx := -1
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '`':
			quote = ch
		case ch == '[':
			quote = ']'
		case ch == '(':
			return idx
		case ch == '.':
			idx = i
		}
	}
	return idx
}

func isQuotedIdent(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s[0] {
	case '"':
		return s[len(s)-1] == '"'
	case '`':
		return s[len(s)-1] == '`'
	case '[':
		return s[len(s)-1] == ']'
	}
	return false
}

// unquoteIdent strips identifier quotes and undoes doubled quote characters.
// Unquoted identifiers are folded to lower case.
func unquoteIdent(s string) string {
	if !isQuotedIdent(s) {
		return strings.ToLower(s)
	}
	inner := s[1 : len(s)-1]
	switch s[0] {
	case '"':
		return strings.ReplaceAll(inner, `""`, `"`)
	case '`':
		return strings.ReplaceAll(inner, "``", "`")
	default:
		return strings.ReplaceAll(inner, "]]", "]")
	}
}
