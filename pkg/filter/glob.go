// Package filter implements the glob filters used to select catalogs, databases,
// tables and rules by name.
//
// A filter expression is a comma separated list of glob patterns. "*" matches any
// run of characters and "?" a single character. A pattern prefixed with "-" or "!"
// excludes matching names. A name is selected when it matches at least one
// inclusion pattern (or there are none) and no exclusion pattern. Matching is
// case-insensitive.
//
//	"*"                 every name
//	"prod_*"            names starting with prod_
//	"prod_*,-prod_tmp*" prod_ names except prod_tmp ones
//	"!staging"          everything except staging
package filter

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
)

// Wildcard selects every name.
const Wildcard = "*"

type pattern struct {
	raw string
	g   glob.Glob
}

// Filter is a compiled glob filter expression. The zero value matches everything.
type Filter struct {
	expr     string
	includes []pattern
	excludes []pattern
}

// All returns a filter that matches every name.
func All() Filter {
	return Filter{expr: Wildcard}
}

// Parse compiles a filter expression. An empty expression is equivalent to "*".
func Parse(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == Wildcard {
		return All(), nil
	}
	return ParseList(strings.Split(expr, ","))
}

// MustParse is Parse for expressions known at compile time.
func MustParse(expr string) Filter {
	f, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseList compiles a list of patterns, each optionally negated.
func ParseList(patterns []string) (Filter, error) {
	f := Filter{}
	var parts []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, p)

		negated := false
		if strings.HasPrefix(p, "-") || strings.HasPrefix(p, "!") {
			negated = true
			p = strings.TrimSpace(p[1:])
			if p == "" {
				return Filter{}, fmt.Errorf("%w: empty negated pattern", apperrors.ErrInvalidFilter)
			}
		}

		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return Filter{}, fmt.Errorf("%w: pattern %q: %v", apperrors.ErrInvalidFilter, p, err)
		}
		if negated {
			f.excludes = append(f.excludes, pattern{raw: p, g: g})
		} else {
			f.includes = append(f.includes, pattern{raw: p, g: g})
		}
	}
	if len(parts) == 0 {
		return All(), nil
	}
	f.expr = strings.Join(parts, ",")
	return f, nil
}

// Match reports whether name is selected by the filter.
func (f Filter) Match(name string) bool {
	name = strings.ToLower(name)
	for _, ex := range f.excludes {
		if ex.g.Match(name) {
			return false
		}
	}
	if len(f.includes) == 0 {
		return true
	}
	for _, in := range f.includes {
		if in.g.Match(name) {
			return true
		}
	}
	return false
}

// IsAll reports whether the filter selects every name.
func (f Filter) IsAll() bool {
	if len(f.excludes) > 0 {
		return false
	}
	if len(f.includes) == 0 {
		return true
	}
	for _, in := range f.includes {
		if in.raw == Wildcard {
			return true
		}
	}
	return false
}

// Literals returns the inclusion patterns that contain no glob metacharacters,
// and whether every inclusion pattern is such a literal.
func (f Filter) Literals() ([]string, bool) {
	var lits []string
	all := len(f.includes) > 0
	for _, in := range f.includes {
		if strings.ContainsAny(in.raw, "*?[]{}\\") {
			all = false
			continue
		}
		lits = append(lits, in.raw)
	}
	return lits, all
}

// String returns the normalized expression.
func (f Filter) String() string {
	if f.expr == "" {
		return Wildcard
	}
	return f.expr
}
