package rules

import (
	"strings"

	"github.com/ekaya-inc/ekaya-discover/pkg/filter"
)

// Selector picks rules from a Registry: every rule, a glob filter, or a literal list of names.
type Selector struct {
	filter filter.Filter
	names  []string
}

// SelectAll selects every registered rule.
func SelectAll() Selector {
	return Selector{filter: filter.All()}
}

// SelectNames selects the named rules. Unknown names make Registry.Rules fail.
func SelectNames(names ...string) Selector {
	var cleaned []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return SelectAll()
	}
	return Selector{names: cleaned}
}

// ParseSelector selects the rules whose names match a glob filter expression.
// "*" and the empty string select every rule.
func ParseSelector(expr string) (Selector, error) {
	f, err := filter.Parse(expr)
	if err != nil {
		return Selector{}, err
	}
	return Selector{filter: f}, nil
}

// SelectorFromList treats a single element as a filter expression and several elements
// as literal rule names, mirroring how the scan API accepts either form.
func SelectorFromList(items []string) (Selector, error) {
	switch len(items) {
	case 0:
		return SelectAll(), nil
	case 1:
		return ParseSelector(items[0])
	default:
		return SelectNames(items...), nil
	}
}

// String describes the selection for logs.
func (s Selector) String() string {
	if len(s.names) > 0 {
		return strings.Join(s.names, ",")
	}
	return s.filter.String()
}
