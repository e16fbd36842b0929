package models

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleKind distinguishes how a rule tests a value.
type RuleKind string

const (
	// RuleKindPattern rules match the text form of a value against a regular expression.
	RuleKindPattern RuleKind = "pattern"
	// RuleKindPredicate rules carry a SQL boolean fragment and a Go evaluation function.
	RuleKindPredicate RuleKind = "predicate"
)

// ColumnPlaceholder is replaced by the quoted column in a predicate rule's Expression.
const ColumnPlaceholder = "{column}"

// Rule is a named test applied to column values during a scan.
// Construct rules with NewPatternRule or NewPredicateRule; a registered rule is never mutated.
type Rule struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Type        DataType `json:"type" yaml:"type"`
	Kind        RuleKind `json:"kind" yaml:"kind"`

	// Pattern is the regular expression of a pattern rule. Patterns are written in the
	// RE2-compatible subset shared by Go, PostgreSQL and SQL Server.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Expression is the SQL boolean fragment of a predicate rule, e.g. "{column} BETWEEN -90 AND 90".
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// Match evaluates one non-null value. Derived from Pattern for pattern rules.
	Match func(value any) bool `json:"-" yaml:"-"`

	Builtin bool `json:"builtin" yaml:"-"`
}

// NewPatternRule compiles pattern and returns a pattern rule.
func NewPatternRule(name string, dataType DataType, pattern, description string) (Rule, error) {
	if strings.TrimSpace(name) == "" {
		return Rule{}, fmt.Errorf("rule name is required")
	}
	if pattern == "" {
		return Rule{}, fmt.Errorf("rule %s: pattern is required", name)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: invalid pattern: %w", name, err)
	}
	return Rule{
		Name:        name,
		Description: description,
		Type:        dataType,
		Kind:        RuleKindPattern,
		Pattern:     pattern,
		Match: func(value any) bool {
			return re.MatchString(ValueText(value))
		},
	}, nil
}

// NewPredicateRule returns a predicate rule. At least one of expression or match is required:
// without expression the rule can only be evaluated locally, without match only in SQL.
func NewPredicateRule(name string, dataType DataType, expression string, match func(any) bool, description string) (Rule, error) {
	if strings.TrimSpace(name) == "" {
		return Rule{}, fmt.Errorf("rule name is required")
	}
	if expression == "" && match == nil {
		return Rule{}, fmt.Errorf("rule %s: predicate rules need an expression or a match function", name)
	}
	if expression != "" && !strings.Contains(expression, ColumnPlaceholder) {
		return Rule{}, fmt.Errorf("rule %s: expression must reference %s", name, ColumnPlaceholder)
	}
	return Rule{
		Name:        name,
		Description: description,
		Type:        dataType,
		Kind:        RuleKindPredicate,
		Expression:  expression,
		Match:       match,
	}, nil
}

// Validate reports whether the rule can be compiled into a scan at all.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	switch r.Kind {
	case RuleKindPattern:
		if r.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is empty", r.Name)
		}
	case RuleKindPredicate:
		if r.Expression == "" && r.Match == nil {
			return fmt.Errorf("rule %s: predicate has neither expression nor match function", r.Name)
		}
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.Name, r.Kind)
	}
	return nil
}

// AppliesTo reports whether the rule's target type is compatible with the column's declared type.
func (r Rule) AppliesTo(col ColumnInfo) bool {
	return r.Type == col.SemanticType()
}
