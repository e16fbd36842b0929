// Package rules holds the catalog of rules a scan evaluates against column values.
package rules

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// RuleInfo is the display form of a rule.
type RuleInfo struct {
	Name        string          `json:"name"`
	Type        models.DataType `json:"type"`
	Kind        models.RuleKind `json:"kind"`
	Description string          `json:"description"`
	Builtin     bool            `json:"builtin"`
}

// Registry stores rules by name in registration order.
// It is safe for concurrent use; scans only read from it.
type Registry struct {
	mu            sync.RWMutex
	rules         []models.Rule
	index         map[string]int // lower(name) -> position in rules
	allowOverride bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithOverride lets a user-supplied rule replace a built-in rule of the same name.
// The replacement keeps the built-in's position in the registration order.
func WithOverride(allow bool) Option {
	return func(r *Registry) {
		r.allowOverride = allow
	}
}

// NewEmptyRegistry returns a registry without built-in rules.
func NewEmptyRegistry(opts ...Option) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRegistry returns a registry holding the built-in rules followed by custom.
func NewRegistry(custom []models.Rule, opts ...Option) (*Registry, error) {
	r := NewEmptyRegistry(opts...)
	for _, rule := range BuiltinRules() {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	for _, rule := range custom {
		rule.Builtin = false
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds rule. A name collision fails with apperrors.ErrDuplicateRule unless the
// registry allows overrides and the existing rule is a built-in being replaced by a user rule.
func (r *Registry) Register(rule models.Rule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.NewConfigurationError("custom_rules", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(rule.Name)
	if pos, exists := r.index[key]; exists {
		existing := r.rules[pos]
		if r.allowOverride && existing.Builtin && !rule.Builtin {
			r.rules[pos] = rule
			return nil
		}
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateRule, rule.Name)
	}

	r.index[key] = len(r.rules)
	r.rules = append(r.rules, rule)
	return nil
}

// Get returns the rule registered under name.
func (r *Registry) Get(name string) (models.Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[strings.ToLower(name)]
	if !ok {
		return models.Rule{}, false
	}
	return r.rules[pos], true
}

// All returns every rule in registration order.
func (r *Registry) All() []models.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Rules returns the rules selected by sel in registration order.
// A selector naming rules literally fails with apperrors.ErrRuleNotFound for unknown names.
func (r *Registry) Rules(sel Selector) ([]models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(sel.names) > 0 {
		wanted := make(map[string]bool, len(sel.names))
		for _, name := range sel.names {
			key := strings.ToLower(name)
			if _, ok := r.index[key]; !ok {
				return nil, fmt.Errorf("%w: %s", apperrors.ErrRuleNotFound, name)
			}
			wanted[key] = true
		}
		var out []models.Rule
		for _, rule := range r.rules {
			if wanted[strings.ToLower(rule.Name)] {
				out = append(out, rule)
			}
		}
		return out, nil
	}

	out := make([]models.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if sel.filter.Match(rule.Name) {
			out = append(out, rule)
		}
	}
	return out, nil
}

// Order returns each rule's registration rank, keyed by name.
func (r *Registry) Order() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := make(map[string]int, len(r.rules))
	for i, rule := range r.rules {
		order[rule.Name] = i
	}
	return order
}

// RulesInfo returns the display form of every rule in registration order.
func (r *Registry) RulesInfo() []RuleInfo {
	rules := r.All()
	infos := make([]RuleInfo, 0, len(rules))
	for _, rule := range rules {
		infos = append(infos, RuleInfo{
			Name:        rule.Name,
			Type:        rule.Type,
			Kind:        rule.Kind,
			Description: rule.Description,
			Builtin:     rule.Builtin,
		})
	}
	return infos
}

// FormatRulesInfo renders RulesInfo as an aligned text table.
func (r *Registry) FormatRulesInfo() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSOURCE\tDESCRIPTION")
	for _, info := range r.RulesInfo() {
		source := "custom"
		if info.Builtin {
			source = "builtin"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Type, source, info.Description)
	}
	_ = w.Flush()
	return buf.String()
}
