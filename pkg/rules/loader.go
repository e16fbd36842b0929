package rules

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

type rulePack struct {
	Rules []packRule `yaml:"rules"`
}

type packRule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`     // string|numeric
	Pattern     string   `yaml:"pattern"`  // pattern rules
	Min         *float64 `yaml:"min"`      // numeric range rules
	Max         *float64 `yaml:"max"`      // numeric range rules
	Integral    bool     `yaml:"integral"` // numeric range rules: whole numbers only
}

// LoadFile reads a YAML rule pack from path.
func LoadFile(path string) ([]models.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("custom_rules_path", fmt.Errorf("open rule pack: %w", err))
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML rule pack:
//
//	rules:
//	  - name: employee_id
//	    type: string
//	    pattern: '^E[0-9]{6}$'
//	  - name: percentage
//	    type: numeric
//	    min: 0
//	    max: 100
func Load(r io.Reader) ([]models.Rule, error) {
	var pack rulePack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil && err != io.EOF {
		return nil, apperrors.NewConfigurationError("custom_rules", fmt.Errorf("parse yaml: %w", err))
	}

	out := make([]models.Rule, 0, len(pack.Rules))
	for i, pr := range pack.Rules {
		rule, err := compilePackRule(pr)
		if err != nil {
			return nil, apperrors.NewConfigurationError("custom_rules", fmt.Errorf("rule #%d: %w", i+1, err))
		}
		out = append(out, rule)
	}
	return out, nil
}

func compilePackRule(pr packRule) (models.Rule, error) {
	if pr.Name == "" {
		return models.Rule{}, fmt.Errorf("name is required")
	}
	dataType, err := models.ParseDataType(pr.Type)
	if err != nil {
		return models.Rule{}, fmt.Errorf("rule %s: %w", pr.Name, err)
	}

	switch {
	case pr.Pattern != "":
		if pr.Min != nil || pr.Max != nil {
			return models.Rule{}, fmt.Errorf("rule %s: pattern and min/max are mutually exclusive", pr.Name)
		}
		return models.NewPatternRule(pr.Name, dataType, pr.Pattern, pr.Description)
	case pr.Min != nil && pr.Max != nil:
		if dataType != models.DataTypeNumeric {
			return models.Rule{}, fmt.Errorf("rule %s: min/max rules must have type numeric", pr.Name)
		}
		return NewRangeRule(pr.Name, *pr.Min, *pr.Max, pr.Integral, pr.Description)
	default:
		return models.Rule{}, fmt.Errorf("rule %s: needs a pattern or both min and max", pr.Name)
	}
}
