package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

const samplePack = `
rules:
  - name: employee_id
    description: Internal employee number
    type: string
    pattern: '^E[0-9]{6}$'
  - name: percentage
    type: numeric
    min: 0
    max: 100
  - name: http_status
    type: numeric
    min: 100
    max: 599
    integral: true
`

func TestLoad(t *testing.T) {
	rules, err := Load(strings.NewReader(samplePack))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "employee_id", rules[0].Name)
	assert.Equal(t, models.RuleKindPattern, rules[0].Kind)
	assert.True(t, rules[0].Match("E123456"))
	assert.False(t, rules[0].Match("E12345"))

	assert.Equal(t, models.RuleKindPredicate, rules[1].Kind)
	assert.Equal(t, "{column} BETWEEN 0 AND 100", rules[1].Expression)

	assert.True(t, rules[2].Match(404))
	assert.False(t, rules[2].Match(404.5))
}

func TestLoad_Empty(t *testing.T) {
	rules, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		pack string
		want string
	}{
		{"invalid regex", "rules:\n  - name: bad\n    type: string\n    pattern: '([a-z'\n", "invalid pattern"},
		{"missing name", "rules:\n  - type: string\n    pattern: 'x'\n", "name is required"},
		{"unknown type", "rules:\n  - name: x\n    type: blob\n    pattern: 'x'\n", "unsupported rule type"},
		{"no body", "rules:\n  - name: x\n    type: string\n", "needs a pattern"},
		{"range on string", "rules:\n  - name: x\n    type: string\n    min: 1\n    max: 2\n", "must have type numeric"},
		{"both forms", "rules:\n  - name: x\n    type: numeric\n    pattern: 'x'\n    min: 1\n    max: 2\n", "mutually exclusive"},
		{"unknown field", "rules:\n  - name: x\n    type: string\n    regex: 'x'\n", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.pack))
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePack), 0o600))

	rules, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigurationError(err))
}
