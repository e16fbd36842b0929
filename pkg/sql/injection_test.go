package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLiteralForInjection(t *testing.T) {
	clean := []string{
		"12345",
		"user@example.com",
		"2024-01-15",
		"550e8400-e29b-41d4-a716-446655440000",
		"laptop computers",
		"",
		"O'Brien",
		"https://example.com/path?query=value&other=123",
	}
	for _, v := range clean {
		assert.Nil(t, CheckLiteralForInjection(v), "%q should be clean", v)
	}

	flagged := []string{
		"' OR '1'='1",
		"'; DROP TABLE users--",
		"1 UNION SELECT * FROM passwords",
		"' OR 1=1--",
	}
	for _, v := range flagged {
		res := CheckLiteralForInjection(v)
		require.NotNil(t, res, "%q should be flagged", v)
		assert.True(t, res.IsSQLi)
		assert.NotEmpty(t, res.Fingerprint)
		assert.Equal(t, v, res.Literal)
		assert.Contains(t, res.Error(), "fingerprint")
	}
}

func TestCheckLiteralsForInjection(t *testing.T) {
	assert.Nil(t, CheckLiteralsForInjection("SELECT [email] FROM *.*.users WHERE country = 'NL'"))
	assert.Nil(t, CheckLiteralsForInjection(`SELECT "it;s" FROM a.b.c`))

	res := CheckLiteralsForInjection("SELECT [email] FROM *.*.users WHERE id = '1 UNION SELECT * FROM passwords'")
	require.NotNil(t, res)
	assert.Equal(t, "1 UNION SELECT * FROM passwords", res.Literal)
}
