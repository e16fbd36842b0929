package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

func TestParseMsql(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [email], COUNT(*) AS n FROM lake.prod_*.users* GROUP BY [email];")
	require.NoError(t, err)

	assert.Equal(t, "SELECT [email], COUNT(*) AS n FROM lake.prod_*.users* GROUP BY [email]", tmpl.SQL)
	assert.Equal(t, []string{"email"}, tmpl.Rules())
	require.Len(t, tmpl.Placeholders, 2)
	assert.False(t, tmpl.Placeholders[0].All)

	assert.True(t, tmpl.Catalogs.Match("lake"))
	assert.False(t, tmpl.Catalogs.Match("warehouse"))
	assert.True(t, tmpl.Databases.Match("prod_eu"))
	assert.False(t, tmpl.Databases.Match("staging"))
	assert.True(t, tmpl.Tables.Match("users_2024"))
}

func TestParseMsql_IgnoresQuotedBrackets(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [ip:all] FROM *.*.* WHERE note <> '[email]'")
	require.NoError(t, err)
	require.Len(t, tmpl.Placeholders, 1)
	assert.Equal(t, "ip", tmpl.Placeholders[0].Rule)
	assert.True(t, tmpl.Placeholders[0].All)
	assert.True(t, tmpl.Catalogs.IsAll())
}

func TestParseMsql_SubqueryInSelectList(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [email], (SELECT count(*) FROM other) AS n FROM c.d.t")
	require.NoError(t, err)
	assert.True(t, tmpl.Catalogs.Match("c"))
	assert.True(t, tmpl.Tables.Match("t"))
	assert.False(t, tmpl.Tables.Match("other"))

	d, err := DialectFor(DialectPostgres)
	require.NoError(t, err)
	stmts, err := CompileMsql(tmpl, models.TableRef{Catalog: "c", Database: "d", Table: "t"},
		map[string][]string{"email": {"contact"}}, d)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `(SELECT count(*) FROM other) AS n FROM "d"."t"`)
}

func TestParseMsql_ResolveRules(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [EMAIL], [Ip:all] FROM *.*.*")
	require.NoError(t, err)

	canonical := map[string]string{"email": "email", "ip": "ip_v4"}
	err = tmpl.ResolveRules(func(name string) (string, error) {
		if n, ok := canonical[strings.ToLower(name)]; ok {
			return n, nil
		}
		return "", apperrors.ErrRuleNotFound
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "ip_v4"}, tmpl.Rules())
	assert.True(t, tmpl.Placeholders[1].All)

	bad, err := ParseMsql("SELECT [nope] FROM *.*.*")
	require.NoError(t, err)
	err = bad.ResolveRules(func(string) (string, error) { return "", apperrors.ErrRuleNotFound })
	assert.ErrorIs(t, err, apperrors.ErrRuleNotFound)
}

func TestParseMsql_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"empty", "  "},
		{"multiple statements", "SELECT [email] FROM *.*.*; DROP TABLE users"},
		{"not a select", "DELETE FROM a.b.c"},
		{"no from", "SELECT 1"},
		{"two-part target", "SELECT [email] FROM public.users"},
		{"injection literal", "SELECT [email] FROM *.*.* WHERE x = '1 UNION SELECT * FROM passwords'"},
		{"bad glob", "SELECT [email] FROM *.*.users["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMsql(tt.template)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigurationError(err))
		})
	}
}

func TestCompileMsql_OneStatementPerColumn(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [email] AS value FROM *.*.customers WHERE [email] IS NOT NULL")
	require.NoError(t, err)

	table := models.TableRef{Catalog: "lake", Database: "crm", Table: "customers"}
	classified := map[string][]string{"email": {"work_email", "home_email"}}

	d, _ := DialectFor(DialectPostgres)
	stmts, err := CompileMsql(tmpl, table, classified, d)
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	assert.Equal(t,
		`SELECT 'lake' AS "table_catalog", 'crm' AS "table_schema", 'customers' AS "table_name", "work_email" AS value FROM "crm"."customers" WHERE "work_email" IS NOT NULL`,
		stmts[0])
	assert.Contains(t, stmts[1], `"home_email" AS value`)
	assert.Contains(t, stmts[1], `WHERE "home_email" IS NOT NULL`)
}

func TestCompileMsql_Combinations(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [email], [us_phone_number] FROM *.*.*")
	require.NoError(t, err)

	classified := map[string][]string{
		"email":           {"e1", "e2"},
		"us_phone_number": {"p1", "p2", "p3"},
	}
	d, _ := DialectFor(DialectMSSQL)
	stmts, err := CompileMsql(tmpl, models.TableRef{Catalog: "c", Database: "dbo", Table: "t"}, classified, d)
	require.NoError(t, err)
	require.Len(t, stmts, 6)
	assert.Contains(t, stmts[0], "[e1], [p1] FROM [dbo].[t]")
	assert.Contains(t, stmts[5], "[e2], [p3] FROM [dbo].[t]")
	assert.Contains(t, stmts[0], "N'c' AS [table_catalog]")
}

func TestCompileMsql_AllPlaceholder(t *testing.T) {
	tmpl, err := ParseMsql("SELECT DISTINCT [ip_v4:all] FROM lake.*.*")
	require.NoError(t, err)

	d, _ := DialectFor(DialectPostgres)
	stmts, err := CompileMsql(tmpl, models.TableRef{Catalog: "lake", Database: "net", Table: "flows"},
		map[string][]string{"ip_v4": {"src", "dst"}}, d)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`SELECT DISTINCT 'lake' AS "table_catalog", 'net' AS "table_schema", 'flows' AS "table_name", "src", "dst" FROM "net"."flows"`,
		stmts[0])
}

func TestCompileMsql_NoClassifiedColumns(t *testing.T) {
	tmpl, err := ParseMsql("SELECT [email], [ip_v4:all] FROM *.*.*")
	require.NoError(t, err)
	d, _ := DialectFor(DialectPostgres)
	ref := models.TableRef{Catalog: "lake", Database: "public", Table: "t"}

	stmts, err := CompileMsql(tmpl, ref, map[string][]string{"email": {"e"}}, d)
	require.NoError(t, err)
	assert.Empty(t, stmts)

	stmts, err = CompileMsql(tmpl, ref, nil, d)
	require.NoError(t, err)
	assert.Empty(t, stmts)
}

func TestCompileMsql_NoPlaceholders(t *testing.T) {
	tmpl, err := ParseMsql("SELECT COUNT(*) AS n FROM *.*.orders")
	require.NoError(t, err)
	d, _ := DialectFor(DialectPostgres)

	stmts, err := CompileMsql(tmpl, models.TableRef{Catalog: "lake", Database: "shop", Table: "orders"}, nil, d)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `FROM "shop"."orders"`)
}
