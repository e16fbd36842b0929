package mssql

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap_SQLAuth(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "sql.internal",
		"port":     float64(14330),
		"user":     "scanner",
		"password": "s3cret;",
		"database": "erp",
		"options": map[string]any{
			"encrypt":                  "false",
			"trust_server_certificate": true,
			"connection_timeout":       "10",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, AuthSQL, cfg.AuthMethod)
	assert.Equal(t, 14330, cfg.Port)
	assert.Equal(t, "scanner", cfg.Username)
	assert.Equal(t, "s3cret;", cfg.Password)
	assert.False(t, cfg.Encrypt)
	assert.True(t, cfg.TrustServerCertificate)
	assert.Equal(t, 10, cfg.ConnectionTimeout)
}

func TestFromMap_ServicePrincipal(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "erp.database.windows.net",
		"database": "erp",
		"password": "client-secret",
		"options":  map[string]string{"tenant_id": "tenant", "client_id": "client"},
	})
	require.NoError(t, err)

	assert.Equal(t, AuthServicePrincipal, cfg.AuthMethod)
	assert.Equal(t, "tenant", cfg.TenantID)
	assert.Equal(t, "client", cfg.ClientID)
	assert.Equal(t, "client-secret", cfg.ClientSecret)
	assert.True(t, cfg.Encrypt)
	assert.Equal(t, DefaultPort(), cfg.Port)
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{"no host", map[string]any{"database": "d", "user": "u"}, "host is required"},
		{"no database", map[string]any{"host": "h", "user": "u"}, "database is required"},
		{"no credentials", map[string]any{"host": "h", "database": "d"}, "could not auto-detect"},
		{"bad auth", map[string]any{"host": "h", "database": "d", "auth_method": "kerberos"}, "invalid auth method"},
		{"sp without secret", map[string]any{"host": "h", "database": "d", "tenant_id": "t", "client_id": "c"}, "client secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestBuildConnectionString(t *testing.T) {
	driver, dsn, err := buildConnectionString(&Config{
		Host: "sql.internal", Port: 1433, Database: "erp",
		AuthMethod: AuthSQL, Username: "scan@ner", Password: "p@ss#",
		Encrypt: true, ConnectionTimeout: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", driver)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "scan@ner", u.User.Username())
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss#", password)
	assert.Equal(t, "erp", u.Query().Get("database"))
	assert.Equal(t, "true", u.Query().Get("encrypt"))

	driver, dsn, err = buildConnectionString(&Config{
		Host: "erp.database.windows.net", Port: 1433, Database: "erp",
		AuthMethod: AuthServicePrincipal, TenantID: "t", ClientID: "c", ClientSecret: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "azuresql", driver)
	assert.True(t, strings.Contains(dsn, "fedauth=ActiveDirectoryServicePrincipal"))
}

func TestLimitQuery(t *testing.T) {
	q, rowCap := limitQuery("SELECT a FROM t", 0)
	assert.Equal(t, "SELECT a FROM t", q)
	assert.Zero(t, rowCap)

	q, rowCap = limitQuery("SELECT a FROM t", 25)
	assert.Equal(t, "SELECT TOP (25) * FROM (SELECT a FROM t) AS _limited", q)
	assert.Zero(t, rowCap)

	cte := "WITH _sample AS (SELECT a FROM t)\nSELECT a FROM _sample"
	q, rowCap = limitQuery(cte, 25)
	assert.Equal(t, cte, q)
	assert.Equal(t, 25, rowCap)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "[dbo].[Order]]s]", buildFullyQualifiedName("dbo", "Order]s"))
	assert.Equal(t, "INTEGER", mapSQLServerType("int"))
	assert.Equal(t, "VARCHAR", mapSQLServerType("nvarchar"))
	assert.Equal(t, "BIGINT", mapSQLServerType("bigint"))
	assert.True(t, isStringType("nchar"))
	assert.False(t, isStringType("int"))
	assert.True(t, startsWithCTE("  with x AS (SELECT 1) SELECT * FROM x"))
	assert.False(t, startsWithCTE("WITHOUT"))
}
