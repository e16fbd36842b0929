package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// Dialect names match the datasource adapter types.
const (
	DialectPostgres = "postgres"
	DialectMSSQL    = "mssql"
)

// Dialect renders the dialect-specific fragments of generated SQL.
type Dialect interface {
	Name() string
	// QuoteIdent quotes one identifier part.
	QuoteIdent(name string) string
	// QualifiedTable returns the schema-qualified, quoted table name.
	// The catalog is the datasource itself and is never part of the name.
	QualifiedTable(ref models.TableRef) string
	// StringLiteral returns s as a quoted SQL string literal.
	StringLiteral(s string) string
	// TextCast casts expr to the dialect's unbounded text type.
	TextCast(expr string) string
	// FloatCast casts expr to double precision.
	FloatCast(expr string) string
	// RegexMatch returns a boolean expression testing text against a regex pattern.
	RegexMatch(text, pattern string) string
	// SelectSample returns a SELECT of columns from table bounded to limit rows.
	// A nil limit reads the whole table.
	SelectSample(table string, columns []string, limit *int) string
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectPostgres, "postgresql":
		return postgresDialect{}, nil
	case DialectMSSQL, "sqlserver":
		return mssqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported SQL dialect: %s", name)
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return DialectPostgres }

// QuoteIdent follows pgx.Identifier.Sanitize: double quotes, embedded quotes doubled.
func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(name, "\x00", ""), `"`, `""`) + `"`
}

func (d postgresDialect) QualifiedTable(ref models.TableRef) string {
	return d.QuoteIdent(ref.Database) + "." + d.QuoteIdent(ref.Table)
}

func (postgresDialect) StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (postgresDialect) TextCast(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}

func (postgresDialect) FloatCast(expr string) string {
	return "CAST(" + expr + " AS DOUBLE PRECISION)"
}

func (d postgresDialect) RegexMatch(text, pattern string) string {
	return text + " ~ " + d.StringLiteral(pattern)
}

func (postgresDialect) SelectSample(table string, columns []string, limit *int) string {
	q := "SELECT " + strings.Join(columns, ", ") + " FROM " + table
	if limit != nil {
		q += " LIMIT " + strconv.Itoa(*limit)
	}
	return q
}

type mssqlDialect struct{}

func (mssqlDialect) Name() string { return DialectMSSQL }

// QuoteIdent mirrors QUOTENAME: square brackets, embedded ] doubled.
func (mssqlDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d mssqlDialect) QualifiedTable(ref models.TableRef) string {
	return d.QuoteIdent(ref.Database) + "." + d.QuoteIdent(ref.Table)
}

func (mssqlDialect) StringLiteral(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (mssqlDialect) TextCast(expr string) string {
	return "CAST(" + expr + " AS NVARCHAR(MAX))"
}

func (mssqlDialect) FloatCast(expr string) string {
	return "CAST(" + expr + " AS FLOAT)"
}

// RegexMatch uses REGEXP_LIKE, available from SQL Server 2025 and Azure SQL.
func (d mssqlDialect) RegexMatch(text, pattern string) string {
	return "REGEXP_LIKE(" + text + ", " + d.StringLiteral(pattern) + ")"
}

func (mssqlDialect) SelectSample(table string, columns []string, limit *int) string {
	top := ""
	if limit != nil {
		top = "TOP (" + strconv.Itoa(*limit) + ") "
	}
	return "SELECT " + top + strings.Join(columns, ", ") + " FROM " + table
}
