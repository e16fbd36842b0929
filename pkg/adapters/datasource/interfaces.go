package datasource

import "context"

// CatalogReader lists the schemas, tables, columns and tags of one datasource.
// Each implementation owns (or borrows from the ConnectionManager) its connection
// and must be closed when done.
type CatalogReader interface {
	// ListTables returns all user tables (excludes system schemas), ordered by schema and name.
	// Tables the connected principal cannot SELECT from are returned with Readable=false.
	ListTables(ctx context.Context) ([]TableEntry, error)

	// ListColumns returns the columns of one table in ordinal order.
	ListColumns(ctx context.Context, schemaName, tableName string) ([]ColumnEntry, error)

	// ListTagged returns the objects at level carrying at least one of tags.
	ListTagged(ctx context.Context, level TagLevel, tags []string) ([]TaggedObject, error)

	// DatabaseExists reports whether a schema of that name exists.
	DatabaseExists(ctx context.Context, schemaName string) (bool, error)

	// Close releases the catalog connection.
	Close() error
}

// MaxQueryLimit is the hard cap on rows returned when a caller asks for a bounded query.
const MaxQueryLimit = 10000

// QueryExecutor runs read-only SQL against a datasource.
// Each implementation owns (or borrows) its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement and returns its rows.
	// When limit > 0 the query is wrapped with a dialect-specific bound:
	//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
	// limit is capped to MaxQueryLimit. limit <= 0 runs the statement unmodified.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// Close releases any resources held by the executor.
	Close() error
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// EffectiveLimit applies the MaxQueryLimit cap; 0 means unbounded.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
