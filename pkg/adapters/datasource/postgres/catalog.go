package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
// Otherwise returns "schema"."table".
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

const systemSchemaFilter = `NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`

// CatalogReader lists PostgreSQL schemas, tables and columns. Tags are read from
// object comments (COMMENT ON ... IS '#pii customer data').
type CatalogReader struct {
	conn
	logger *zap.Logger
}

// NewCatalogReader creates a PostgreSQL catalog reader using the connection manager.
// If connMgr is nil, creates an unmanaged pool (for tests or direct instantiation).
// If logger is nil, a no-op logger is used.
func NewCatalogReader(ctx context.Context, name string, cfg *Config, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*CatalogReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := connect(ctx, name, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &CatalogReader{conn: c, logger: logger.Named("postgres-catalog").With(zap.String("datasource", name))}, nil
}

// ListTables returns all user tables and views, flagging those the connected
// role cannot SELECT from.
func (r *CatalogReader) ListTables(ctx context.Context) ([]datasource.TableEntry, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			has_table_privilege(c.oid, 'SELECT') AS readable,
			COALESCE(obj_description(c.oid, 'pg_class'), '') AS comment
		FROM information_schema.tables t
		JOIN pg_namespace n ON n.nspname = t.table_schema
		JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type IN ('BASE TABLE', 'VIEW')
		  AND t.table_schema ` + systemSchemaFilter + `
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableEntry
	for rows.Next() {
		var t datasource.TableEntry
		var comment string
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.Readable, &comment); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		t.Tags = datasource.ParseTags(comment)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	r.logger.Debug("listed tables", zap.Int("count", len(tables)))
	return tables, nil
}

// ListColumns returns the columns of one table in ordinal order.
func (r *CatalogReader) ListColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnEntry, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.ordinal_position::int,
			COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position::int), '') AS comment
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", qualifiedTableName(schemaName, tableName), err)
	}
	defer rows.Close()

	var columns []datasource.ColumnEntry
	for rows.Next() {
		var c datasource.ColumnEntry
		var comment string
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.OrdinalPosition, &comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.Tags = datasource.ParseTags(comment)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// ListTagged returns the objects at level whose comment carries one of tags.
func (r *CatalogReader) ListTagged(ctx context.Context, level datasource.TagLevel, tags []string) ([]datasource.TaggedObject, error) {
	var query string
	switch level {
	case datasource.TagLevelCatalog:
		query = `
			SELECT '', '', '', COALESCE(shobj_description(d.oid, 'pg_database'), '')
			FROM pg_database d
			WHERE d.datname = current_database()`
	case datasource.TagLevelDatabase:
		query = `
			SELECT n.nspname, '', '', COALESCE(obj_description(n.oid, 'pg_namespace'), '')
			FROM pg_namespace n
			WHERE n.nspname ` + systemSchemaFilter + ` AND n.nspname NOT LIKE 'pg_temp%'
			ORDER BY n.nspname`
	case datasource.TagLevelTable:
		query = `
			SELECT n.nspname, c.relname, '', COALESCE(obj_description(c.oid, 'pg_class'), '')
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relkind IN ('r', 'p', 'v', 'm')
			  AND n.nspname ` + systemSchemaFilter + `
			ORDER BY n.nspname, c.relname`
	case datasource.TagLevelColumn:
		query = `
			SELECT n.nspname, c.relname, a.attname, COALESCE(col_description(c.oid, a.attnum), '')
			FROM pg_attribute a
			JOIN pg_class c ON c.oid = a.attrelid
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE a.attnum > 0 AND NOT a.attisdropped
			  AND c.relkind IN ('r', 'p', 'v', 'm')
			  AND n.nspname ` + systemSchemaFilter + `
			ORDER BY n.nspname, c.relname, a.attnum`
	default:
		return nil, fmt.Errorf("unsupported tag level %q", level)
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s comments: %w", level, err)
	}
	defer rows.Close()

	var objects []datasource.TaggedObject
	for rows.Next() {
		var o datasource.TaggedObject
		var comment string
		if err := rows.Scan(&o.SchemaName, &o.TableName, &o.ColumnName, &comment); err != nil {
			return nil, fmt.Errorf("scan %s comment: %w", level, err)
		}
		o.Tags = datasource.ParseTags(comment)
		if datasource.HasAnyTag(o.Tags, tags) {
			objects = append(objects, o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s comments: %w", level, err)
	}
	return objects, nil
}

// DatabaseExists reports whether the schema exists.
func (r *CatalogReader) DatabaseExists(ctx context.Context, schemaName string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		schemaName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", schemaName, err)
	}
	return exists, nil
}

// Ensure CatalogReader implements datasource.CatalogReader at compile time.
var _ datasource.CatalogReader = (*CatalogReader)(nil)
