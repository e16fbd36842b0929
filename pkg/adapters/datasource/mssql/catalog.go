package mssql

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
)

// msDescription joins the MS_Description extended property of an object (minor_id 0)
// or column (minor_id = column_id); tags are read from its text.
const msDescription = `sys.extended_properties ep
	ON ep.class = %d AND ep.major_id = %s AND ep.minor_id = %s AND ep.name = N'MS_Description'`

func descriptionJoin(class int, majorID, minorID string) string {
	return fmt.Sprintf(msDescription, class, majorID, minorID)
}

// CatalogReader lists SQL Server schemas, tables and columns.
type CatalogReader struct {
	conn
	logger *zap.Logger
}

// NewCatalogReader creates a SQL Server catalog reader using the connection manager.
// If connMgr is nil, opens an unmanaged connection (for tests or direct instantiation).
func NewCatalogReader(ctx context.Context, name string, cfg *Config, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*CatalogReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := connect(ctx, name, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &CatalogReader{conn: c, logger: logger.Named("mssql-catalog").With(zap.String("datasource", name))}, nil
}

// ListTables returns all user tables and views, flagging those the login cannot SELECT from.
func (r *CatalogReader) ListTables(ctx context.Context) ([]datasource.TableEntry, error) {
	query := `
		SELECT
			s.name,
			o.name,
			CAST(COALESCE(HAS_PERMS_BY_NAME(QUOTENAME(s.name) + '.' + QUOTENAME(o.name), 'OBJECT', 'SELECT'), 0) AS BIT),
			COALESCE(CAST(ep.value AS NVARCHAR(4000)), N'')
		FROM sys.objects o
		JOIN sys.schemas s ON s.schema_id = o.schema_id
		LEFT JOIN ` + descriptionJoin(1, "o.object_id", "0") + `
		WHERE o.type IN ('U', 'V') AND o.is_ms_shipped = 0
		ORDER BY s.name, o.name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableEntry
	for rows.Next() {
		var t datasource.TableEntry
		var description string
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.Readable, &description); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		t.Tags = datasource.ParseTags(description)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	r.logger.Debug("listed tables", zap.Int("count", len(tables)))
	return tables, nil
}

// ListColumns returns the columns of one table in column_id order.
func (r *CatalogReader) ListColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnEntry, error) {
	query := `
		SELECT
			c.name,
			TYPE_NAME(c.user_type_id),
			c.is_nullable,
			c.column_id,
			COALESCE(CAST(ep.value AS NVARCHAR(4000)), N'')
		FROM sys.columns c
		LEFT JOIN ` + descriptionJoin(1, "c.object_id", "c.column_id") + `
		WHERE c.object_id = OBJECT_ID(@p1)
		ORDER BY c.column_id
	`

	fqn := buildFullyQualifiedName(schemaName, tableName)
	rows, err := r.db.QueryContext(ctx, query, fqn)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", fqn, err)
	}
	defer rows.Close()

	var columns []datasource.ColumnEntry
	for rows.Next() {
		var c datasource.ColumnEntry
		var description string
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.OrdinalPosition, &description); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.Tags = datasource.ParseTags(description)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// ListTagged returns the objects at level whose MS_Description carries one of tags.
func (r *CatalogReader) ListTagged(ctx context.Context, level datasource.TagLevel, tags []string) ([]datasource.TaggedObject, error) {
	var query string
	switch level {
	case datasource.TagLevelCatalog:
		query = `
			SELECT N'', N'', N'', COALESCE(CAST(ep.value AS NVARCHAR(4000)), N'')
			FROM sys.extended_properties ep
			WHERE ep.class = 0 AND ep.name = N'MS_Description'`
	case datasource.TagLevelDatabase:
		query = `
			SELECT s.name, N'', N'', COALESCE(CAST(ep.value AS NVARCHAR(4000)), N'')
			FROM sys.schemas s
			LEFT JOIN ` + descriptionJoin(3, "s.schema_id", "0") + `
			WHERE s.schema_id < 16384 AND s.name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
			ORDER BY s.name`
	case datasource.TagLevelTable:
		query = `
			SELECT s.name, o.name, N'', COALESCE(CAST(ep.value AS NVARCHAR(4000)), N'')
			FROM sys.objects o
			JOIN sys.schemas s ON s.schema_id = o.schema_id
			LEFT JOIN ` + descriptionJoin(1, "o.object_id", "0") + `
			WHERE o.type IN ('U', 'V') AND o.is_ms_shipped = 0
			ORDER BY s.name, o.name`
	case datasource.TagLevelColumn:
		query = `
			SELECT s.name, o.name, c.name, COALESCE(CAST(ep.value AS NVARCHAR(4000)), N'')
			FROM sys.columns c
			JOIN sys.objects o ON o.object_id = c.object_id
			JOIN sys.schemas s ON s.schema_id = o.schema_id
			LEFT JOIN ` + descriptionJoin(1, "c.object_id", "c.column_id") + `
			WHERE o.type IN ('U', 'V') AND o.is_ms_shipped = 0
			ORDER BY s.name, o.name, c.column_id`
	default:
		return nil, fmt.Errorf("unsupported tag level %q", level)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s descriptions: %w", level, err)
	}
	defer rows.Close()

	var objects []datasource.TaggedObject
	for rows.Next() {
		var o datasource.TaggedObject
		var description string
		if err := rows.Scan(&o.SchemaName, &o.TableName, &o.ColumnName, &description); err != nil {
			return nil, fmt.Errorf("scan %s description: %w", level, err)
		}
		o.Tags = datasource.ParseTags(description)
		if datasource.HasAnyTag(o.Tags, tags) {
			objects = append(objects, o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s descriptions: %w", level, err)
	}
	return objects, nil
}

// DatabaseExists reports whether the schema exists.
func (r *CatalogReader) DatabaseExists(ctx context.Context, schemaName string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT CAST(CASE WHEN SCHEMA_ID(@p1) IS NULL THEN 0 ELSE 1 END AS BIT)`,
		schemaName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", schemaName, err)
	}
	return exists, nil
}

// Ensure CatalogReader implements datasource.CatalogReader at compile time.
var _ datasource.CatalogReader = (*CatalogReader)(nil)
