package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
)

// QueryExecutor provides PostgreSQL query execution. Every statement runs in a
// read-only transaction so scans and msql templates can never modify data.
type QueryExecutor struct {
	conn
	logger *zap.Logger
}

// NewQueryExecutor creates a PostgreSQL query executor using the connection manager.
// If connMgr is nil, creates an unmanaged pool (for tests or direct instantiation).
func NewQueryExecutor(ctx context.Context, name string, cfg *Config, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*QueryExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := connect(ctx, name, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{conn: c, logger: logger.Named("postgres-executor").With(zap.String("datasource", name))}, nil
}

// limitQuery wraps sqlQuery with a LIMIT when limit is positive.
func limitQuery(sqlQuery string, limit int) string {
	limit = datasource.EffectiveLimit(limit)
	if limit == 0 {
		return sqlQuery
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)
}

// Query runs a SQL query and returns the results.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := limitQuery(sqlQuery, limit)

	var result *datasource.QueryExecutionResult
	err := pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, queryToRun)
		if err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		defer rows.Close()

		result, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query executed", zap.Int("rows", result.RowCount))
	return result, nil
}

// collectRows materializes pgx rows into column-name keyed maps.
func collectRows(rows pgx.Rows) (*datasource.QueryExecutionResult, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

var typeMap = pgtype.NewMap()

// pgTypeNameFromOID maps PostgreSQL type OIDs to upper-case type names
// ("INT4", "TEXT", "_INT4" for arrays). Unknown types return "UNKNOWN".
func pgTypeNameFromOID(oid uint32) string {
	if t, ok := typeMap.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
