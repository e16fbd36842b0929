package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	conn
	logger *zap.Logger
}

// NewQueryExecutor creates a SQL Server query executor using the connection manager.
func NewQueryExecutor(ctx context.Context, name string, cfg *Config, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*QueryExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := connect(ctx, name, cfg, connMgr)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{conn: c, logger: logger.Named("mssql-executor").With(zap.String("datasource", name))}, nil
}

// limitQuery wraps sqlQuery with TOP when limit is positive. Statements that start
// with a CTE cannot be wrapped; for those the returned row cap is enforced while reading.
func limitQuery(sqlQuery string, limit int) (query string, rowCap int) {
	limit = datasource.EffectiveLimit(limit)
	if limit == 0 {
		return sqlQuery, 0
	}
	if startsWithCTE(sqlQuery) {
		return sqlQuery, limit
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, sqlQuery), 0
}

// Query runs a SELECT statement in a read-only transaction.
// See datasource.QueryExecutor.Query for limit behavior.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun, rowCap := limitQuery(sqlQuery, limit)

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := collectRows(rows, rowCap)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query executed", zap.Int("rows", result.RowCount))
	return result, nil
}

// collectRows scans database/sql rows into column-name keyed maps, stopping after
// rowCap rows when rowCap is positive.
func collectRows(rows *sql.Rows, rowCap int) (*datasource.QueryExecutionResult, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = datasource.ColumnInfo{
			Name: ct.Name(),
			Type: mapSQLServerType(ct.DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if rowCap > 0 && len(resultRows) >= rowCap {
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			// Text columns arrive as []byte for some collations.
			if b, ok := val.([]byte); ok && isStringType(columnTypes[i].DatabaseTypeName()) {
				val = string(b)
			}
			rowMap[col.Name] = val
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

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
