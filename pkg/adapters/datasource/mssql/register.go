package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Scan SQL Server 2025+, Azure SQL Database (regex pushdown needs REGEXP_LIKE)",
			Dialect:     "mssql",
		},
		CatalogReaderFactory: func(ctx context.Context, name string, config map[string]any, connMgr *datasource.ConnectionManager, logger *zap.Logger) (datasource.CatalogReader, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewCatalogReader(ctx, name, cfg, connMgr, logger)
		},
		QueryExecutorFactory: func(ctx context.Context, name string, config map[string]any, connMgr *datasource.ConnectionManager, logger *zap.Logger) (datasource.QueryExecutor, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewQueryExecutor(ctx, name, cfg, connMgr, logger)
		},
	})
}
