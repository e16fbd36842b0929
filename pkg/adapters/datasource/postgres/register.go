package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Scan PostgreSQL 12+, Aurora PostgreSQL, Supabase",
			Dialect:     "postgres",
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
