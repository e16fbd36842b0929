package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
)

// DatasourceAdapterFactory creates adapters from the registry.
type DatasourceAdapterFactory interface {
	// NewCatalogReader creates a catalog reader for the named datasource.
	NewCatalogReader(ctx context.Context, dsType, name string, config map[string]any) (CatalogReader, error)

	// NewQueryExecutor creates a query executor for the named datasource.
	NewQueryExecutor(ctx context.Context, dsType, name string, config map[string]any) (QueryExecutor, error)

	// Dialect returns the SQL dialect of a datasource type.
	Dialect(dsType string) (string, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
	logger  *zap.Logger
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(connMgr *ConnectionManager, logger *zap.Logger) DatasourceAdapterFactory {
	return &registryFactory{
		connMgr: connMgr,
		logger:  logger,
	}
}

func (f *registryFactory) lookup(dsType string) (DatasourceAdapterRegistration, error) {
	reg, ok := getRegistration(dsType)
	if !ok {
		return DatasourceAdapterRegistration{}, fmt.Errorf("%w: type %s is not compiled in", apperrors.ErrUnknownDatasource, dsType)
	}
	return reg, nil
}

func (f *registryFactory) NewCatalogReader(ctx context.Context, dsType, name string, config map[string]any) (CatalogReader, error) {
	reg, err := f.lookup(dsType)
	if err != nil {
		return nil, err
	}
	if reg.CatalogReaderFactory == nil {
		return nil, fmt.Errorf("catalog listing not supported for type: %s", dsType)
	}
	return reg.CatalogReaderFactory(ctx, name, config, f.connMgr, f.logger.With(zap.String("datasource", name)))
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, dsType, name string, config map[string]any) (QueryExecutor, error) {
	reg, err := f.lookup(dsType)
	if err != nil {
		return nil, err
	}
	if reg.QueryExecutorFactory == nil {
		return nil, fmt.Errorf("query execution not supported for type: %s", dsType)
	}
	return reg.QueryExecutorFactory(ctx, name, config, f.connMgr, f.logger.With(zap.String("datasource", name)))
}

func (f *registryFactory) Dialect(dsType string) (string, error) {
	reg, err := f.lookup(dsType)
	if err != nil {
		return "", err
	}
	if reg.Info.Dialect == "" {
		return reg.Info.Type, nil
	}
	return reg.Info.Dialect, nil
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
