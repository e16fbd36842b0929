package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
	Dialect     string `json:"dialect"` // SQL dialect used to render scan queries
}

// CatalogReaderFactory builds a CatalogReader from a datasource config map.
type CatalogReaderFactory func(ctx context.Context, name string, config map[string]any, connMgr *ConnectionManager, logger *zap.Logger) (CatalogReader, error)

// QueryExecutorFactory builds a QueryExecutor from a datasource config map.
type QueryExecutorFactory func(ctx context.Context, name string, config map[string]any, connMgr *ConnectionManager, logger *zap.Logger) (QueryExecutor, error)

// DatasourceAdapterRegistration contains info + factories for creating adapters.
// Factories receive the datasource name so that pooled connections are shared
// between the catalog reader and the executor of the same datasource.
type DatasourceAdapterRegistration struct {
	Info                 DatasourceAdapterInfo
	CatalogReaderFactory CatalogReaderFactory
	QueryExecutorFactory QueryExecutorFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// getRegistration returns the registration for a datasource type.
func getRegistration(dsType string) (DatasourceAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	_, ok := getRegistration(dsType)
	return ok
}
