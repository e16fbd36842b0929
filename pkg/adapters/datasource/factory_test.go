package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
)

type mockCatalogReader struct {
	name    string
	config  map[string]any
	connMgr *ConnectionManager
}

func (m *mockCatalogReader) ListTables(ctx context.Context) ([]TableEntry, error) { return nil, nil }

func (m *mockCatalogReader) ListColumns(ctx context.Context, schemaName, tableName string) ([]ColumnEntry, error) {
	return nil, nil
}

func (m *mockCatalogReader) ListTagged(ctx context.Context, level TagLevel, tags []string) ([]TaggedObject, error) {
	return nil, nil
}

func (m *mockCatalogReader) DatabaseExists(ctx context.Context, schemaName string) (bool, error) {
	return true, nil
}

func (m *mockCatalogReader) Close() error { return nil }

type mockQueryExecutor struct {
	name string
}

func (m *mockQueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}

func (m *mockQueryExecutor) Close() error { return nil }

func registerMock(t *testing.T, dsType, dialect string) {
	t.Helper()
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: dsType, DisplayName: "Mock", Dialect: dialect},
		CatalogReaderFactory: func(ctx context.Context, name string, config map[string]any, connMgr *ConnectionManager, logger *zap.Logger) (CatalogReader, error) {
			return &mockCatalogReader{name: name, config: config, connMgr: connMgr}, nil
		},
		QueryExecutorFactory: func(ctx context.Context, name string, config map[string]any, connMgr *ConnectionManager, logger *zap.Logger) (QueryExecutor, error) {
			return &mockQueryExecutor{name: name}, nil
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, dsType)
		registryMu.Unlock()
	})
}

func TestFactory_CreatesRegisteredAdapters(t *testing.T) {
	registerMock(t, "mockdb", "postgres")

	logger := zaptest.NewLogger(t)
	connMgr := NewConnectionManager(ConnectionManagerConfig{}, logger)
	defer connMgr.Close()
	factory := NewDatasourceAdapterFactory(connMgr, logger)

	cfg := map[string]any{"host": "localhost"}
	reader, err := factory.NewCatalogReader(context.Background(), "mockdb", "warehouse", cfg)
	require.NoError(t, err)
	mr, ok := reader.(*mockCatalogReader)
	require.True(t, ok)
	assert.Equal(t, "warehouse", mr.name)
	assert.Equal(t, cfg, mr.config)
	assert.Same(t, connMgr, mr.connMgr)

	exec, err := factory.NewQueryExecutor(context.Background(), "mockdb", "warehouse", cfg)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", exec.(*mockQueryExecutor).name)

	dialect, err := factory.Dialect("mockdb")
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialect)

	assert.True(t, IsRegistered("mockdb"))
	var found bool
	for _, info := range factory.ListTypes() {
		if info.Type == "mockdb" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFactory_DialectDefaultsToType(t *testing.T) {
	registerMock(t, "plaindb", "")
	factory := NewDatasourceAdapterFactory(nil, zap.NewNop())

	dialect, err := factory.Dialect("plaindb")
	require.NoError(t, err)
	assert.Equal(t, "plaindb", dialect)
}

func TestFactory_UnknownType(t *testing.T) {
	factory := NewDatasourceAdapterFactory(nil, zap.NewNop())

	_, err := factory.NewCatalogReader(context.Background(), "oracle", "x", nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownDatasource))

	_, err = factory.NewQueryExecutor(context.Background(), "oracle", "x", nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownDatasource))

	_, err = factory.Dialect("oracle")
	assert.Error(t, err)
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, 0, EffectiveLimit(0))
	assert.Equal(t, 0, EffectiveLimit(-5))
	assert.Equal(t, 100, EffectiveLimit(100))
	assert.Equal(t, MaxQueryLimit, EffectiveLimit(MaxQueryLimit+1))
}
