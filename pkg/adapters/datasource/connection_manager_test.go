package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeConnector struct {
	mu      sync.Mutex
	dbType  string
	pingErr error
	closed  bool
}

func (f *fakeConnector) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConnector) GetType() string { return f.dbType }

func (f *fakeConnector) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestConnectionManager_Reuse(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	created := 0
	create := func(ctx context.Context) (PoolConnector, error) {
		created++
		return &fakeConnector{dbType: "postgres"}, nil
	}

	ctx := context.Background()
	c1, err := cm.GetOrCreate(ctx, "warehouse", create)
	require.NoError(t, err)
	c2, err := cm.GetOrCreate(ctx, "warehouse", create)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, created)

	_, err = cm.GetOrCreate(ctx, "crm", create)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	stats := cm.GetStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.ConnectionsByType["postgres"])
}

func TestConnectionManager_RecreatesUnhealthyPool(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	first := &fakeConnector{dbType: "mssql"}
	second := &fakeConnector{dbType: "mssql"}
	pools := []*fakeConnector{first, second}
	create := func(ctx context.Context) (PoolConnector, error) {
		p := pools[0]
		pools = pools[1:]
		return p, nil
	}

	ctx := context.Background()
	got, err := cm.GetOrCreate(ctx, "erp", create)
	require.NoError(t, err)
	assert.Same(t, first, got)

	// retry.Do gives up after the default three retries (well under a second).
	first.mu.Lock()
	first.pingErr = errors.New("server closed the connection")
	first.mu.Unlock()

	got, err = cm.GetOrCreate(ctx, "erp", create)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.True(t, first.isClosed())
}

func TestConnectionManager_CreateFailure(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.GetOrCreate(context.Background(), "broken", func(ctx context.Context) (PoolConnector, error) {
		return nil, errors.New("password authentication failed for user scanner password=hunter2")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create pool for broken")
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestConnectionManager_CloseAndRemove(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))

	a := &fakeConnector{dbType: "postgres"}
	b := &fakeConnector{dbType: "postgres"}
	ctx := context.Background()
	_, err := cm.GetOrCreate(ctx, "a", func(context.Context) (PoolConnector, error) { return a, nil })
	require.NoError(t, err)
	_, err = cm.GetOrCreate(ctx, "b", func(context.Context) (PoolConnector, error) { return b, nil })
	require.NoError(t, err)

	cm.Remove("a")
	assert.True(t, a.isClosed())
	assert.Equal(t, 1, cm.GetStats().TotalConnections)

	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close())
	assert.True(t, b.isClosed())

	_, err = cm.GetOrCreate(ctx, "c", func(context.Context) (PoolConnector, error) { return &fakeConnector{}, nil })
	assert.Error(t, err)
}

func TestConnectionManager_Defaults(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	cfg := cm.Config()
	assert.Equal(t, int32(DefaultPoolMaxConns), cfg.PoolMaxConns)
	assert.Equal(t, int32(DefaultPoolMinConns), cfg.PoolMinConns)
	assert.Equal(t, DefaultMaxConnIdleMin, cfg.MaxConnIdleMin)
}
