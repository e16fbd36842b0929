package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/retry"
)

const (
	DefaultPoolMaxConns   = 10
	DefaultPoolMinConns   = 1
	DefaultHealthTimeout  = 5 * time.Second
	DefaultMaxConnIdleMin = 5
)

// ConnectionManagerConfig holds configuration for the connection manager.
type ConnectionManagerConfig struct {
	PoolMaxConns   int32
	PoolMinConns   int32
	MaxConnIdleMin int
}

// ConnectionManager shares one connection pool per datasource between the catalog
// reader and the query executor, health-checking pools before handing them out.
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]*managedConnection // key: datasource name
	cfg         ConnectionManagerConfig
	stopped     bool
	logger      *zap.Logger
}

type managedConnection struct {
	connector PoolConnector
	createdAt time.Time
	lastUsed  time.Time
}

// NewConnectionManager creates a connection manager with the given configuration.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if cfg.MaxConnIdleMin <= 0 {
		cfg.MaxConnIdleMin = DefaultMaxConnIdleMin
	}
	return &ConnectionManager{
		connections: make(map[string]*managedConnection),
		cfg:         cfg,
		logger:      logger.Named("connections"),
	}
}

// Config returns the pool settings adapters apply when creating pools.
func (m *ConnectionManager) Config() ConnectionManagerConfig {
	return m.cfg
}

// GetOrCreate returns the pool registered under key, creating it with create on first
// use or when the existing pool fails its health check.
func (m *ConnectionManager) GetOrCreate(ctx context.Context, key string, create func(ctx context.Context) (PoolConnector, error)) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if managed, exists := m.connections[key]; exists {
		healthCtx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.connector.Ping(healthCtx)
		})
		cancel()
		if err == nil {
			managed.lastUsed = time.Now()
			return managed.connector, nil
		}

		m.logger.Warn("connection unhealthy, recreating",
			zap.String("datasource", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		_ = managed.connector.Close()
		delete(m.connections, key)
	}

	connector, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return create(ctx)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("datasource", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("create pool for %s: %w", key, err)
	}

	now := time.Now()
	m.connections[key] = &managedConnection{connector: connector, createdAt: now, lastUsed: now}
	m.logger.Info("created new connection pool",
		zap.String("datasource", key),
		zap.String("type", connector.GetType()),
	)
	return connector, nil
}

// Remove closes and forgets the pool registered under key.
func (m *ConnectionManager) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists {
		_ = managed.connector.Close()
		delete(m.connections, key)
		m.logger.Debug("removed connection", zap.String("datasource", key))
	}
}

// Close closes all pools. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true

	for _, managed := range m.connections {
		_ = managed.connector.Close()
	}
	m.connections = make(map[string]*managedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		ConnectionsByType: make(map[string]int),
	}
	for _, managed := range m.connections {
		stats.ConnectionsByType[managed.connector.GetType()]++
		if idle := int(now.Sub(managed.lastUsed).Seconds()); idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
