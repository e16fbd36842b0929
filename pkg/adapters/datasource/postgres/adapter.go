package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/config"
)

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, # or ?
// do not break URL parsing. When running in Docker, localhost resolves to
// host.docker.internal so databases on the host machine stay reachable.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for _, k := range cfg.optionKeys() {
		query.Set(k, cfg.Options[k])
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		query.Encode(),
	)
}

// conn is the pool handle shared by the catalog reader and the query executor.
type conn struct {
	pool      *pgxpool.Pool
	ownedPool bool // true if we created the pool (tests or direct instantiation)
}

// connect borrows the datasource's pool from the connection manager.
// If connMgr is nil, an unmanaged pool is created and closed with the adapter.
func connect(ctx context.Context, name string, cfg *Config, connMgr *datasource.ConnectionManager) (conn, error) {
	connStr := buildConnectionString(cfg)

	if connMgr == nil {
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return conn{}, fmt.Errorf("connect to postgres: %w", err)
		}
		return conn{pool: pool, ownedPool: true}, nil
	}

	connector, err := connMgr.GetOrCreate(ctx, name, func(ctx context.Context) (datasource.PoolConnector, error) {
		return datasource.CreatePostgresPool(ctx, connStr, connMgr.Config())
	})
	if err != nil {
		return conn{}, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		return conn{}, fmt.Errorf("failed to extract postgres pool: %w", err)
	}
	return conn{pool: pool}, nil
}

// Close releases the handle (but NOT the pool if managed).
func (c conn) Close() error {
	if c.ownedPool && c.pool != nil {
		c.pool.Close()
	}
	return nil
}
