package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConnector abstracts connection pool operations across database types.
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string
}

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector.
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error { return w.pool.Ping(ctx) }

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string { return "postgres" }

// MSSQLPoolWrapper wraps *sql.DB to implement PoolConnector.
type MSSQLPoolWrapper struct {
	db *sql.DB
}

// NewMSSQLPoolWrapper wraps an already opened SQL Server handle.
func NewMSSQLPoolWrapper(db *sql.DB) *MSSQLPoolWrapper {
	return &MSSQLPoolWrapper{db: db}
}

func (w *MSSQLPoolWrapper) Ping(ctx context.Context) error { return w.db.PingContext(ctx) }

func (w *MSSQLPoolWrapper) Close() error { return w.db.Close() }

func (w *MSSQLPoolWrapper) GetType() string { return "mssql" }

// CreatePostgresPool creates a PostgreSQL pool with the manager's pool settings.
func CreatePostgresPool(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.PoolMaxConns > 0 {
		poolConfig.MaxConns = cfg.PoolMaxConns
	}
	if cfg.PoolMinConns > 0 {
		poolConfig.MinConns = cfg.PoolMinConns
	}
	if cfg.MaxConnIdleMin > 0 {
		poolConfig.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleMin) * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return &PostgresPoolWrapper{pool: pool}, nil
}

// GetPostgresPool extracts the underlying *pgxpool.Pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.pool, nil
}

// GetMSSQLDB extracts the underlying *sql.DB from a PoolConnector.
func GetMSSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*MSSQLPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not an MSSQL pool wrapper")
	}
	return wrapper.db, nil
}
