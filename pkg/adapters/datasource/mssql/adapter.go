package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/config"
)

// buildConnectionString returns the driver name and DSN for the configured auth method.
func buildConnectionString(cfg *Config) (driver, dsn string, err error) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(cfg.Host)

	switch cfg.AuthMethod {
	case AuthSQL:
		return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
			url.QueryEscape(cfg.Username),
			url.QueryEscape(cfg.Password),
			host,
			cfg.Port,
			query.Encode(),
		), nil
	case AuthServicePrincipal:
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
		// The azuread package registers the "azuresql" driver.
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, cfg.Port, query.Encode()), nil
	default:
		return "", "", fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// openDB opens a *sql.DB sized by the connection manager's pool settings.
func openDB(cfg *Config, poolCfg datasource.ConnectionManagerConfig) (*sql.DB, error) {
	driver, dsn, err := buildConnectionString(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	if poolCfg.PoolMaxConns > 0 {
		db.SetMaxOpenConns(int(poolCfg.PoolMaxConns))
	}
	if poolCfg.PoolMinConns > 0 {
		db.SetMaxIdleConns(int(poolCfg.PoolMinConns))
	}
	return db, nil
}

// conn is the *sql.DB shared by the catalog reader and the query executor.
type conn struct {
	db      *sql.DB
	ownedDB bool // true if we created the DB (tests or direct instantiation)
}

// connect borrows the datasource's *sql.DB from the connection manager.
// If connMgr is nil, an unmanaged DB is opened, pinged and closed with the adapter.
func connect(ctx context.Context, name string, cfg *Config, connMgr *datasource.ConnectionManager) (conn, error) {
	if connMgr == nil {
		db, err := openDB(cfg, datasource.ConnectionManagerConfig{})
		if err != nil {
			return conn{}, fmt.Errorf("create connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return conn{}, fmt.Errorf("connection test failed: %w", err)
		}
		return conn{db: db, ownedDB: true}, nil
	}

	connector, err := connMgr.GetOrCreate(ctx, name, func(ctx context.Context) (datasource.PoolConnector, error) {
		db, err := openDB(cfg, connMgr.Config())
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connection test failed: %w", err)
		}
		return datasource.NewMSSQLPoolWrapper(db), nil
	})
	if err != nil {
		return conn{}, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	db, err := datasource.GetMSSQLDB(connector)
	if err != nil {
		return conn{}, fmt.Errorf("failed to extract mssql db: %w", err)
	}
	return conn{db: db}, nil
}

// Close releases the handle (but NOT the DB if managed).
func (c conn) Close() error {
	if c.ownedDB && c.db != nil {
		return c.db.Close()
	}
	return nil
}
