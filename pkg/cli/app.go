package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/config"
	"github.com/ekaya-inc/ekaya-discover/pkg/database"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/repositories"
	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// app holds the collaborators every command shares. Close releases them in reverse order.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *rules.Registry
	datasources services.DatasourceService
	discovery   services.DiscoveryService

	closers []func()
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig(configPath, version string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// newApp connects the datasources and, when enabled, the results database.
func newApp(ctx context.Context, configPath, version string) (*app, error) {
	cfg, logger, err := loadConfig(configPath, version)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.Int("datasources", len(cfg.Datasources)),
		zap.String("evaluation", cfg.Scan.Evaluation),
		zap.Float64("threshold", cfg.Scan.Threshold),
		zap.Bool("results_enabled", cfg.Results.Enabled))

	// Datasources share one pool per catalog between catalog reads and scan queries.
	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		PoolMaxConns:   cfg.Datasource.PoolMaxConns,
		PoolMinConns:   cfg.Datasource.PoolMinConns,
		MaxConnIdleMin: cfg.Datasource.MaxConnIdleMinutes,
	}, logger)
	a.closers = append(a.closers, func() {
		if err := connMgr.Close(); err != nil {
			logger.Warn("Failed to close datasource connections", zap.String("error", logging.SanitizeError(err)))
		}
	})

	a.datasources, err = services.NewDatasourceService(
		cfg.DatasourceModels(),
		datasource.NewDatasourceAdapterFactory(connMgr, logger),
		logger,
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid datasources: %w", err)
	}

	if a.registry, err = buildRegistry(cfg, logger); err != nil {
		a.Close()
		return nil, err
	}

	var repo repositories.ClassificationRepository
	if cfg.Results.Enabled {
		db, err := openResultsDB(ctx, cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		repo = repositories.NewClassificationRepository(db)
	}

	a.discovery = services.NewDiscoveryService(services.DiscoveryDeps{
		Registry:    a.registry,
		Datasources: a.datasources,
		Catalog:     services.NewCatalogService(a.datasources, logger),
		Scanner:     services.NewScannerService(a.datasources, logger),
		Repository:  repo,
		Defaults:    cfg.Scan,
		Logger:      logger,
	})
	return a, nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildRegistry registers the built-in rules plus the optional custom rule pack.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*rules.Registry, error) {
	var custom []models.Rule
	if cfg.CustomRulesPath != "" {
		loaded, err := rules.LoadFile(cfg.CustomRulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load custom rules: %w", err)
		}
		custom = loaded
	}

	registry, err := rules.NewRegistry(custom, rules.WithOverride(cfg.Scan.AllowRuleOverride))
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}

	logger.Info("Rules registered",
		zap.Int("total", len(registry.All())),
		zap.Int("custom", len(custom)))
	return registry, nil
}

func openResultsDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	dbCfg := cfg.Results.Database
	db, err := database.Open(ctx, &database.Config{
		URL:            dbCfg.ConnectionString(),
		MaxConnections: dbCfg.MaxConnections,
	}, cfg.Results.MigrationsPath, logger.Named("migrations"))
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %s", logging.SanitizeError(err))
	}
	logger.Info("Results database ready",
		zap.String("host", dbCfg.Host),
		zap.String("database", dbCfg.Database))
	return db, nil
}
