package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/config"
	"github.com/ekaya-inc/ekaya-discover/pkg/handlers"
	"github.com/ekaya-inc/ekaya-discover/pkg/mcp"
	"github.com/ekaya-inc/ekaya-discover/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-discover/pkg/middleware"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, version)
		},
	}
}

func runServe(ctx context.Context, configPath, version string) error {
	a, err := newApp(ctx, configPath, version)
	if err != nil {
		return err
	}
	defer a.Close()

	return serve(ctx, a.cfg, newHandler(a), a.logger)
}

// newHandler mounts the HTTP API and the MCP endpoint on one mux.
func newHandler(a *app) http.Handler {
	logger := a.logger
	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.datasources, logger).RegisterRoutes(mux)
	handlers.NewRulesHandler(a.discovery, logger).RegisterRoutes(mux)
	handlers.NewScansHandler(a.discovery, logger).RegisterRoutes(mux)
	handlers.NewMsqlHandler(a.discovery, logger).RegisterRoutes(mux)
	handlers.NewClassificationsHandler(a.discovery, logger).RegisterRoutes(mux)
	handlers.NewDatasourcesHandler(a.datasources, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("ekaya-discover", a.cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), a.cfg.Version, a.datasources)
	tools.RegisterDiscoveryTools(mcpServer.MCP(), &tools.DiscoveryToolDeps{
		Discovery: a.discovery,
		Logger:    logger.Named("mcp-tools"),
	})
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	return middleware.Recover(logger)(middleware.RequestLogger(logger.Named("http"))(mux))
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, cfg *config.Config, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		useTLS := cfg.TLSCertPath != ""
		logger.Info("Starting ekaya-discover",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", useTLS),
			zap.String("version", cfg.Version))

		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
