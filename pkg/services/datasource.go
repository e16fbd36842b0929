package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-discover/pkg/sql"
)

// DatasourceService resolves catalog names to configured datasources and their adapters.
type DatasourceService interface {
	// List returns all datasources ordered by name.
	List() []*models.Datasource

	// Get returns the datasource of a catalog (case-insensitive), or an error wrapping
	// apperrors.ErrUnknownDatasource.
	Get(name string) (*models.Datasource, error)

	// Dialect returns the SQL dialect scans against the catalog are rendered in.
	Dialect(name string) (sqlpkg.Dialect, error)

	// CatalogReader opens a catalog reader for the catalog. The caller closes it.
	CatalogReader(ctx context.Context, name string) (datasource.CatalogReader, error)

	// QueryExecutor opens a query executor for the catalog. The caller closes it.
	QueryExecutor(ctx context.Context, name string) (datasource.QueryExecutor, error)

	// TestConnection verifies the catalog is reachable by running a trivial query.
	TestConnection(ctx context.Context, name string) error
}

type datasourceService struct {
	byName         map[string]*models.Datasource
	ordered        []*models.Datasource
	dialects       map[string]sqlpkg.Dialect
	adapterFactory datasource.DatasourceAdapterFactory
	logger         *zap.Logger
}

// NewDatasourceService validates every datasource against the registered adapters.
func NewDatasourceService(
	datasources []*models.Datasource,
	adapterFactory datasource.DatasourceAdapterFactory,
	logger *zap.Logger,
) (DatasourceService, error) {
	s := &datasourceService{
		byName:         make(map[string]*models.Datasource, len(datasources)),
		dialects:       make(map[string]sqlpkg.Dialect, len(datasources)),
		adapterFactory: adapterFactory,
		logger:         logger.Named("datasources"),
	}

	for _, ds := range datasources {
		key := strings.ToLower(ds.Name)
		if key == "" {
			return nil, fmt.Errorf("datasource name is required")
		}
		if _, dup := s.byName[key]; dup {
			return nil, fmt.Errorf("duplicate datasource %q", ds.Name)
		}

		dialectName, err := adapterFactory.Dialect(ds.DatasourceType)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", ds.Name, err)
		}
		dialect, err := sqlpkg.DialectFor(dialectName)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", ds.Name, err)
		}

		s.byName[key] = ds
		s.dialects[key] = dialect
		s.ordered = append(s.ordered, ds)
	}
	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i].Name < s.ordered[j].Name })

	return s, nil
}

var _ DatasourceService = (*datasourceService)(nil)

func (s *datasourceService) List() []*models.Datasource {
	out := make([]*models.Datasource, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func (s *datasourceService) Get(name string) (*models.Datasource, error) {
	ds, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatasource, name)
	}
	return ds, nil
}

func (s *datasourceService) Dialect(name string) (sqlpkg.Dialect, error) {
	d, ok := s.dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatasource, name)
	}
	return d, nil
}

func (s *datasourceService) CatalogReader(ctx context.Context, name string) (datasource.CatalogReader, error) {
	ds, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return s.adapterFactory.NewCatalogReader(ctx, ds.DatasourceType, ds.Name, ds.Config)
}

func (s *datasourceService) QueryExecutor(ctx context.Context, name string) (datasource.QueryExecutor, error) {
	ds, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return s.adapterFactory.NewQueryExecutor(ctx, ds.DatasourceType, ds.Name, ds.Config)
}

func (s *datasourceService) TestConnection(ctx context.Context, name string) error {
	exec, err := s.QueryExecutor(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	defer exec.Close()

	if _, err := exec.Query(ctx, "SELECT 1 AS ok", 0); err != nil {
		return fmt.Errorf("connection test failed for %s: %w", name, err)
	}
	return nil
}
