package handlers

import (
	"context"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/repositories"
	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
	sqlpkg "github.com/ekaya-inc/ekaya-discover/pkg/sql"
)

// mockDiscoveryService is a configurable DiscoveryService for handler tests.
type mockDiscoveryService struct {
	registry *rules.Registry

	report  *services.ScanReport
	scanErr error
	lastReq services.ScanRequest

	latest    *services.ScanReport
	reclassed *models.ScanSummary
	reclassTh float64
	reclassPo models.ClassificationPolicy

	msql       *services.MsqlResult
	msqlErr    error
	msqlDryRun bool
	records    []models.ClassificationRecord
	recordsErr error
	lastFilter repositories.ClassificationFilter
}

func (m *mockDiscoveryService) Scan(ctx context.Context, req services.ScanRequest, progress services.ProgressFunc) (*services.ScanReport, error) {
	m.lastReq = req
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.report, nil
}

func (m *mockDiscoveryService) Msql(ctx context.Context, template string, dryRun bool) (*services.MsqlResult, error) {
	m.msqlDryRun = dryRun
	if m.msqlErr != nil {
		return nil, m.msqlErr
	}
	return m.msql, nil
}

func (m *mockDiscoveryService) Rules(sel rules.Selector) ([]models.Rule, error) {
	return m.registry.Rules(sel)
}

func (m *mockDiscoveryService) RulesInfo() []rules.RuleInfo {
	return m.registry.RulesInfo()
}

func (m *mockDiscoveryService) LatestScan() (*services.ScanReport, error) {
	if m.latest == nil {
		return nil, apperrors.ErrNoScanResult
	}
	return m.latest, nil
}

func (m *mockDiscoveryService) Reclassify(threshold float64, policy models.ClassificationPolicy) (*models.ScanSummary, error) {
	if m.latest == nil {
		return nil, apperrors.ErrNoScanResult
	}
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.NewConfigurationError("column_type_classification_threshold", apperrors.ErrInvalidThreshold)
	}
	m.reclassTh, m.reclassPo = threshold, policy
	return m.reclassed, nil
}

func (m *mockDiscoveryService) Classifications(ctx context.Context, f repositories.ClassificationFilter) ([]models.ClassificationRecord, error) {
	m.lastFilter = f
	return m.records, m.recordsErr
}

var _ services.DiscoveryService = (*mockDiscoveryService)(nil)

// mockDatasourceService serves a fixed list of datasources.
type mockDatasourceService struct {
	list    []*models.Datasource
	testErr error
}

func (m *mockDatasourceService) List() []*models.Datasource { return m.list }

func (m *mockDatasourceService) Get(name string) (*models.Datasource, error) {
	for _, ds := range m.list {
		if ds.Name == name {
			return ds, nil
		}
	}
	return nil, apperrors.ErrUnknownDatasource
}

func (m *mockDatasourceService) Dialect(name string) (sqlpkg.Dialect, error) {
	return sqlpkg.DialectFor(sqlpkg.DialectPostgres)
}

func (m *mockDatasourceService) CatalogReader(ctx context.Context, name string) (datasource.CatalogReader, error) {
	return nil, apperrors.ErrUnknownDatasource
}

func (m *mockDatasourceService) QueryExecutor(ctx context.Context, name string) (datasource.QueryExecutor, error) {
	return nil, apperrors.ErrUnknownDatasource
}

func (m *mockDatasourceService) TestConnection(ctx context.Context, name string) error {
	return m.testErr
}

var _ services.DatasourceService = (*mockDatasourceService)(nil)
