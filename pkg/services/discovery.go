package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/audit"
	"github.com/ekaya-inc/ekaya-discover/pkg/config"
	"github.com/ekaya-inc/ekaya-discover/pkg/filter"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/repositories"
	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
	sqlpkg "github.com/ekaya-inc/ekaya-discover/pkg/sql"
)

// ScanRequest holds per-call scan options. Zero values fall back to the configured defaults.
type ScanRequest struct {
	Catalogs   string   `json:"catalogs,omitempty"`
	Databases  string   `json:"databases,omitempty"`
	Tables     string   `json:"tables,omitempty"`
	Rules      []string `json:"rules,omitempty"`
	SampleSize *int     `json:"sample_size,omitempty"` // 0 forces a full scan
	DryRun     *bool    `json:"dry_run,omitempty"`
	Threshold  *float64 `json:"column_type_classification_threshold,omitempty"`
	Policy     string   `json:"classification_policy,omitempty"`
	Evaluation string   `json:"evaluation,omitempty"`
	Workers    int      `json:"workers,omitempty"`
	TagLevel   string   `json:"tag_level,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// ScanReport is the outcome of one Scan call.
type ScanReport struct {
	ScanID     uuid.UUID           `json:"scan_id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	DryRun     bool                `json:"dry_run"`
	SampleSize *int                `json:"sample_size,omitempty"`
	Tables     int                 `json:"tables"`
	Rules      []string            `json:"rules"`
	Succeeded  int                 `json:"succeeded"`
	Skipped    int                 `json:"skipped"`
	Failures   []TableFailure      `json:"failures,omitempty"`
	Queries    []RenderedQuery     `json:"queries,omitempty"`
	Summary    *models.ScanSummary `json:"summary"`
	Message    string              `json:"message"`
	Persisted  bool                `json:"persisted"`

	Result *models.ScanResult `json:"-"`
}

// MsqlResult is the outcome of one Msql call.
type MsqlResult struct {
	Statements []string         `json:"statements"`
	SQL        string           `json:"sql,omitempty"` // dry run: statements joined with UNION ALL
	Columns    []string         `json:"columns,omitempty"`
	Rows       []map[string]any `json:"rows,omitempty"`
	Failures   []TableFailure   `json:"failures,omitempty"`
}

// DiscoveryService is the entry point for scans, rule listing and msql.
type DiscoveryService interface {
	// Scan enumerates tables, runs the rules against them, classifies columns and keeps the
	// report as the latest scan. Zero tables or zero rules yield an empty report, not an error.
	Scan(ctx context.Context, req ScanRequest, progress ProgressFunc) (*ScanReport, error)

	// Msql expands template against the latest scan's classified columns and runs the
	// statements, or only returns them when dryRun is set.
	Msql(ctx context.Context, template string, dryRun bool) (*MsqlResult, error)

	// Rules returns the registered rules a selector picks, in registration order.
	Rules(sel rules.Selector) ([]models.Rule, error)

	// RulesInfo returns the display form of every registered rule.
	RulesInfo() []rules.RuleInfo

	// LatestScan returns the report of the most recent scan, or apperrors.ErrNoScanResult.
	LatestScan() (*ScanReport, error)

	// Reclassify summarizes the latest scan result again at another threshold or policy.
	Reclassify(threshold float64, policy models.ClassificationPolicy) (*models.ScanSummary, error)

	// Classifications returns the latest persisted classification per (column, class).
	// Without a results database it falls back to the latest in-memory scan.
	Classifications(ctx context.Context, f repositories.ClassificationFilter) ([]models.ClassificationRecord, error)
}

// DiscoveryDeps collects the collaborators of the discovery service.
type DiscoveryDeps struct {
	Registry    *rules.Registry
	Datasources DatasourceService
	Catalog     CatalogService
	Scanner     ScannerService
	Repository  repositories.ClassificationRepository // nil disables persistence
	Auditor     *audit.SecurityAuditor                // nil uses one built from Logger
	Defaults    config.ScanConfig
	Logger      *zap.Logger
}

type discoveryService struct {
	registry    *rules.Registry
	datasources DatasourceService
	catalog     CatalogService
	scanner     ScannerService
	repo        repositories.ClassificationRepository
	auditor     *audit.SecurityAuditor
	defaults    config.ScanConfig
	logger      *zap.Logger

	mu     sync.RWMutex
	latest *ScanReport
}

// NewDiscoveryService creates a DiscoveryService.
func NewDiscoveryService(deps DiscoveryDeps) DiscoveryService {
	auditor := deps.Auditor
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(deps.Logger)
	}
	return &discoveryService{
		auditor:     auditor,
		registry:    deps.Registry,
		datasources: deps.Datasources,
		catalog:     deps.Catalog,
		scanner:     deps.Scanner,
		repo:        deps.Repository,
		defaults:    deps.Defaults,
		logger:      deps.Logger.Named("discovery"),
	}
}

var _ DiscoveryService = (*discoveryService)(nil)

// resolvedScan is a ScanRequest merged with the defaults and validated.
type resolvedScan struct {
	query      TableQuery
	selector   rules.Selector
	options    ScanOptions
	classifier *Classifier
}

func (s *discoveryService) resolve(req ScanRequest) (*resolvedScan, error) {
	d := s.defaults
	pick := func(v, def string) string {
		if strings.TrimSpace(v) != "" {
			return v
		}
		return def
	}

	var r resolvedScan
	var err error
	for _, f := range []struct {
		field string
		expr  string
		dst   *filter.Filter
	}{
		{"catalogs", pick(req.Catalogs, d.Catalogs), &r.query.Catalogs},
		{"databases", pick(req.Databases, d.Databases), &r.query.Databases},
		{"tables", pick(req.Tables, d.Tables), &r.query.Tables},
	} {
		if *f.dst, err = filter.Parse(f.expr); err != nil {
			return nil, apperrors.NewConfigurationError(f.field, err)
		}
	}

	ruleList := req.Rules
	if len(ruleList) == 0 {
		ruleList = d.Rules
	}
	if r.selector, err = rules.SelectorFromList(ruleList); err != nil {
		return nil, apperrors.NewConfigurationError("rules", err)
	}

	tags, level := req.Tags, pick(req.TagLevel, d.TagLevel)
	if len(tags) == 0 {
		tags = d.Tags
	}
	if len(tags) > 0 {
		lvl, err := datasource.ParseTagLevel(level)
		if err != nil {
			return nil, apperrors.NewConfigurationError("tag_level", err)
		}
		r.query.Tags = &TagFilter{Level: lvl, Tags: tags}
	}

	r.options = ScanOptions{
		SampleSize:   d.SampleSizePtr(),
		DryRun:       d.DryRun,
		Workers:      d.Workers,
		TableTimeout: d.TableTimeout,
		Evaluation:   pick(req.Evaluation, d.Evaluation),
	}
	if req.SampleSize != nil {
		if *req.SampleSize < 0 {
			return nil, apperrors.NewConfigurationError("sample_size", errors.New("must be >= 0 (0 scans the full table)"))
		}
		r.options.SampleSize = nil
		if *req.SampleSize > 0 {
			n := *req.SampleSize
			r.options.SampleSize = &n
		}
	}
	if req.DryRun != nil {
		r.options.DryRun = *req.DryRun
	}
	if req.Workers > 0 {
		r.options.Workers = req.Workers
	}

	threshold := d.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	policy := models.ClassificationPolicy(pick(req.Policy, d.ClassificationPolicy))
	if r.classifier, err = NewClassifier(threshold, policy, s.registry.Order()); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *discoveryService) Scan(ctx context.Context, req ScanRequest, progress ProgressFunc) (*ScanReport, error) {
	resolved, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	selected, err := s.registry.Rules(resolved.selector)
	if err != nil {
		return nil, err
	}

	report := &ScanReport{
		ScanID:     uuid.New(),
		StartedAt:  time.Now().UTC(),
		DryRun:     resolved.options.DryRun,
		SampleSize: resolved.options.SampleSize,
		Rules:      make([]string, 0, len(selected)),
	}
	for _, r := range selected {
		report.Rules = append(report.Rules, r.Name)
	}

	tables, err := s.catalog.ListTables(ctx, resolved.query)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tables: %w", err)
	}
	report.Tables = len(tables)

	s.logAsked(resolved, tables, selected)

	if len(tables) == 0 || len(selected) == 0 {
		report.FinishedAt = time.Now().UTC()
		report.Summary = resolved.classifier.Summarize(nil)
		if len(tables) == 0 {
			report.Message = "No tables matched the catalog, database and table filters; nothing to scan."
		} else {
			report.Message = "No rules matched the rule selection; nothing to scan."
		}
		s.logger.Info(report.Message)
		return report, nil
	}

	outcome, err := s.scanner.ExecuteScan(ctx, tables, selected, resolved.options, progress)
	if err != nil {
		return nil, err
	}

	report.FinishedAt = time.Now().UTC()
	report.Result = outcome.Result
	report.Succeeded = outcome.Succeeded
	report.Skipped = outcome.Skipped
	report.Failures = outcome.Failures
	report.Queries = outcome.Queries
	report.Summary = resolved.classifier.Summarize(outcome.Result)

	if report.DryRun {
		report.Message = fmt.Sprintf("Dry run: rendered %s for %s.",
			countNoun(len(outcome.Queries), "query"), countNoun(len(tables), "table"))
		s.logger.Info(report.Message)
		return report, nil
	}

	report.Message = DescribeSummary(report.Summary, report.Succeeded, report.Skipped)
	s.logger.Info("Scan finished",
		zap.String("scan_id", report.ScanID.String()),
		zap.String("summary", report.Message))

	s.persist(ctx, report)

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	return report, nil
}

func (s *discoveryService) logAsked(r *resolvedScan, tables []models.TableInfo, selected []models.Rule) {
	catalogs := make(map[string]bool)
	databases := make(map[string]bool)
	for _, t := range tables {
		catalogs[t.Catalog] = true
		databases[t.Catalog+"."+t.Database] = true
	}
	sample := "full table"
	if r.options.SampleSize != nil {
		sample = fmt.Sprintf("%d rows", *r.options.SampleSize)
	}
	s.logger.Info("Starting scan",
		zap.String("catalogs", r.query.Catalogs.String()),
		zap.String("databases", r.query.Databases.String()),
		zap.String("tables", r.query.Tables.String()),
		zap.String("rules", r.selector.String()),
		zap.Int("catalog_count", len(catalogs)),
		zap.Int("database_count", len(databases)),
		zap.Int("table_count", len(tables)),
		zap.Int("rule_count", len(selected)),
		zap.String("sample", sample),
		zap.Bool("dry_run", r.options.DryRun),
		zap.String("evaluation", r.options.Evaluation))
}

// persist writes the classification log. Failures are logged; the scan result stands.
func (s *discoveryService) persist(ctx context.Context, report *ScanReport) {
	if s.repo == nil {
		return
	}
	summary := report.Summary
	scan := &models.ScanRecord{
		ScanID:            report.ScanID,
		StartedAt:         report.StartedAt,
		FinishedAt:        report.FinishedAt,
		Threshold:         summary.Threshold,
		Policy:            summary.Policy,
		SampleSize:        report.SampleSize,
		TablesScanned:     report.Succeeded,
		TablesSkipped:     report.Skipped,
		ColumnsScanned:    summary.ScannedColumns,
		ColumnsClassified: summary.ClassifiedColumns,
	}
	records := models.ClassificationRecords(report.ScanID, report.FinishedAt, summary)
	if err := s.repo.SaveScan(ctx, scan, records); err != nil {
		s.logger.Error("Failed to persist classifications",
			zap.String("scan_id", report.ScanID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return
	}
	report.Persisted = true
}

func (s *discoveryService) LatestScan() (*ScanReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, apperrors.ErrNoScanResult
	}
	return s.latest, nil
}

func (s *discoveryService) Reclassify(threshold float64, policy models.ClassificationPolicy) (*models.ScanSummary, error) {
	latest, err := s.LatestScan()
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(threshold, policy, s.registry.Order())
	if err != nil {
		return nil, err
	}
	return c.Summarize(latest.Result), nil
}

func (s *discoveryService) Rules(sel rules.Selector) ([]models.Rule, error) {
	return s.registry.Rules(sel)
}

func (s *discoveryService) RulesInfo() []rules.RuleInfo {
	return s.registry.RulesInfo()
}

func (s *discoveryService) Classifications(ctx context.Context, f repositories.ClassificationFilter) ([]models.ClassificationRecord, error) {
	if s.repo != nil {
		return s.repo.ListLatest(ctx, f)
	}

	latest, err := s.LatestScan()
	if err != nil {
		return nil, err
	}
	match := func(want, have string) bool { return want == "" || strings.EqualFold(want, have) }
	var out []models.ClassificationRecord
	for _, rec := range models.ClassificationRecords(latest.ScanID, latest.FinishedAt, latest.Summary) {
		if match(f.Catalog, rec.TableCatalog) && match(f.Schema, rec.TableSchema) &&
			match(f.Table, rec.TableName) && match(f.ClassName, rec.ClassName) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *discoveryService) Msql(ctx context.Context, template string, dryRun bool) (*MsqlResult, error) {
	latest, err := s.LatestScan()
	if err != nil {
		return nil, err
	}

	tmpl, err := sqlpkg.ParseMsql(template)
	if err != nil {
		var injection *sqlpkg.InjectionCheckResult
		if errors.As(err, &injection) {
			s.auditor.LogInjectionAttempt(ctx, audit.InjectionDetails{
				Literal:     injection.Literal,
				Fingerprint: injection.Fingerprint,
				Template:    template,
			})
		} else {
			s.auditor.LogTemplateRejected(ctx, template, err)
		}
		return nil, err
	}
	err = tmpl.ResolveRules(func(name string) (string, error) {
		rule, ok := s.registry.Get(name)
		if !ok {
			return "", fmt.Errorf("%w: %s", apperrors.ErrRuleNotFound, name)
		}
		return rule.Name, nil
	})
	if err != nil {
		return nil, err
	}
	referenced := tmpl.Rules()

	tables, err := s.catalog.ListTables(ctx, TableQuery{
		Catalogs:  tmpl.Catalogs,
		Databases: tmpl.Databases,
		Tables:    tmpl.Tables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tables: %w", err)
	}

	type tableStatements struct {
		table      models.TableRef
		statements []string
	}
	var planned []tableStatements
	result := &MsqlResult{Statements: []string{}}

	for _, t := range tables {
		ref := t.Ref()
		classified := make(map[string][]string, len(referenced))
		for _, rule := range referenced {
			classified[rule] = latest.Summary.ColumnsClassifiedAs(rule, ref)
		}

		dialect, err := s.datasources.Dialect(ref.Catalog)
		if err == nil {
			var stmts []string
			stmts, err = sqlpkg.CompileMsql(tmpl, ref, classified, dialect)
			if err == nil {
				if len(stmts) > 0 {
					planned = append(planned, tableStatements{table: ref, statements: stmts})
					result.Statements = append(result.Statements, stmts...)
				}
				continue
			}
		}
		result.Failures = append(result.Failures, TableFailure{Table: ref, Stage: StageCompile, Error: logging.SanitizeError(err)})
		s.logger.Warn("Skipping table for msql", zap.String("table", ref.String()), zap.String("error", logging.SanitizeError(err)))
	}

	s.logger.Info("Compiled msql",
		zap.Int("tables", len(planned)),
		zap.Int("statements", len(result.Statements)),
		zap.Bool("dry_run", dryRun))

	if dryRun {
		result.SQL = strings.Join(result.Statements, "\nUNION ALL\n")
		if len(result.Statements) > 0 {
			result.Columns = sqlpkg.ParseSelectColumns(result.Statements[0])
		}
		s.auditMsql(ctx, template, result, true)
		return result, nil
	}

	execs := newExecutorSet(s.datasources)
	defer execs.close(s.logger)

	for _, p := range planned {
		for _, stmt := range p.statements {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			exec, err := execs.get(ctx, p.table.Catalog)
			if err == nil {
				var res *datasource.QueryExecutionResult
				res, err = exec.Query(ctx, stmt, 0)
				if err == nil {
					if result.Columns == nil {
						for _, c := range res.Columns {
							result.Columns = append(result.Columns, c.Name)
						}
					}
					result.Rows = append(result.Rows, res.Rows...)
					continue
				}
			}
			execErr := &apperrors.ExecutionError{Table: p.table.String(), Err: err}
			result.Failures = append(result.Failures, TableFailure{Table: p.table, Stage: StageExecute, Error: logging.SanitizeError(execErr)})
			s.logger.Warn("msql statement failed",
				zap.String("table", p.table.String()),
				zap.String("query", logging.SanitizeQuery(stmt)),
				zap.String("error", logging.SanitizeError(execErr)))
		}
	}
	s.auditMsql(ctx, template, result, false)
	return result, nil
}

func (s *discoveryService) auditMsql(ctx context.Context, template string, result *MsqlResult, dryRun bool) {
	s.auditor.LogMsqlExecution(ctx, audit.MsqlExecutionDetails{
		Template:   template,
		Statements: len(result.Statements),
		Rows:       len(result.Rows),
		Failures:   len(result.Failures),
		DryRun:     dryRun,
	})
}
