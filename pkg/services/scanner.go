package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/config"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/retry"
	sqlpkg "github.com/ekaya-inc/ekaya-discover/pkg/sql"
)

// ScanOptions controls one scan run.
type ScanOptions struct {
	// SampleSize bounds the rows read per table; nil reads the whole table.
	SampleSize *int
	// DryRun renders each table's query without executing it.
	DryRun bool
	// Workers is the number of tables scanned at once; values below 2 scan sequentially.
	Workers int
	// TableTimeout bounds each table's query; 0 disables the bound.
	TableTimeout time.Duration
	// Evaluation is config.EvaluationPushdown (default) or config.EvaluationLocal.
	Evaluation string
}

// TableStatus is the outcome of one table.
type TableStatus string

const (
	TableStatusScanned  TableStatus = "scanned"
	TableStatusNoProbes TableStatus = "no_probes" // no column compatible with any rule
	TableStatusDryRun   TableStatus = "dry_run"
	TableStatusFailed   TableStatus = "failed"
)

// TableProgress is reported once per table, in table order.
type TableProgress struct {
	Index    int // 1-based
	Total    int
	Table    models.TableRef
	Status   TableStatus
	Rows     int
	Duration time.Duration
	Err      error
}

// ProgressFunc receives per-table progress. It is never called concurrently. In a
// parallel scan a table is reported once it and every table before it have finished.
type ProgressFunc func(TableProgress)

// Failure stages.
const (
	StageCompile = "compile"
	StageExecute = "execute"
	StageCommit  = "commit"
)

// TableFailure records a table skipped because of an error.
type TableFailure struct {
	Table models.TableRef `json:"table"`
	Stage string          `json:"stage"`
	Error string          `json:"error"`
}

// RenderedQuery is the statement a dry run would have executed for one table.
type RenderedQuery struct {
	Table models.TableRef `json:"table"`
	SQL   string          `json:"sql"`
}

// ScanOutcome is the result of ExecuteScan.
type ScanOutcome struct {
	Result    *models.ScanResult
	Queries   []RenderedQuery // dry run only
	Succeeded int
	Skipped   int
	Failures  []TableFailure
}

// ScannerService runs scans over already enumerated tables.
type ScannerService interface {
	// ExecuteScan compiles and runs one query per table and concatenates the rows.
	// A failing table is logged, recorded in the outcome and skipped; the scan itself
	// only fails on invalid options or cancellation of ctx, in which case the partial
	// outcome is returned with the context error.
	ExecuteScan(ctx context.Context, tables []models.TableInfo, rules []models.Rule, opts ScanOptions, progress ProgressFunc) (*ScanOutcome, error)
}

type scannerService struct {
	datasources DatasourceService
	retryConfig *retry.Config
	logger      *zap.Logger
}

// NewScannerService creates a ScannerService executing queries through datasources.
func NewScannerService(datasources DatasourceService, logger *zap.Logger) ScannerService {
	s := &scannerService{
		datasources: datasources,
		retryConfig: retry.DefaultConfig(),
		logger:      logger.Named("scanner"),
	}
	s.retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Debug("Retrying scan query after transient error",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", logging.SanitizeError(err)))
	}
	return s
}

var _ ScannerService = (*scannerService)(nil)

type tableScan struct {
	rows     []models.ScanRow
	query    string
	status   TableStatus
	duration time.Duration
}

func (s *scannerService) ExecuteScan(
	ctx context.Context,
	tables []models.TableInfo,
	rules []models.Rule,
	opts ScanOptions,
	progress ProgressFunc,
) (*ScanOutcome, error) {
	if opts.Evaluation == "" {
		opts.Evaluation = config.EvaluationPushdown
	}
	if opts.Evaluation != config.EvaluationPushdown && opts.Evaluation != config.EvaluationLocal {
		return nil, apperrors.NewConfigurationError("evaluation", fmt.Errorf("unknown mode %q", opts.Evaluation))
	}
	if opts.SampleSize != nil && *opts.SampleSize <= 0 {
		return nil, apperrors.NewConfigurationError("sample_size", fmt.Errorf("must be positive, got %d", *opts.SampleSize))
	}

	outcome := &ScanOutcome{}
	builder := models.NewScanResultBuilder()
	if len(tables) == 0 || len(rules) == 0 {
		outcome.Result = builder.Build()
		return outcome, nil
	}

	execs := newExecutorSet(s.datasources)
	defer execs.close(s.logger)

	total := len(tables)
	commit := func(i int, ts tableScan, err error) {
		ref := tables[i].Ref()
		p := TableProgress{Index: i + 1, Total: total, Table: ref, Duration: ts.duration}

		if err == nil {
			if appendErr := builder.AppendTable(ref, ts.rows); appendErr != nil {
				err = fmt.Errorf("%s: %w", StageCommit, appendErr)
			}
		}

		if err != nil {
			stage := failureStage(err)
			outcome.Skipped++
			outcome.Failures = append(outcome.Failures, TableFailure{Table: ref, Stage: stage, Error: logging.SanitizeError(err)})
			p.Status = TableStatusFailed
			p.Err = err
			s.logger.Warn("Skipping table",
				zap.String("table", ref.String()),
				zap.String("stage", stage),
				zap.String("error", logging.SanitizeError(err)))
		} else {
			outcome.Succeeded++
			if ts.status == TableStatusDryRun {
				outcome.Queries = append(outcome.Queries, RenderedQuery{Table: ref, SQL: ts.query})
			}
			p.Status = ts.status
			p.Rows = len(ts.rows)
			s.logger.Info("Table done",
				zap.Int("index", p.Index),
				zap.Int("total", total),
				zap.String("table", ref.String()),
				zap.String("status", string(ts.status)),
				zap.Int("rows", len(ts.rows)),
				zap.Duration("duration", ts.duration))
		}

		if progress != nil {
			progress(p)
		}
	}

	if opts.Workers <= 1 {
		for i, table := range tables {
			if ctx.Err() != nil {
				break
			}
			ts, err := s.scanTable(ctx, table, rules, opts, execs)
			commit(i, ts, err)
		}
	} else {
		pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: opts.Workers}, s.logger)
		items := make([]WorkItem[tableScan], len(tables))
		for i, table := range tables {
			table := table
			items[i] = WorkItem[tableScan]{
				ID: table.Ref().String(),
				Execute: func(ctx context.Context) (tableScan, error) {
					return s.scanTable(ctx, table, rules, opts, execs)
				},
			}
		}
		// onDone runs on a single goroutine. Each finished table is held until every
		// table before it has been committed, so output order matches a sequential scan.
		finished := make([]*WorkResult[tableScan], len(tables))
		next := 0
		Process(ctx, pool, items, func(r WorkResult[tableScan], _, _ int) {
			finished[r.Index] = &r
			for next < len(finished) && finished[next] != nil {
				commit(next, finished[next].Result, finished[next].Err)
				next++
			}
		})
	}

	outcome.Result = builder.Build()
	if err := ctx.Err(); err != nil {
		return outcome, fmt.Errorf("scan interrupted after %d of %d tables: %w", outcome.Succeeded+outcome.Skipped, total, err)
	}
	return outcome, nil
}

func (s *scannerService) scanTable(
	ctx context.Context,
	table models.TableInfo,
	rules []models.Rule,
	opts ScanOptions,
	execs *executorSet,
) (tableScan, error) {
	start := time.Now()
	ref := table.Ref().String()

	q, err := sqlpkg.CompileTableScan(table, rules, opts.SampleSize)
	if err != nil {
		return tableScan{}, err
	}
	if q.IsEmpty() {
		return tableScan{status: TableStatusNoProbes, duration: time.Since(start)}, nil
	}

	dialect, err := s.datasources.Dialect(table.Catalog)
	if err != nil {
		return tableScan{}, &apperrors.CompilationError{Table: ref, Err: err}
	}

	local := opts.Evaluation == config.EvaluationLocal
	var stmt string
	if local {
		stmt, err = sqlpkg.RenderSample(q, dialect)
	} else {
		stmt, err = sqlpkg.RenderScan(q, dialect)
	}
	if err != nil {
		return tableScan{}, err
	}

	if opts.DryRun {
		return tableScan{query: stmt, status: TableStatusDryRun, duration: time.Since(start)}, nil
	}

	exec, err := execs.get(ctx, table.Catalog)
	if err != nil {
		return tableScan{}, &apperrors.ExecutionError{Table: ref, Err: err}
	}

	tctx := ctx
	if opts.TableTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, opts.TableTimeout)
		defer cancel()
	}

	s.logger.Debug("Executing scan query",
		zap.String("table", ref),
		zap.Int("probes", len(q.Probes)),
		zap.String("query", logging.SanitizeQuery(stmt)))

	res, err := retry.DoWithResultIfRetryable(tctx, s.retryConfig, func() (*datasource.QueryExecutionResult, error) {
		return exec.Query(tctx, stmt, 0)
	})
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", opts.TableTimeout, err)
		}
		return tableScan{}, &apperrors.ExecutionError{Table: ref, Err: err}
	}

	var rows []models.ScanRow
	if local {
		rows, err = sqlpkg.EvaluateSample(q, res.Rows)
	} else {
		rows, err = sqlpkg.DecodeScanRows(res.Rows)
	}
	if err != nil {
		var compileErr *apperrors.CompilationError
		if errors.As(err, &compileErr) {
			return tableScan{}, err
		}
		return tableScan{}, &apperrors.ExecutionError{Table: ref, Err: fmt.Errorf("decode result: %w", err)}
	}

	return tableScan{rows: rows, query: stmt, status: TableStatusScanned, duration: time.Since(start)}, nil
}

func failureStage(err error) string {
	var compileErr *apperrors.CompilationError
	if errors.As(err, &compileErr) {
		return StageCompile
	}
	var execErr *apperrors.ExecutionError
	if errors.As(err, &execErr) {
		return StageExecute
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StageExecute
	}
	return StageCommit
}

// executorSet opens one query executor per catalog for the duration of a scan.
type executorSet struct {
	mu          sync.Mutex
	datasources DatasourceService
	open        map[string]datasource.QueryExecutor
}

func newExecutorSet(datasources DatasourceService) *executorSet {
	return &executorSet{
		datasources: datasources,
		open:        make(map[string]datasource.QueryExecutor),
	}
}

func (e *executorSet) get(ctx context.Context, catalog string) (datasource.QueryExecutor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if exec, ok := e.open[catalog]; ok {
		return exec, nil
	}
	exec, err := e.datasources.QueryExecutor(ctx, catalog)
	if err != nil {
		return nil, err
	}
	e.open[catalog] = exec
	return exec, nil
}

func (e *executorSet) close(logger *zap.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for catalog, exec := range e.open {
		if err := exec.Close(); err != nil {
			logger.Warn("Failed to close query executor",
				zap.String("catalog", catalog),
				zap.String("error", logging.SanitizeError(err)))
		}
	}
	e.open = nil
}
