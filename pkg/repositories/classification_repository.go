package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ClassificationFilter narrows ListLatest. Empty fields match everything.
type ClassificationFilter struct {
	Catalog   string
	Schema    string
	Table     string
	ClassName string
}

// ClassificationRepository stores the append-only classification log.
type ClassificationRepository interface {
	// SaveScan writes the scan header and its records in one transaction.
	SaveScan(ctx context.Context, scan *models.ScanRecord, records []models.ClassificationRecord) error
	// GetScan returns one scan header, or apperrors.ErrNotFound.
	GetScan(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error)
	// GetLatestScan returns the most recently finished scan, or apperrors.ErrNotFound.
	GetLatestScan(ctx context.Context) (*models.ScanRecord, error)
	// ListByScan returns the records written by one scan.
	ListByScan(ctx context.Context, scanID uuid.UUID) ([]models.ClassificationRecord, error)
	// ListLatest returns the most recent record per (column, class).
	ListLatest(ctx context.Context, filter ClassificationFilter) ([]models.ClassificationRecord, error)
}

type classificationRepository struct {
	db DBTX
}

// NewClassificationRepository creates a ClassificationRepository on db.
func NewClassificationRepository(db DBTX) ClassificationRepository {
	return &classificationRepository{db: db}
}

var _ ClassificationRepository = (*classificationRepository)(nil)

var classificationColumns = []string{
	"scan_id", "table_catalog", "table_schema", "table_name",
	"column_name", "class_name", "score", "effective_timestamp",
}

func (r *classificationRepository) SaveScan(ctx context.Context, scan *models.ScanRecord, records []models.ClassificationRecord) error {
	if scan == nil || scan.ScanID == uuid.Nil {
		return fmt.Errorf("scan id is required")
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO discovery_scans (
				scan_id, started_at, finished_at, threshold, policy, sample_size,
				tables_scanned, tables_skipped, columns_scanned, columns_classified
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			scan.ScanID, scan.StartedAt, scan.FinishedAt, scan.Threshold, string(scan.Policy), scan.SampleSize,
			scan.TablesScanned, scan.TablesSkipped, scan.ColumnsScanned, scan.ColumnsClassified,
		)
		if err != nil {
			return fmt.Errorf("failed to insert scan %s: %w", scan.ScanID, err)
		}

		if len(records) == 0 {
			return nil
		}

		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{"discovery_classifications"},
			classificationColumns,
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				rec := records[i]
				if rec.ScanID != scan.ScanID {
					return nil, fmt.Errorf("record %d belongs to scan %s", i, rec.ScanID)
				}
				return []any{
					rec.ScanID, rec.TableCatalog, rec.TableSchema, rec.TableName,
					rec.ColumnName, rec.ClassName, rec.Score, rec.EffectiveTimestamp,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy classifications: %w", err)
		}
		if copied != int64(len(records)) {
			return fmt.Errorf("copied %d of %d classifications", copied, len(records))
		}
		return nil
	})
}

const scanColumns = `scan_id, started_at, finished_at, threshold, policy, sample_size,
	tables_scanned, tables_skipped, columns_scanned, columns_classified`

func (r *classificationRepository) GetScan(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+scanColumns+` FROM discovery_scans WHERE scan_id = $1`, scanID)
	return scanScanRecord(row)
}

func (r *classificationRepository) GetLatestScan(ctx context.Context) (*models.ScanRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+scanColumns+` FROM discovery_scans ORDER BY finished_at DESC LIMIT 1`)
	return scanScanRecord(row)
}

func scanScanRecord(row pgx.Row) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	var policy string
	err := row.Scan(
		&rec.ScanID, &rec.StartedAt, &rec.FinishedAt, &rec.Threshold, &policy, &rec.SampleSize,
		&rec.TablesScanned, &rec.TablesSkipped, &rec.ColumnsScanned, &rec.ColumnsClassified,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scan record: %w", err)
	}
	rec.Policy = models.ClassificationPolicy(policy)
	return &rec, nil
}

func (r *classificationRepository) ListByScan(ctx context.Context, scanID uuid.UUID) ([]models.ClassificationRecord, error) {
	query := `
		SELECT ` + strings.Join(classificationColumns, ", ") + `
		FROM discovery_classifications
		WHERE scan_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	return collectClassifications(rows)
}

func (r *classificationRepository) ListLatest(ctx context.Context, filter ClassificationFilter) ([]models.ClassificationRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("lower(%s) = lower($%d)", column, len(args)))
	}
	add("table_catalog", filter.Catalog)
	add("table_schema", filter.Schema)
	add("table_name", filter.Table)
	add("class_name", filter.ClassName)

	query := `
		SELECT DISTINCT ON (table_catalog, table_schema, table_name, column_name, class_name)
			` + strings.Join(classificationColumns, ", ") + `
		FROM discovery_classifications`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += `
		ORDER BY table_catalog, table_schema, table_name, column_name, class_name, effective_timestamp DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest classifications: %w", err)
	}
	return collectClassifications(rows)
}

func collectClassifications(rows pgx.Rows) ([]models.ClassificationRecord, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ClassificationRecord, error) {
		var rec models.ClassificationRecord
		err := row.Scan(
			&rec.ScanID, &rec.TableCatalog, &rec.TableSchema, &rec.TableName,
			&rec.ColumnName, &rec.ClassName, &rec.Score, &rec.EffectiveTimestamp,
		)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating classifications: %w", err)
	}
	return records, nil
}
