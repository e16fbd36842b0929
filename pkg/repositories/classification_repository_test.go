//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/testhelpers"
)

func saveScan(t *testing.T, repo ClassificationRepository, at time.Time, score float64, catalog string) uuid.UUID {
	t.Helper()
	scanID := uuid.New()
	scan := &models.ScanRecord{
		ScanID: scanID, StartedAt: at.Add(-time.Second), FinishedAt: at,
		Threshold: 0.5, Policy: models.ClassificationPolicyAll,
		TablesScanned: 1, ColumnsScanned: 2, ColumnsClassified: 1,
	}
	records := []models.ClassificationRecord{{
		ScanID: scanID, TableCatalog: catalog, TableSchema: "public", TableName: "t1",
		ColumnName: "ip", ClassName: "ip_v4", Score: score, EffectiveTimestamp: at,
	}}
	require.NoError(t, repo.SaveScan(context.Background(), scan, records))
	return scanID
}

func TestClassificationRepository_SaveAndListLatest(t *testing.T) {
	results := testhelpers.GetResultsDB(t)
	repo := NewClassificationRepository(results.DB.Pool)
	ctx := context.Background()

	catalog := "repo_" + uuid.NewString()[:8]
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := saveScan(t, repo, base.Add(-time.Hour), 0.7, catalog)
	second := saveScan(t, repo, base, 0.9, catalog)

	latest, err := repo.ListLatest(ctx, ClassificationFilter{Catalog: catalog})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, second, latest[0].ScanID)
	assert.InDelta(t, 0.9, latest[0].Score, 1e-9)

	byScan, err := repo.ListByScan(ctx, first)
	require.NoError(t, err)
	require.Len(t, byScan, 1)
	assert.InDelta(t, 0.7, byScan[0].Score, 1e-9)

	scan, err := repo.GetScan(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationPolicyAll, scan.Policy)
	assert.Nil(t, scan.SampleSize)
}

func TestClassificationRepository_GetScanNotFound(t *testing.T) {
	results := testhelpers.GetResultsDB(t)
	repo := NewClassificationRepository(results.DB.Pool)

	_, err := repo.GetScan(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClassificationRepository_RejectsForeignRecords(t *testing.T) {
	results := testhelpers.GetResultsDB(t)
	repo := NewClassificationRepository(results.DB.Pool)
	ctx := context.Background()

	scanID := uuid.New()
	now := time.Now().UTC()
	err := repo.SaveScan(ctx,
		&models.ScanRecord{ScanID: scanID, StartedAt: now, FinishedAt: now, Policy: models.ClassificationPolicyBest},
		[]models.ClassificationRecord{{ScanID: uuid.New(), TableCatalog: "x", TableSchema: "s", TableName: "t",
			ColumnName: "c", ClassName: "email", Score: 1, EffectiveTimestamp: now}},
	)
	require.Error(t, err)

	// the transaction rolled back the header too
	_, err = repo.GetScan(ctx, scanID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
