package sql

import (
	"fmt"
	"math"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// EvaluateSample computes the scan rows of q from sampled rows keyed by column name,
// with the same frequency definition RenderScan pushes down to the database.
func EvaluateSample(q *ScanQuery, rows []map[string]any) ([]models.ScanRow, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	out := make([]models.ScanRow, 0, len(q.Probes))
	for _, p := range q.Probes {
		if p.Rule.Match == nil {
			return nil, &apperrors.CompilationError{
				Table: q.Table.Ref().String(),
				Err:   fmt.Errorf("rule %s cannot be evaluated locally", p.Rule.Name),
			}
		}

		var nonNull, matched int
		for _, row := range rows {
			v, ok := row[p.Column.Name]
			if !ok || v == nil {
				continue
			}
			nonNull++
			if p.Rule.Match(v) {
				matched++
			}
		}

		freq := 0.0
		if nonNull > 0 {
			freq = float64(matched) / float64(nonNull)
		}
		out = append(out, models.ScanRow{
			Catalog:   q.Table.Catalog,
			Database:  q.Table.Database,
			Table:     q.Table.Table,
			Column:    p.Column.Name,
			RuleName:  p.Rule.Name,
			Frequency: freq,
		})
	}
	return out, nil
}

// DecodeScanRows converts rows returned by a rendered scan query into scan rows.
// Any missing column or non-numeric frequency fails the whole batch.
func DecodeScanRows(rows []map[string]any) ([]models.ScanRow, error) {
	out := make([]models.ScanRow, 0, len(rows))
	for i, row := range rows {
		var sr models.ScanRow
		fields := []struct {
			name string
			dst  *string
		}{
			{ColCatalog, &sr.Catalog},
			{ColDatabase, &sr.Database},
			{ColTable, &sr.Table},
			{ColColumn, &sr.Column},
			{ColRuleName, &sr.RuleName},
		}
		for _, f := range fields {
			v, ok := row[f.name]
			if !ok || v == nil {
				return nil, fmt.Errorf("row %d: missing %s", i, f.name)
			}
			*f.dst = models.ValueText(v)
		}

		freq, ok := models.ValueFloat(row[ColFrequency])
		if !ok || math.IsNaN(freq) {
			return nil, fmt.Errorf("row %d: invalid frequency %v", i, row[ColFrequency])
		}
		sr.Frequency = freq
		out = append(out, sr)
	}
	return out, nil
}
