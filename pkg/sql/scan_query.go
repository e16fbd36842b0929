package sql

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// Probe is one (column, rule) pair evaluated by a scan query.
type Probe struct {
	Column models.ColumnInfo
	Rule   models.Rule
}

// ScanQuery is the dialect-independent form of one table's scan: the sample bound
// and every type-compatible (column, rule) pair, columns in ordinal order and rules
// in the order they were passed in.
type ScanQuery struct {
	Table      models.TableInfo
	SampleSize *int
	Probes     []Probe
}

// IsEmpty reports whether no column of the table is compatible with any rule.
func (q *ScanQuery) IsEmpty() bool {
	return q == nil || len(q.Probes) == 0
}

// Columns returns the distinct probed columns in probe order.
func (q *ScanQuery) Columns() []models.ColumnInfo {
	if q == nil {
		return nil
	}
	var cols []models.ColumnInfo
	seen := make(map[string]bool)
	for _, p := range q.Probes {
		if !seen[p.Column.Name] {
			seen[p.Column.Name] = true
			cols = append(cols, p.Column)
		}
	}
	return cols
}

// CompileTableScan builds the scan query of one table. Only columns whose semantic type
// matches a rule's target type are probed. A table with no compatible pair yields an
// empty query, not an error.
func CompileTableScan(table models.TableInfo, rules []models.Rule, sampleSize *int) (*ScanQuery, error) {
	ref := table.Ref().String()
	if sampleSize != nil && *sampleSize <= 0 {
		return nil, &apperrors.CompilationError{Table: ref, Err: fmt.Errorf("sample size must be positive, got %d", *sampleSize)}
	}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, &apperrors.CompilationError{Table: ref, Err: err}
		}
	}

	q := &ScanQuery{Table: table, SampleSize: sampleSize}
	for _, col := range table.Columns {
		for _, rule := range rules {
			if rule.AppliesTo(col) {
				q.Probes = append(q.Probes, Probe{Column: col, Rule: rule})
			}
		}
	}
	return q, nil
}

var errNoExpression = errors.New("predicate rule has no SQL expression")
