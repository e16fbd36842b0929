package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClassificationPolicy decides what happens when several rules exceed the threshold for one column.
type ClassificationPolicy string

const (
	// ClassificationPolicyAll keeps every rule above the threshold.
	ClassificationPolicyAll ClassificationPolicy = "all"
	// ClassificationPolicyBest keeps the highest frequency; ties go to the earlier registered rule.
	ClassificationPolicyBest ClassificationPolicy = "best"
)

// ParseClassificationPolicy validates a policy name. Empty means ClassificationPolicyAll.
func ParseClassificationPolicy(s string) (ClassificationPolicy, error) {
	switch ClassificationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClassificationPolicyAll:
		return ClassificationPolicyAll, nil
	case ClassificationPolicyBest:
		return ClassificationPolicyBest, nil
	default:
		return "", fmt.Errorf("unknown classification policy %q (want all or best)", s)
	}
}

// RuleCount is the number of columns classified under one rule.
type RuleCount struct {
	RuleName string `json:"rule_name"`
	Columns  int    `json:"columns"`
}

// ScanSummary is the classification of a scan result at one threshold.
type ScanSummary struct {
	Threshold         float64              `json:"threshold"`
	Policy            ClassificationPolicy `json:"policy"`
	ScannedColumns    int                  `json:"scanned_columns"`
	ClassifiedColumns int                  `json:"classified_columns"`
	RuleCounts        []RuleCount          `json:"rule_counts"`
	Classified        []ScanRow            `json:"classified"`
}

// ClassifiedRatio returns classified/scanned, or 0 when nothing was scanned.
func (s *ScanSummary) ClassifiedRatio() float64 {
	if s == nil || s.ScannedColumns == 0 {
		return 0
	}
	return float64(s.ClassifiedColumns) / float64(s.ScannedColumns)
}

// ColumnsClassifiedAs returns the columns of table classified under rule, in scan order.
func (s *ScanSummary) ColumnsClassifiedAs(rule string, table TableRef) []string {
	if s == nil {
		return nil
	}
	var cols []string
	for _, row := range s.Classified {
		if row.RuleName == rule && row.TableRef() == table {
			cols = append(cols, row.Column)
		}
	}
	return cols
}

// RulesFor returns the rules a column is classified under.
func (s *ScanSummary) RulesFor(col ColumnRef) []string {
	if s == nil {
		return nil
	}
	var rules []string
	for _, row := range s.Classified {
		if row.ColumnRef() == col {
			rules = append(rules, row.RuleName)
		}
	}
	return rules
}

// ClassificationRecord is one entry of the append-only classification log.
type ClassificationRecord struct {
	ScanID             uuid.UUID `json:"scan_id"`
	TableCatalog       string    `json:"table_catalog"`
	TableSchema        string    `json:"table_schema"`
	TableName          string    `json:"table_name"`
	ColumnName         string    `json:"column_name"`
	ClassName          string    `json:"class_name"`
	Score              float64   `json:"score"`
	EffectiveTimestamp time.Time `json:"effective_timestamp"`
}

// ClassificationRecords converts the classified rows of a summary into log records.
func ClassificationRecords(scanID uuid.UUID, at time.Time, summary *ScanSummary) []ClassificationRecord {
	if summary == nil {
		return nil
	}
	records := make([]ClassificationRecord, 0, len(summary.Classified))
	for _, row := range summary.Classified {
		records = append(records, ClassificationRecord{
			ScanID:             scanID,
			TableCatalog:       row.Catalog,
			TableSchema:        row.Database,
			TableName:          row.Table,
			ColumnName:         row.Column,
			ClassName:          row.RuleName,
			Score:              row.Frequency,
			EffectiveTimestamp: at,
		})
	}
	return records
}

// ScanRecord is the persisted header of one scan run; its classification records
// reference it by ScanID.
type ScanRecord struct {
	ScanID            uuid.UUID            `json:"scan_id"`
	StartedAt         time.Time            `json:"started_at"`
	FinishedAt        time.Time            `json:"finished_at"`
	Threshold         float64              `json:"threshold"`
	Policy            ClassificationPolicy `json:"policy"`
	SampleSize        *int                 `json:"sample_size,omitempty"`
	TablesScanned     int                  `json:"tables_scanned"`
	TablesSkipped     int                  `json:"tables_skipped"`
	ColumnsScanned    int                  `json:"columns_scanned"`
	ColumnsClassified int                  `json:"columns_classified"`
}
