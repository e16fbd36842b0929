package models

import (
	"fmt"
	"math"
)

// ScanRow is the match frequency of one rule over one column's sampled values.
type ScanRow struct {
	Catalog   string  `json:"catalog"`
	Database  string  `json:"database"`
	Table     string  `json:"table"`
	Column    string  `json:"column"`
	RuleName  string  `json:"rule_name"`
	Frequency float64 `json:"frequency"`
}

// ColumnRef returns the identity of the scanned column.
func (r ScanRow) ColumnRef() ColumnRef {
	return ColumnRef{Catalog: r.Catalog, Database: r.Database, Table: r.Table, Column: r.Column}
}

// TableRef returns the identity of the scanned table.
func (r ScanRow) TableRef() TableRef {
	return TableRef{Catalog: r.Catalog, Database: r.Database, Table: r.Table}
}

type scanRowKey struct {
	column ColumnRef
	rule   string
}

// ScanResult is the immutable, ordered output of one scan.
type ScanResult struct {
	rows     []ScanRow
	tables   []TableRef
	columns  []ColumnRef
	byTable  map[TableRef][]int
	byColumn map[ColumnRef][]int
}

// Rows returns a copy of all rows in scan order.
func (r *ScanResult) Rows() []ScanRow {
	if r == nil {
		return nil
	}
	out := make([]ScanRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len returns the number of rows.
func (r *ScanResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rows)
}

// IsEmpty reports whether the scan produced no rows.
func (r *ScanResult) IsEmpty() bool {
	return r.Len() == 0
}

// Tables returns the distinct scanned tables in scan order.
func (r *ScanResult) Tables() []TableRef {
	if r == nil {
		return nil
	}
	out := make([]TableRef, len(r.tables))
	copy(out, r.tables)
	return out
}

// Columns returns the distinct scanned columns in scan order.
func (r *ScanResult) Columns() []ColumnRef {
	if r == nil {
		return nil
	}
	out := make([]ColumnRef, len(r.columns))
	copy(out, r.columns)
	return out
}

// ForTable returns the rows of one table.
func (r *ScanResult) ForTable(ref TableRef) []ScanRow {
	if r == nil {
		return nil
	}
	return r.pick(r.byTable[ref])
}

// ForColumn returns the rows of one column.
func (r *ScanResult) ForColumn(ref ColumnRef) []ScanRow {
	if r == nil {
		return nil
	}
	return r.pick(r.byColumn[ref])
}

func (r *ScanResult) pick(idx []int) []ScanRow {
	out := make([]ScanRow, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.rows[i])
	}
	return out
}

// ScanResultBuilder accumulates per-table rows. It is not safe for concurrent use;
// the scanner funnels all tables through a single writer.
type ScanResultBuilder struct {
	result *ScanResult
	seen   map[scanRowKey]struct{}
}

// NewScanResultBuilder returns an empty builder.
func NewScanResultBuilder() *ScanResultBuilder {
	return &ScanResultBuilder{
		result: &ScanResult{
			byTable:  make(map[TableRef][]int),
			byColumn: make(map[ColumnRef][]int),
		},
		seen: make(map[scanRowKey]struct{}),
	}
}

// ValidateTableRows checks a table's rows before they are appended: all rows belong to table,
// every frequency is within [0,1] and no (column, rule) pair repeats.
func ValidateTableRows(table TableRef, rows []ScanRow) error {
	seen := make(map[scanRowKey]struct{}, len(rows))
	for _, row := range rows {
		if row.TableRef() != table {
			return fmt.Errorf("row for %s returned while scanning %s", row.TableRef(), table)
		}
		if math.IsNaN(row.Frequency) || row.Frequency < 0 || row.Frequency > 1 {
			return fmt.Errorf("frequency %v for %s/%s outside [0,1]", row.Frequency, row.Column, row.RuleName)
		}
		key := scanRowKey{column: row.ColumnRef(), rule: row.RuleName}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate row for column %s rule %s", row.Column, row.RuleName)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// AppendTable adds all rows of one table, or none of them if any row is invalid
// or the table was already appended.
func (b *ScanResultBuilder) AppendTable(table TableRef, rows []ScanRow) error {
	if err := ValidateTableRows(table, rows); err != nil {
		return err
	}
	if _, exists := b.result.byTable[table]; exists {
		return fmt.Errorf("table %s already present in scan result", table)
	}
	for _, row := range rows {
		if _, dup := b.seen[scanRowKey{column: row.ColumnRef(), rule: row.RuleName}]; dup {
			return fmt.Errorf("duplicate row for %s rule %s", row.ColumnRef(), row.RuleName)
		}
	}

	res := b.result
	if len(rows) > 0 {
		res.tables = append(res.tables, table)
		res.byTable[table] = nil
	}
	for _, row := range rows {
		idx := len(res.rows)
		res.rows = append(res.rows, row)
		res.byTable[table] = append(res.byTable[table], idx)

		col := row.ColumnRef()
		if _, known := res.byColumn[col]; !known {
			res.columns = append(res.columns, col)
		}
		res.byColumn[col] = append(res.byColumn[col], idx)
		b.seen[scanRowKey{column: col, rule: row.RuleName}] = struct{}{}
	}
	return nil
}

// Build returns the result. The builder must not be used afterwards.
func (b *ScanResultBuilder) Build() *ScanResult {
	res := b.result
	b.result = nil
	return res
}

// NewScanResult builds a result from rows grouped by table in the given order.
func NewScanResult(rows []ScanRow) (*ScanResult, error) {
	b := NewScanResultBuilder()
	var order []TableRef
	grouped := make(map[TableRef][]ScanRow)
	for _, row := range rows {
		ref := row.TableRef()
		if _, ok := grouped[ref]; !ok {
			order = append(order, ref)
		}
		grouped[ref] = append(grouped[ref], row)
	}
	for _, ref := range order {
		if err := b.AppendTable(ref, grouped[ref]); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
