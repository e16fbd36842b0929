package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
)

// Result column aliases of a rendered scan query.
const (
	ColCatalog   = "table_catalog"
	ColDatabase  = "table_schema"
	ColTable     = "table_name"
	ColColumn    = "column_name"
	ColRuleName  = "rule_name"
	ColFrequency = "frequency"
)

const sampleAlias = "_sample"

// RenderScan renders a scan query as one statement: a sampling CTE followed by one
// aggregate SELECT per probe, joined with UNION ALL. Each branch returns the table
// identity as literals plus the match frequency of one rule over one column, where
// nulls count neither as matches nor as values and an all-null column scores 0.
// An empty query renders to the empty string.
func RenderScan(q *ScanQuery, d Dialect) (string, error) {
	if q.IsEmpty() {
		return "", nil
	}

	cols := q.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c.Name)
	}
	sample := d.SelectSample(d.QualifiedTable(q.Table.Ref()), quoted, q.SampleSize)

	branches := make([]string, 0, len(q.Probes))
	for _, p := range q.Probes {
		col := d.QuoteIdent(p.Column.Name)
		pred, err := RulePredicate(p, d)
		if err != nil {
			return "", &apperrors.CompilationError{Table: q.Table.Ref().String(), Err: err}
		}
		freq := fmt.Sprintf("COALESCE(%s / NULLIF(COUNT(%s), 0), 0)",
			d.FloatCast(fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", pred)), col)

		branches = append(branches, fmt.Sprintf(
			"SELECT %s AS %s, %s AS %s, %s AS %s, %s AS %s, %s AS %s, %s AS %s FROM %s",
			d.StringLiteral(q.Table.Catalog), d.QuoteIdent(ColCatalog),
			d.StringLiteral(q.Table.Database), d.QuoteIdent(ColDatabase),
			d.StringLiteral(q.Table.Table), d.QuoteIdent(ColTable),
			d.StringLiteral(p.Column.Name), d.QuoteIdent(ColColumn),
			d.StringLiteral(p.Rule.Name), d.QuoteIdent(ColRuleName),
			freq, d.QuoteIdent(ColFrequency),
			sampleAlias,
		))
	}

	return fmt.Sprintf("WITH %s AS (%s)\n%s", sampleAlias, sample, strings.Join(branches, "\nUNION ALL\n")), nil
}

// RenderSample renders the statement that fetches the probed columns of the sample,
// for rules evaluated outside the database.
func RenderSample(q *ScanQuery, d Dialect) (string, error) {
	if q.IsEmpty() {
		return "", nil
	}
	cols := q.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c.Name)
	}
	return d.SelectSample(d.QualifiedTable(q.Table.Ref()), quoted, q.SampleSize), nil
}

// RulePredicate returns the boolean SQL fragment testing the probe's column against its rule.
func RulePredicate(p Probe, d Dialect) (string, error) {
	col := d.QuoteIdent(p.Column.Name)
	switch {
	case p.Rule.Pattern != "":
		return d.RegexMatch(d.TextCast(col), p.Rule.Pattern), nil
	case p.Rule.Expression != "":
		return "(" + strings.ReplaceAll(p.Rule.Expression, "{column}", col) + ")", nil
	default:
		return "", fmt.Errorf("rule %s: %w", p.Rule.Name, errNoExpression)
	}
}
