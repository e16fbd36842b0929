package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/filter"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// Placeholder is a rule reference inside an msql template.
//
//	[email]      one classified column per generated statement
//	[email:all]  every classified column, comma separated
type Placeholder struct {
	Rule  string
	All   bool
	start int
	end   int
}

// MsqlTemplate is a parsed msql statement: a single SELECT whose FROM target is a
// catalog.database.table glob and whose select list may reference rules.
type MsqlTemplate struct {
	SQL          string
	Placeholders []Placeholder
	Catalogs     filter.Filter
	Databases    filter.Filter
	Tables       filter.Filter

	fromStart   int
	fromEnd     int
	selectStart int
}

var (
	placeholderRe = regexp.MustCompile(`\[([A-Za-z_][A-Za-z0-9_]*)(:all)?\]`)
	selectRe      = regexp.MustCompile(`(?i)^select\s+(distinct\s+)?`)
	fromRe        = regexp.MustCompile(`(?i)\bfrom\s+([^\s,()]+)`)
)

// ParseMsql validates an msql template and extracts its placeholders and FROM filters.
// Inside templates, square brackets are reserved for placeholders; quote identifiers with
// double quotes instead.
func ParseMsql(template string) (*MsqlTemplate, error) {
	v := ValidateAndNormalize(template)
	if v.Error != nil {
		return nil, apperrors.NewConfigurationError("msql", v.Error)
	}
	text := v.NormalizedSQL
	if text == "" {
		return nil, apperrors.NewConfigurationError("msql", fmt.Errorf("template is empty"))
	}
	if res := CheckLiteralsForInjection(text); res != nil {
		return nil, apperrors.NewConfigurationError("msql", res)
	}

	sel := selectRe.FindStringIndex(text)
	if sel == nil {
		return nil, apperrors.NewConfigurationError("msql", fmt.Errorf("template must be a SELECT statement"))
	}

	mask := unquotedMask(text)
	depth := parenDepth(text, mask)
	t := &MsqlTemplate{SQL: text, selectStart: sel[1]}

	from := -1
	for _, m := range fromRe.FindAllStringSubmatchIndex(text, -1) {
		if mask[m[0]] && depth[m[0]] == 0 {
			from = m[2]
			t.fromStart, t.fromEnd = m[2], m[3]
			break
		}
	}
	if from < 0 {
		return nil, apperrors.NewConfigurationError("msql", fmt.Errorf("template has no FROM clause"))
	}
	if err := t.parseTarget(text[t.fromStart:t.fromEnd]); err != nil {
		return nil, apperrors.NewConfigurationError("msql", err)
	}

	for _, m := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		if !mask[m[0]] || (m[0] >= t.fromStart && m[0] < t.fromEnd) {
			continue
		}
		t.Placeholders = append(t.Placeholders, Placeholder{
			Rule:  text[m[2]:m[3]],
			All:   m[4] >= 0,
			start: m[0],
			end:   m[1],
		})
	}
	return t, nil
}

// parenDepth returns the parenthesis nesting level at each byte, ignoring quoted text.
func parenDepth(s string, mask []bool) []int {
	depth := make([]int, len(s))
	d := 0
	for i := 0; i < len(s); i++ {
		if mask[i] && s[i] == ')' && d > 0 {
			d--
		}
		depth[i] = d
		if mask[i] && s[i] == '(' {
			d++
		}
	}
	return depth
}

func (t *MsqlTemplate) parseTarget(target string) error {
	parts := strings.Split(target, ".")
	if len(parts) != 3 {
		return fmt.Errorf("FROM target %q must be catalog.database.table", target)
	}
	var err error
	if t.Catalogs, err = filter.Parse(parts[0]); err != nil {
		return err
	}
	if t.Databases, err = filter.Parse(parts[1]); err != nil {
		return err
	}
	if t.Tables, err = filter.Parse(parts[2]); err != nil {
		return err
	}
	return nil
}

// Rules returns the distinct rules referenced by the template in order of appearance.
func (t *MsqlTemplate) Rules() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range t.Placeholders {
		if !seen[p.Rule] {
			seen[p.Rule] = true
			out = append(out, p.Rule)
		}
	}
	return out
}

// ResolveRules replaces each placeholder's rule with the name resolve returns for it.
// Placeholders are matched against registered names case-insensitively, while
// classifications are keyed by the registered spelling.
func (t *MsqlTemplate) ResolveRules(resolve func(name string) (string, error)) error {
	for i, p := range t.Placeholders {
		name, err := resolve(p.Rule)
		if err != nil {
			return err
		}
		t.Placeholders[i].Rule = name
	}
	return nil
}

// CompileMsql expands the template for one table. classified maps a rule name to the
// table's columns classified under it, in scan order. A [rule] placeholder yields one
// statement per combination of classified columns; a [rule:all] placeholder expands to
// all of them. A table lacking a column for some referenced rule yields no statements.
func CompileMsql(t *MsqlTemplate, table models.TableRef, classified map[string][]string, d Dialect) ([]string, error) {
	var single []string
	for _, rule := range t.singleRules() {
		if len(classified[rule]) == 0 {
			return nil, nil
		}
		single = append(single, rule)
	}
	for _, p := range t.Placeholders {
		if p.All && len(classified[p.Rule]) == 0 {
			return nil, nil
		}
	}

	identity := fmt.Sprintf("%s AS %s, %s AS %s, %s AS %s, ",
		d.StringLiteral(table.Catalog), d.QuoteIdent(ColCatalog),
		d.StringLiteral(table.Database), d.QuoteIdent(ColDatabase),
		d.StringLiteral(table.Table), d.QuoteIdent(ColTable))

	var out []string
	err := combinations(single, classified, func(pick map[string]string) error {
		var b strings.Builder
		pos := 0
		write := func(upto int) {
			if upto > pos {
				b.WriteString(t.SQL[pos:upto])
				pos = upto
			}
		}

		edits := t.edits()
		for _, e := range edits {
			write(e.start)
			switch {
			case e.insertIdentity:
				b.WriteString(identity)
			case e.from:
				b.WriteString(d.QualifiedTable(table))
			case e.placeholder.All:
				cols := classified[e.placeholder.Rule]
				quoted := make([]string, len(cols))
				for i, c := range cols {
					quoted[i] = d.QuoteIdent(c)
				}
				b.WriteString(strings.Join(quoted, ", "))
			default:
				col, ok := pick[e.placeholder.Rule]
				if !ok {
					return fmt.Errorf("no column chosen for rule %s", e.placeholder.Rule)
				}
				b.WriteString(d.QuoteIdent(col))
			}
			pos = e.end
		}
		write(len(t.SQL))
		out = append(out, b.String())
		return nil
	})
	if err != nil {
		return nil, &apperrors.CompilationError{Table: table.String(), Err: err}
	}
	return out, nil
}

func (t *MsqlTemplate) singleRules() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range t.Placeholders {
		if !p.All && !seen[p.Rule] {
			seen[p.Rule] = true
			out = append(out, p.Rule)
		}
	}
	return out
}

type msqlEdit struct {
	start, end     int
	insertIdentity bool
	from           bool
	placeholder    Placeholder
}

// edits returns the template rewrites sorted by position. The select list always
// precedes FROM, so placeholders are split around it.
func (t *MsqlTemplate) edits() []msqlEdit {
	edits := []msqlEdit{{start: t.selectStart, end: t.selectStart, insertIdentity: true}}
	fromAdded := false
	for _, p := range t.Placeholders {
		if !fromAdded && p.start >= t.fromEnd {
			edits = append(edits, msqlEdit{start: t.fromStart, end: t.fromEnd, from: true})
			fromAdded = true
		}
		edits = append(edits, msqlEdit{start: p.start, end: p.end, placeholder: p})
	}
	if !fromAdded {
		edits = append(edits, msqlEdit{start: t.fromStart, end: t.fromEnd, from: true})
	}
	return edits
}

// combinations calls fn with every choice of one column per rule, varying the last rule fastest.
func combinations(rules []string, classified map[string][]string, fn func(map[string]string) error) error {
	pick := make(map[string]string, len(rules))
	var walk func(i int) error
	walk = func(i int) error {
		if i == len(rules) {
			return fn(pick)
		}
		for _, col := range classified[rules[i]] {
			pick[rules[i]] = col
			if err := walk(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0)
}
