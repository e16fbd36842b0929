package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// Classifier turns rule frequencies into column classifications.
// A column is classified under a rule when the rule's frequency is strictly greater
// than the threshold.
type Classifier struct {
	threshold float64
	policy    models.ClassificationPolicy
	order     map[string]int
}

// NewClassifier validates threshold and policy. ruleOrder ranks rules for tie-breaks and
// for the order of per-rule counts; rules missing from it sort after ranked ones, by name.
func NewClassifier(threshold float64, policy models.ClassificationPolicy, ruleOrder map[string]int) (*Classifier, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, apperrors.NewConfigurationError("column_type_classification_threshold",
			fmt.Errorf("%w: %v is outside [0, 1]", apperrors.ErrInvalidThreshold, threshold))
	}
	p, err := models.ParseClassificationPolicy(string(policy))
	if err != nil {
		return nil, apperrors.NewConfigurationError("classification_policy", err)
	}
	return &Classifier{threshold: threshold, policy: p, order: ruleOrder}, nil
}

// Threshold returns the classification threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Policy returns the multi-classification policy.
func (c *Classifier) Policy() models.ClassificationPolicy { return c.policy }

// less orders rule a before rule b.
func (c *Classifier) less(a, b string) bool {
	ra, okA := c.order[a]
	rb, okB := c.order[b]
	switch {
	case okA && okB && ra != rb:
		return ra < rb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

// Summarize classifies every column of result. A nil or empty result yields an
// empty summary.
func (c *Classifier) Summarize(result *models.ScanResult) *models.ScanSummary {
	summary := &models.ScanSummary{
		Threshold:  c.threshold,
		Policy:     c.policy,
		RuleCounts: []models.RuleCount{},
		Classified: []models.ScanRow{},
	}
	if result == nil || result.IsEmpty() {
		return summary
	}

	counts := make(map[string]int)
	for _, col := range result.Columns() {
		summary.ScannedColumns++

		var candidates []models.ScanRow
		for _, row := range result.ForColumn(col) {
			if row.Frequency > c.threshold {
				candidates = append(candidates, row)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		if c.policy == models.ClassificationPolicyBest {
			best := candidates[0]
			for _, cand := range candidates[1:] {
				if cand.Frequency > best.Frequency ||
					(cand.Frequency == best.Frequency && c.less(cand.RuleName, best.RuleName)) {
					best = cand
				}
			}
			candidates = []models.ScanRow{best}
		}

		summary.ClassifiedColumns++
		for _, row := range candidates {
			counts[row.RuleName]++
			summary.Classified = append(summary.Classified, row)
		}
	}

	for rule, n := range counts {
		summary.RuleCounts = append(summary.RuleCounts, models.RuleCount{RuleName: rule, Columns: n})
	}
	sort.Slice(summary.RuleCounts, func(i, j int) bool {
		return c.less(summary.RuleCounts[i].RuleName, summary.RuleCounts[j].RuleName)
	})
	return summary
}

// DescribeSummary renders a one-paragraph human summary of a scan.
func DescribeSummary(summary *models.ScanSummary, succeeded, skipped int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scanned %s", countNoun(succeeded, "table"))
	if skipped > 0 {
		fmt.Fprintf(&b, " (%s skipped)", countNoun(skipped, "table"))
	}
	if summary == nil {
		b.WriteString(".")
		return b.String()
	}
	fmt.Fprintf(&b, ": %s of %s classified (%.1f%%) at threshold %g",
		countNoun(summary.ClassifiedColumns, "column"),
		fmt.Sprint(summary.ScannedColumns),
		summary.ClassifiedRatio()*100,
		summary.Threshold)
	if len(summary.RuleCounts) > 0 {
		parts := make([]string, len(summary.RuleCounts))
		for i, rc := range summary.RuleCounts {
			parts[i] = fmt.Sprintf("%s: %d", rc.RuleName, rc.Columns)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func countNoun(n int, noun string) string {
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("%d %s", n, noun)
}
