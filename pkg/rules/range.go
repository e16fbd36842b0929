package rules

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// NewRangeRule builds a numeric predicate rule matching values in [min, max].
// When integral is set, only whole numbers match.
func NewRangeRule(name string, min, max float64, integral bool, description string) (models.Rule, error) {
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return models.Rule{}, fmt.Errorf("rule %s: invalid range [%v, %v]", name, min, max)
	}

	lo := strconv.FormatFloat(min, 'f', -1, 64)
	hi := strconv.FormatFloat(max, 'f', -1, 64)
	expr := fmt.Sprintf("%s BETWEEN %s AND %s", models.ColumnPlaceholder, lo, hi)
	if integral {
		expr = fmt.Sprintf("(%s AND %s = FLOOR(%s))", expr, models.ColumnPlaceholder, models.ColumnPlaceholder)
	}

	match := func(value any) bool {
		f, ok := models.ValueFloat(value)
		if !ok {
			return false
		}
		if f < min || f > max {
			return false
		}
		return !integral || f == math.Floor(f)
	}

	return models.NewPredicateRule(name, models.DataTypeNumeric, expr, match, description)
}
