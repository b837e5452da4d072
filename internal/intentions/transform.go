package intentions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseParameters tokenizes a whitespace-delimited row of numbers.
func ParseParameters(s string) ([]float64, error) {
	fields := strings.Fields(s)
	params := make([]float64, 0, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: partner parameter %d %q: %v", ErrModelOutput, i, field, err)
		}
		if !isFinite(v) {
			return nil, fmt.Errorf("%w: partner parameter %d is %q", ErrModelOutput, i, field)
		}
		params = append(params, v)
	}
	return params, nil
}

// CheckFinite rejects NaN and infinite parameters, which JSON cannot carry.
func CheckFinite(kind string, params []float64) error {
	for i, v := range params {
		if !isFinite(v) {
			return fmt.Errorf("%w: %s parameter %d is %v", ErrModelOutput, kind, i, v)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Choices names the behaviour columns and transposes them into one mapping
// per row, in the model's row order.
func (b Behavior) Choices() ([]map[string]any, error) {
	if len(b.Names) != len(b.Columns) {
		return nil, fmt.Errorf("%w: %d column names for %d columns", ErrModelOutput, len(b.Names), len(b.Columns))
	}
	if len(b.Columns) == 0 {
		return []map[string]any{}, nil
	}

	seen := make(map[string]struct{}, len(b.Names))
	for _, name := range b.Names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column name %q", ErrModelOutput, name)
		}
		seen[name] = struct{}{}
	}

	rows := len(b.Columns[0])
	for i, col := range b.Columns {
		if len(col) != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrModelOutput, b.Names[i], len(col), rows)
		}
	}

	choices := make([]map[string]any, rows)
	for r := 0; r < rows; r++ {
		choice := make(map[string]any, len(b.Names))
		for c, name := range b.Names {
			choice[name] = b.Columns[c][r]
		}
		choices[r] = choice
	}
	return choices, nil
}
