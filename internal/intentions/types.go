// Package intentions adapts participant trial data to the partner model and
// reshapes the model output for the task frontend.
package intentions

import (
	"context"
	"encoding/json"
)

// RequiredColumns are the trial columns model_wrapper reads.
var RequiredColumns = []string{"ppt1", "par1", "ppt2", "par2", "Ac", "Phase"}

// Table is an ordered, row-major trial table. Columns keep the order in which
// keys were first seen across the input records.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Records returns the table as ordered JSON objects, one per row.
func (t Table) Records() []Record {
	records := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		records[i] = Record{columns: t.Columns, values: row}
	}
	return records
}

// Record is a single table row that marshals with its keys in column order.
type Record struct {
	columns []string
	values  []any
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, col := range r.columns {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')

		var v any
		if i < len(r.values) {
			v = r.values[i]
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Request is a decoded and validated intentions request.
type Request struct {
	ParticipantID string
	Responses     Table
}

// Behavior is the partner behaviour table as the model environment returns
// it: column data and column names arrive separately.
type Behavior struct {
	Names   []string `json:"names"`
	Columns [][]any  `json:"columns"`
}

// Output is the raw model_wrapper result.
type Output struct {
	ParticipantParameters []float64 `json:"participantParameters"`
	PartnerParameters     string    `json:"partnerParameters"`
	PartnerBehavior       Behavior  `json:"partnerBehavior"`
}

// Response is the payload returned to the task frontend.
type Response struct {
	ParticipantID         string           `json:"participantID"`
	ParticipantParameters []float64        `json:"participantParameters"`
	PartnerParameters     []float64        `json:"partnerParameters"`
	PartnerChoices        []map[string]any `json:"partnerChoices"`
}

// Model runs the external statistical model over a trial table.
// Implementations must be safe to call from the request goroutine; callers
// wrap non-reentrant backends with a serializing decorator.
type Model interface {
	Run(ctx context.Context, trials Table) (Output, error)
}
