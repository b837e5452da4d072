package intentions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type requestEnvelope struct {
	ParticipantID        json.RawMessage `json:"participantID"`
	ParticipantResponses json.RawMessage `json:"participantResponses"`
}

// DecodeRequest parses an intentions request body and checks that it carries
// everything the model needs.
func DecodeRequest(r io.Reader) (Request, error) {
	var env requestEnvelope
	dec := json.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
		}
		return Request{}, fmt.Errorf("%w: unexpected data after request object: %v", ErrMalformedRequest, tok)
	}

	if isAbsent(env.ParticipantID) {
		return Request{}, fmt.Errorf("%w: participantID", ErrMissingField)
	}
	var participantID string
	if err := json.Unmarshal(env.ParticipantID, &participantID); err != nil {
		return Request{}, fmt.Errorf("%w: participantID must be a string", ErrMalformedRequest)
	}

	if isAbsent(env.ParticipantResponses) {
		return Request{}, fmt.Errorf("%w: participantResponses", ErrMissingField)
	}
	table, err := decodeTable(env.ParticipantResponses)
	if err != nil {
		return Request{}, err
	}
	if err := validateTable(table); err != nil {
		return Request{}, err
	}

	return Request{ParticipantID: participantID, Responses: table}, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeTable walks the record array token by token so that column order
// survives decoding.
func decodeTable(raw json.RawMessage) (Table, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return Table{}, fmt.Errorf("%w: expected an array of records", ErrMalformedResponses)
	}

	var (
		columns []string
		index   = make(map[string]int)
		records []map[int]any
	)
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return Table{}, fmt.Errorf("%w: record %d is not an object", ErrMalformedResponses, len(records))
		}
		record := make(map[int]any)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return Table{}, fmt.Errorf("%w: record %d: %v", ErrMalformedResponses, len(records), err)
			}
			key, ok := tok.(string)
			if !ok {
				return Table{}, fmt.Errorf("%w: record %d: unexpected token %v", ErrMalformedResponses, len(records), tok)
			}

			var value any
			if err := dec.Decode(&value); err != nil {
				return Table{}, fmt.Errorf("%w: record %d: column %q: %v", ErrMalformedResponses, len(records), key, err)
			}
			switch value.(type) {
			case map[string]any, []any:
				return Table{}, fmt.Errorf("%w: record %d: column %q is not a scalar", ErrMalformedResponses, len(records), key)
			}

			col, seen := index[key]
			if !seen {
				col = len(columns)
				index[key] = col
				columns = append(columns, key)
			}
			record[col] = value
		}
		if err := expectDelim(dec, '}'); err != nil {
			return Table{}, fmt.Errorf("%w: record %d: %v", ErrMalformedResponses, len(records), err)
		}
		records = append(records, record)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformedResponses, err)
	}

	if len(records) == 0 {
		return Table{}, fmt.Errorf("%w: no trial records", ErrMalformedResponses)
	}

	rows := make([][]any, len(records))
	for i, record := range records {
		row := make([]any, len(columns))
		for col, value := range record {
			row[col] = value
		}
		rows[i] = row
	}
	return Table{Columns: columns, Rows: rows}, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func validateTable(t Table) error {
	positions := make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		positions[col] = i
	}

	for _, col := range RequiredColumns {
		if _, ok := positions[col]; !ok {
			return fmt.Errorf("%w: column %q is missing", ErrMalformedResponses, col)
		}
	}

	for i, row := range t.Rows {
		for _, col := range RequiredColumns {
			if _, ok := row[positions[col]].(json.Number); !ok {
				return fmt.Errorf("%w: record %d: column %q must be numeric", ErrMalformedResponses, i, col)
			}
		}
	}
	return nil
}
