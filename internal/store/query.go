package store

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/patchwire/internal/ir"
)

// Predicate is a condition over event columns.
//
// Predicates are compiled to parameterized SQL: values are NEVER
// interpolated into the statement text, and field names must be known
// event columns.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose field equals value.
type Equals struct {
	Field string
	Value any
}

// In matches rows whose field is one of values. An empty list matches nothing.
type In struct {
	Field  string
	Values []any
}

// Between matches rows with Min <= field <= Max.
type Between struct {
	Field    string
	Min, Max int64
}

// And is the conjunction of its predicates. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode()  {}
func (In) predicateNode()      {}
func (Between) predicateNode() {}
func (And) predicateNode()     {}

var eventColumns = map[string]bool{
	"run_id":    true,
	"seq":       true,
	"cause_seq": true,
	"direction": true,
	"patch":     true,
	"port":      true,
	"channel":   true,
	"type":      true,
	"data1":     true,
	"data2":     true,
}

// EventQuery selects traced events of one run. Zero-valued fields do not
// filter.
type EventQuery struct {
	RunID     string
	Direction ir.Direction
	Types     []ir.EventType
	Patch     *int
	Port      *int
	Channel   *int
	CauseSeq  *int64
	FromSeq   int64 // inclusive, 0 = from the start
	ToSeq     int64 // inclusive, 0 = to the end
	Limit     int
}

// Predicate builds the filter for q.
func (q EventQuery) Predicate() Predicate {
	preds := []Predicate{Equals{Field: "run_id", Value: q.RunID}}
	if q.Direction != "" {
		preds = append(preds, Equals{Field: "direction", Value: string(q.Direction)})
	}
	if len(q.Types) > 0 {
		values := make([]any, len(q.Types))
		for i, t := range q.Types {
			values[i] = string(t)
		}
		preds = append(preds, In{Field: "type", Values: values})
	}
	for _, f := range []struct {
		field string
		value *int
	}{
		{"patch", q.Patch},
		{"port", q.Port},
		{"channel", q.Channel},
	} {
		if f.value != nil {
			preds = append(preds, Equals{Field: f.field, Value: int64(*f.value)})
		}
	}
	if q.CauseSeq != nil {
		preds = append(preds, Equals{Field: "cause_seq", Value: *q.CauseSeq})
	}
	if q.FromSeq > 0 || q.ToSeq > 0 {
		upper := q.ToSeq
		if upper <= 0 {
			upper = math.MaxInt64
		}
		preds = append(preds, Between{Field: "seq", Min: q.FromSeq, Max: upper})
	}
	return And{Predicates: preds}
}

// compileEventQuery compiles q to a SELECT over events.
// MANDATORY: the result always ends in ORDER BY seq.
func compileEventQuery(q EventQuery) (string, []any, error) {
	if q.RunID == "" {
		return "", nil, fmt.Errorf("event query: run id is required")
	}
	where, params, err := compilePredicate(q.Predicate())
	if err != nil {
		return "", nil, fmt.Errorf("event query: %w", err)
	}

	var b strings.Builder
	b.WriteString("SELECT " + eventSelectColumns + " FROM events WHERE ")
	b.WriteString(where)
	b.WriteString(" ORDER BY seq ASC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}

func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		if err := checkField(pred.Field); err != nil {
			return "", nil, err
		}
		return pred.Field + " = ?", []any{pred.Value}, nil
	case In:
		if err := checkField(pred.Field); err != nil {
			return "", nil, err
		}
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(pred.Values)), ", ")
		return fmt.Sprintf("%s IN (%s)", pred.Field, marks), append([]any(nil), pred.Values...), nil
	case Between:
		if err := checkField(pred.Field); err != nil {
			return "", nil, err
		}
		return pred.Field + " BETWEEN ? AND ?", []any{pred.Min, pred.Max}, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if _, nested := sub.(And); nested {
				sql = "(" + sql + ")"
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func checkField(field string) error {
	if !eventColumns[field] {
		return fmt.Errorf("unknown event column %q", field)
	}
	return nil
}
