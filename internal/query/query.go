package query

import (
	"context"
	"database/sql"
)

// Table is a fully materialized result: schema plus rows in memory, ready
// for display.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Outcome is the runner's result variant: either a lazy row handle or the
// engine's failure text, never both. Callers must check Failed() before
// touching Rows.
type Outcome struct {
	Rows    *sql.Rows
	ErrText string
}

func (o Outcome) Failed() bool {
	return o.ErrText != ""
}

// Engine executes one SQL statement and returns a lazy row handle. Session
// satisfies this; tests substitute sqlmock-backed fakes.
type Engine interface {
	Query(ctx context.Context, sqlText string) (*sql.Rows, error)
}

// Sink receives coarse execution milestones for a progress surface. Progress
// is a percentage; Info carries non-error notices such as the empty-result
// message.
type Sink interface {
	Progress(percent int)
	Info(message string)
}

type NopSink struct{}

func (NopSink) Progress(int) {}
func (NopSink) Info(string)  {}
