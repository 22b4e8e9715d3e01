package query

import (
	"context"
	"log/slog"
)

// Runner executes user SQL verbatim. No validation, sanitization or
// injection protection happens here: the operator is the query author.
type Runner struct {
	Logger *slog.Logger
}

// Run never returns a Go error for engine-level failures; the failure text
// becomes the outcome's ErrText so callers can surface it as a banner while
// the process stays healthy for the next query.
func (r *Runner) Run(ctx context.Context, engine Engine, sqlText string) Outcome {
	rows, err := engine.Query(ctx, sqlText)
	if err != nil {
		if r.Logger != nil {
			r.Logger.DebugContext(ctx, "query failed", slog.String("error", err.Error()))
		}
		return Outcome{ErrText: err.Error()}
	}
	return Outcome{Rows: rows}
}
