package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/icequery/icequery/internal/observability"
	"github.com/icequery/icequery/internal/session"
)

// SessionOpener creates one engine session per interaction cycle.
// *session.Provider satisfies it.
type SessionOpener interface {
	Open(ctx context.Context, cfg session.Config) (*session.Session, error)
}

type Request struct {
	SQL      string
	RowLimit int
}

// Executor drives one full query cycle: open session, run, materialize,
// release. The session never outlives the call; Close runs on every exit
// path.
type Executor struct {
	Sessions SessionOpener
	Runner   *Runner
	Logger   *slog.Logger
}

// Execute reports milestones to sink (0 at start, 50 after raw execution,
// 100 after materializing a non-empty result). A query yielding zero rows is
// not an error: the sink gets an informational notice and both return values
// are nil.
func (e *Executor) Execute(ctx context.Context, cfg session.Config, req Request, sink Sink) (*Table, error) {
	if sink == nil {
		sink = NopSink{}
	}
	start := time.Now()
	sink.Progress(0)

	ses, err := e.Sessions.Open(ctx, cfg)
	if err != nil {
		observability.ObserveQuery("configuration_error", time.Since(start))
		return nil, NewError(KindConfiguration, "open session", err)
	}
	defer func() {
		if closeErr := ses.Close(); closeErr != nil && e.Logger != nil {
			e.Logger.WarnContext(ctx, "session close failed", slog.String("error", closeErr.Error()))
		}
	}()

	runner := e.Runner
	if runner == nil {
		runner = &Runner{Logger: e.Logger}
	}
	outcome := runner.Run(ctx, ses, req.SQL)
	if outcome.Failed() {
		observability.ObserveQuery("query_error", time.Since(start))
		return nil, NewError(KindQuery, outcome.ErrText, nil)
	}
	sink.Progress(50)

	table, err := Materialize(outcome.Rows, req.RowLimit)
	if err != nil {
		observability.ObserveQuery("query_error", time.Since(start))
		return nil, NewError(KindQuery, "materialize result", err)
	}

	if table.RowCount() == 0 {
		sink.Info("No results returned for the query.")
		observability.ObserveQuery("empty", time.Since(start))
		return nil, nil
	}

	sink.Progress(100)
	observability.ObserveQuery("ok", time.Since(start))
	if e.Logger != nil {
		e.Logger.InfoContext(ctx, "query completed",
			slog.Int("rows", table.RowCount()),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return table, nil
}
