// Package snapshot resolves a table read to its most recent committed
// snapshot and collapses each primary-key group to the row with the highest
// timestamp. Resolution is best-effort: on any failure the raw table read is
// returned tagged as degraded instead of propagating the error.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/icequery/icequery/internal/observability"
	"github.com/icequery/icequery/internal/query"
	"github.com/icequery/icequery/internal/session"
	"github.com/icequery/icequery/internal/warehouse"
)

const (
	DefaultKeyColumn       = "id"
	DefaultTimestampColumn = "timestamp"

	rankColumn = "__rank"
)

type Request struct {
	Database        string
	Table           string
	KeyColumn       string
	TimestampColumn string
	RowLimit        int
}

// Outcome tags the result so callers can always tell a clean resolution from
// the degraded fallback. Degraded outcomes carry the raw, undeduplicated
// table read plus the failure that forced the fallback.
type Outcome struct {
	Table      *query.Table
	SnapshotID int64
	Degraded   bool
	Reason     string
}

type Service struct {
	Sessions query.SessionOpener
	Logger   *slog.Logger
}

// ResolveLatest opens a session for one resolution cycle and releases it on
// every exit path. Only a failing raw read returns an error; everything else
// degrades.
func (s *Service) ResolveLatest(ctx context.Context, cfg session.Config, req Request) (Outcome, error) {
	if strings.TrimSpace(req.Database) == "" || strings.TrimSpace(req.Table) == "" {
		return Outcome{}, query.NewError(query.KindResolution, "database and table are required", nil)
	}
	if req.KeyColumn == "" {
		req.KeyColumn = DefaultKeyColumn
	}
	if req.TimestampColumn == "" {
		req.TimestampColumn = DefaultTimestampColumn
	}

	ses, err := s.Sessions.Open(ctx, cfg)
	if err != nil {
		return Outcome{}, query.NewError(query.KindConfiguration, "open session", err)
	}
	defer func() { _ = ses.Close() }()

	ref := warehouse.TableRef{Catalog: cfg.Catalog, Database: req.Database, Table: req.Table}

	table, snapshotID, resolveErr := s.resolve(ctx, ses, ref, req)
	if resolveErr == nil {
		observability.ObserveSnapshotResolution(false)
		return Outcome{Table: table, SnapshotID: snapshotID}, nil
	}

	if s.Logger != nil {
		s.Logger.WarnContext(ctx, "snapshot resolution degraded",
			slog.String("table", ref.String()),
			slog.String("reason", resolveErr.Error()),
		)
	}

	raw, rawErr := s.rawRead(ctx, ses, ref, req.RowLimit)
	if rawErr != nil {
		return Outcome{}, query.NewError(query.KindResolution, fmt.Sprintf("resolve %s", ref.String()), rawErr)
	}
	observability.ObserveSnapshotResolution(true)
	return Outcome{Table: raw, Degraded: true, Reason: resolveErr.Error()}, nil
}

// resolve runs the two-step procedure: latest snapshot id from the history
// relation, then a window-function dedup filtered to that snapshot. Ties on
// commit time and on row timestamp both break toward the higher snapshot id,
// which keeps resolution deterministic for a fixed history.
func (s *Service) resolve(ctx context.Context, ses *session.Session, ref warehouse.TableRef, req Request) (*query.Table, int64, error) {
	historySQL := fmt.Sprintf(
		"SELECT snapshot_id FROM %s ORDER BY committed_at DESC, snapshot_id DESC LIMIT 1",
		ref.HistoryName(),
	)
	rows, err := ses.Query(ctx, historySQL)
	if err != nil {
		return nil, 0, fmt.Errorf("query history: %w", err)
	}
	history, err := query.Materialize(rows, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("read history: %w", err)
	}
	if history.RowCount() == 0 {
		return nil, 0, fmt.Errorf("history of %s is empty", ref.String())
	}
	snapshotID, ok := history.Rows[0][0].(int64)
	if !ok {
		return nil, 0, fmt.Errorf("history of %s has unexpected snapshot_id type %T", ref.String(), history.Rows[0][0])
	}

	dedupSQL := fmt.Sprintf(
		"SELECT * EXCLUDE (%s, snapshot_id) FROM (SELECT *, row_number() OVER (PARTITION BY %s ORDER BY %s DESC, snapshot_id DESC) AS %s FROM %s WHERE snapshot_id = %d) WHERE %s = 1",
		quoteIdent(rankColumn),
		quoteIdent(req.KeyColumn),
		quoteIdent(req.TimestampColumn),
		quoteIdent(rankColumn),
		ref.String(),
		snapshotID,
		quoteIdent(rankColumn),
	)
	rows, err = ses.Query(ctx, dedupSQL)
	if err != nil {
		return nil, 0, fmt.Errorf("deduplicate snapshot %d: %w", snapshotID, err)
	}
	table, err := query.Materialize(rows, req.RowLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("materialize snapshot %d: %w", snapshotID, err)
	}
	return table, snapshotID, nil
}

func (s *Service) rawRead(ctx context.Context, ses *session.Session, ref warehouse.TableRef, rowLimit int) (*query.Table, error) {
	rows, err := ses.Query(ctx, "SELECT * FROM "+ref.String())
	if err != nil {
		return nil, err
	}
	return query.Materialize(rows, rowLimit)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
