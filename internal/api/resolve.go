package api

import (
	"net/http"
	"strings"

	"github.com/icequery/icequery/internal/config"
	"github.com/icequery/icequery/internal/snapshot"
)

type resolveResponse struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	SnapshotID int64    `json:"snapshot_id,omitempty"`
	Degraded   bool     `json:"degraded"`
	Reason     string   `json:"reason,omitempty"`
}

func handleResolve(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVE_NOT_CONFIGURED", "resolver dependencies are not configured", false, nil)
		return
	}

	conn, cleanup, err := connectionFromForm(cfg, r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	defer cleanup()

	database := strings.TrimSpace(r.FormValue("database"))
	table := strings.TrimSpace(r.FormValue("table"))
	if database == "" || table == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "database and table are required", false, nil)
		return
	}
	rowLimit, err := rowLimitFromForm(cfg, r.FormValue("row_limit"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}

	outcome, err := deps.Resolver.ResolveLatest(r.Context(), conn, snapshot.Request{
		Database:        database,
		Table:           table,
		KeyColumn:       strings.TrimSpace(r.FormValue("key_column")),
		TimestampColumn: strings.TrimSpace(r.FormValue("timestamp_column")),
		RowLimit:        rowLimit,
	})
	if err != nil {
		writeKindError(r.Context(), w, err)
		return
	}

	response := resolveResponse{
		SnapshotID: outcome.SnapshotID,
		Degraded:   outcome.Degraded,
		Reason:     outcome.Reason,
	}
	if outcome.Table != nil {
		response.Columns = outcome.Table.Columns
		response.Rows = outcome.Table.Rows
		response.RowCount = outcome.Table.RowCount()
	}
	writeJSON(w, http.StatusOK, response)
}
