package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/icequery/icequery/internal/config"
	"github.com/icequery/icequery/internal/query"
)

type queryEvent struct {
	Type    string `json:"type"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

type queryResponse struct {
	Columns  []string       `json:"columns"`
	Rows     [][]any        `json:"rows"`
	RowCount int            `json:"row_count"`
	Events   []queryEvent   `json:"events"`
	Stats    map[string]any `json:"stats"`
}

// collectingSink buffers progress milestones and notices so they can ride
// along in the JSON response.
type collectingSink struct {
	events []queryEvent
}

func (s *collectingSink) Progress(percent int) {
	s.events = append(s.events, queryEvent{Type: "progress", Percent: percent})
}

func (s *collectingSink) Info(message string) {
	s.events = append(s.events, queryEvent{Type: "info", Message: message})
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	conn, cleanup, err := connectionFromForm(cfg, r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	defer cleanup()

	sqlText := strings.TrimSpace(r.FormValue("sql"))
	if sqlText == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	rowLimit, err := rowLimitFromForm(cfg, r.FormValue("row_limit"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}

	sink := &collectingSink{}
	start := time.Now()
	table, err := deps.Executor.Execute(r.Context(), conn, query.Request{SQL: sqlText, RowLimit: rowLimit}, sink)
	if err != nil {
		writeKindError(r.Context(), w, err)
		return
	}

	// A nil table is the empty result: rows stay null and the sink carries
	// the informational notice.
	response := queryResponse{
		Events: sink.events,
		Stats:  map[string]any{"duration_ms": time.Since(start).Milliseconds()},
	}
	if table != nil {
		response.Columns = table.Columns
		response.Rows = table.Rows
		response.RowCount = table.RowCount()
	}
	writeJSON(w, http.StatusOK, response)
}

func rowLimitFromForm(cfg config.Config, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cfg.Query.DefaultRowLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid row_limit %q", raw)
	}
	if cfg.Query.MaxRowLimit > 0 && (limit == 0 || limit > cfg.Query.MaxRowLimit) {
		limit = cfg.Query.MaxRowLimit
	}
	return limit, nil
}
