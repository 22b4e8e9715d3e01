package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/icequery/icequery/internal/config"
	"github.com/icequery/icequery/internal/query"
	"github.com/icequery/icequery/internal/session"
)

type schemaTable struct {
	Database   string   `json:"database"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns,omitempty"`
	SampleRows [][]any  `json:"sample_rows,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type schemaResponse struct {
	Catalog string        `json:"catalog"`
	Tables  []schemaTable `json:"tables"`
}

// handleSchema lists the warehouse tables visible through the supplied
// connection and samples a few rows from each so the console can render a
// browsable schema. A table that fails to sample is reported inline rather
// than failing the whole listing.
func handleSchema(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema dependencies are not configured", false, nil)
		return
	}

	params := r.URL.Query()
	conn := session.Config{
		Catalog:         strings.TrimSpace(params.Get("catalog")),
		Bucket:          strings.TrimSpace(params.Get("bucket")),
		CredentialsFile: strings.TrimSpace(params.Get("credentials_file")),
		WarehousePrefix: cfg.Warehouse.Prefix,
	}
	if conn.Catalog == "" {
		conn.Catalog = cfg.Warehouse.DefaultCatalog
	}
	if conn.Bucket == "" {
		conn.Bucket = cfg.Warehouse.DefaultBucket
	}
	if conn.CredentialsFile == "" {
		conn.CredentialsFile = cfg.Warehouse.CredentialsFile
	}

	ses, err := deps.Sessions.Open(r.Context(), conn)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error(), false, nil)
		return
	}
	defer func() { _ = ses.Close() }()

	names, err := ses.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "WAREHOUSE_ERROR", err.Error(), true, nil)
		return
	}

	sampleRows := cfg.UI.SchemaSampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}

	tables := make([]schemaTable, 0, len(names))
	for _, name := range names {
		entry := schemaTable{Database: name.Database, Table: name.Table}
		sample, err := sampleTable(r, ses, conn.Catalog, name.Database, name.Table, sampleRows)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Columns = sample.Columns
			entry.SampleRows = sample.Rows
		}
		tables = append(tables, entry)
	}

	writeJSON(w, http.StatusOK, schemaResponse{Catalog: conn.Catalog, Tables: tables})
}

func sampleTable(r *http.Request, ses *session.Session, catalog, database, table string, limit int) (*query.Table, error) {
	rows, err := ses.Query(r.Context(), fmt.Sprintf("SELECT * FROM %s.%s.%s LIMIT %d", catalog, database, table, limit))
	if err != nil {
		return nil, err
	}
	return query.Materialize(rows, limit)
}
