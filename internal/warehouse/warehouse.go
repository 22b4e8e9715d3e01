// Package warehouse reads table-format metadata straight from the object
// store backing a warehouse bucket. Each table owns one metadata document
// carrying its snapshot log and data-file manifest:
//
//	<database>/<table>/metadata/table.json
//	<database>/<table>/data/part-<snapshot>-<seq>.parquet
//
// The catalog is read-mostly; only the seeder writes metadata.
package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/icequery/icequery/internal/storage"
)

var ErrNotFound = errors.New("warehouse: table not found")

// TableRef addresses one table in a catalog. Immutable once constructed.
type TableRef struct {
	Catalog  string
	Database string
	Table    string
}

func (r TableRef) String() string {
	return r.Catalog + "." + r.Database + "." + r.Table
}

func (r TableRef) HistoryName() string {
	return r.String() + ".history"
}

type Snapshot struct {
	SnapshotID  int64     `json:"snapshot_id"`
	CommittedAt time.Time `json:"committed_at"`
	Operation   string    `json:"operation"`
	ParentID    *int64    `json:"parent_id"`
}

type DataFile struct {
	Path          string `json:"path"`
	SnapshotID    int64  `json:"snapshot_id"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	RecordCount   int64  `json:"record_count"`
}

type TableMetadata struct {
	Database    string     `json:"database"`
	Table       string     `json:"table"`
	SnapshotLog []Snapshot `json:"snapshot_log"`
	DataFiles   []DataFile `json:"data_files"`
}

type TableName struct {
	Database string
	Table    string
}

type Catalog struct {
	store storage.ObjectStore
}

func NewCatalog(store storage.ObjectStore) *Catalog {
	return &Catalog{store: store}
}

func MetadataKey(database, table string) string {
	return path.Join(database, table, "metadata", "table.json")
}

func DataFileKey(database, table string, snapshotID int64, sequence int) string {
	return path.Join(database, table, "data", fmt.Sprintf("part-%d-%05d.parquet", snapshotID, sequence))
}

func (c *Catalog) LoadTable(ctx context.Context, database, table string) (TableMetadata, error) {
	if strings.TrimSpace(database) == "" || strings.TrimSpace(table) == "" {
		return TableMetadata{}, fmt.Errorf("database and table are required")
	}

	reader, err := c.store.Get(ctx, MetadataKey(database, table))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return TableMetadata{}, ErrNotFound
		}
		return TableMetadata{}, fmt.Errorf("load table metadata %s.%s: %w", database, table, err)
	}
	defer func() { _ = reader.Close() }()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return TableMetadata{}, fmt.Errorf("read table metadata %s.%s: %w", database, table, err)
	}
	var meta TableMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return TableMetadata{}, fmt.Errorf("parse table metadata %s.%s: %w", database, table, err)
	}
	return meta, nil
}

// History returns the table's snapshot log ordered newest first. Snapshots
// sharing a commit timestamp order by snapshot id descending, so the head of
// the slice is always the deterministic "latest" snapshot.
func (c *Catalog) History(ctx context.Context, database, table string) ([]Snapshot, error) {
	meta, err := c.LoadTable(ctx, database, table)
	if err != nil {
		return nil, err
	}
	history := make([]Snapshot, len(meta.SnapshotLog))
	copy(history, meta.SnapshotLog)
	sort.SliceStable(history, func(i, j int) bool {
		if !history[i].CommittedAt.Equal(history[j].CommittedAt) {
			return history[i].CommittedAt.After(history[j].CommittedAt)
		}
		return history[i].SnapshotID > history[j].SnapshotID
	})
	return history, nil
}

func (c *Catalog) ListTables(ctx context.Context) ([]TableName, error) {
	infos, err := c.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list warehouse objects: %w", err)
	}

	names := make([]TableName, 0)
	seen := map[TableName]bool{}
	for _, info := range infos {
		parts := strings.Split(info.Key, "/")
		if len(parts) != 4 || parts[2] != "metadata" || parts[3] != "table.json" {
			continue
		}
		name := TableName{Database: parts[0], Table: parts[1]}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Database != names[j].Database {
			return names[i].Database < names[j].Database
		}
		return names[i].Table < names[j].Table
	})
	return names, nil
}

// WriteTable persists a table's metadata document. Seeder-only in the normal
// flow; the query path never mutates the warehouse.
func (c *Catalog) WriteTable(ctx context.Context, meta TableMetadata) error {
	if strings.TrimSpace(meta.Database) == "" || strings.TrimSpace(meta.Table) == "" {
		return fmt.Errorf("database and table are required")
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode table metadata: %w", err)
	}
	_, err = c.store.Put(ctx, MetadataKey(meta.Database, meta.Table), strings.NewReader(string(raw)), int64(len(raw)), storage.PutOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("write table metadata %s.%s: %w", meta.Database, meta.Table, err)
	}
	return nil
}
