package warehouse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/icequery/icequery/internal/storage/storagetest"
)

func TestLoadTableParsesMetadata(t *testing.T) {
	store := storagetest.New()
	seedTable(t, store, TableMetadata{
		Database: "db",
		Table:    "events",
		SnapshotLog: []Snapshot{
			{SnapshotID: 1, CommittedAt: time.Unix(100, 0).UTC(), Operation: "append"},
		},
		DataFiles: []DataFile{
			{Path: "db/events/data/part-1-00000.parquet", SnapshotID: 1, FileSizeBytes: 42, RecordCount: 3},
		},
	})

	catalog := NewCatalog(store)
	meta, err := catalog.LoadTable(context.Background(), "db", "events")
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if meta.Table != "events" || len(meta.SnapshotLog) != 1 || len(meta.DataFiles) != 1 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestLoadTableMissingMetadataReturnsNotFound(t *testing.T) {
	catalog := NewCatalog(storagetest.New())
	_, err := catalog.LoadTable(context.Background(), "db", "absent")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHistoryOrdersNewestFirstWithSnapshotIDTieBreak(t *testing.T) {
	store := storagetest.New()
	sameInstant := time.Unix(200, 0).UTC()
	seedTable(t, store, TableMetadata{
		Database: "db",
		Table:    "events",
		SnapshotLog: []Snapshot{
			{SnapshotID: 1, CommittedAt: time.Unix(100, 0).UTC()},
			{SnapshotID: 3, CommittedAt: sameInstant},
			{SnapshotID: 2, CommittedAt: sameInstant},
		},
	})

	catalog := NewCatalog(store)
	history, err := catalog.History(context.Background(), "db", "events")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	got := []int64{history[0].SnapshotID, history[1].SnapshotID, history[2].SnapshotID}
	want := []int64{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history order = %v, want %v", got, want)
		}
	}
}

func TestListTablesFindsMetadataDocuments(t *testing.T) {
	store := storagetest.New()
	seedTable(t, store, TableMetadata{Database: "db", Table: "events"})
	seedTable(t, store, TableMetadata{Database: "db", Table: "users"})
	store.Objects["db/events/data/part-1-00000.parquet"] = []byte("not metadata")

	catalog := NewCatalog(store)
	names, err := catalog.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %+v", names)
	}
	if names[0].Table != "events" || names[1].Table != "users" {
		t.Fatalf("names = %+v", names)
	}
}

func TestTableRefNames(t *testing.T) {
	ref := TableRef{Catalog: "ice", Database: "db", Table: "events"}
	if ref.String() != "ice.db.events" {
		t.Fatalf("String() = %q", ref.String())
	}
	if ref.HistoryName() != "ice.db.events.history" {
		t.Fatalf("HistoryName() = %q", ref.HistoryName())
	}
}

func seedTable(t *testing.T, store *storagetest.Store, meta TableMetadata) {
	t.Helper()
	catalog := NewCatalog(store)
	if err := catalog.WriteTable(context.Background(), meta); err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}
	var parsed TableMetadata
	if err := json.Unmarshal(store.Objects[MetadataKey(meta.Database, meta.Table)], &parsed); err != nil {
		t.Fatalf("seeded metadata is not valid JSON: %v", err)
	}
}
