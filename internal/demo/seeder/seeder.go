// Package seeder populates a warehouse bucket with a deterministic demo
// table: several snapshots of parquet data plus the metadata document the
// query engine reads. It exists so a fresh MinIO bucket can be queried
// within seconds of starting the stack.
package seeder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/icequery/icequery/internal/storage"
	"github.com/icequery/icequery/internal/warehouse"
)

type Service struct {
	cfg    Config
	logger *slog.Logger
	store  storage.ObjectStore
}

func NewService(cfg Config, logger *slog.Logger, store storage.ObjectStore) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Service{cfg: cfg, logger: logger, store: store}, nil
}

// Run writes every snapshot's data file and then the metadata document in one
// shot. Snapshot commit times step by one minute so history ordering is
// unambiguous.
func (s *Service) Run(ctx context.Context) error {
	generator := NewGenerator(s.cfg.Seed, s.cfg.KeyCardinality)
	catalog := warehouse.NewCatalog(s.store)
	baseCommit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	meta := warehouse.TableMetadata{
		Database: s.cfg.Database,
		Table:    s.cfg.Table,
	}
	var parent *int64
	for i := 1; i <= s.cfg.Snapshots; i++ {
		snapshotID := int64(i)
		rows := generator.NextBatch(s.cfg.RowsPerSnapshot)
		encoded, err := encodeParquet(rows)
		if err != nil {
			return fmt.Errorf("encode snapshot %d: %w", snapshotID, err)
		}

		key := warehouse.DataFileKey(s.cfg.Database, s.cfg.Table, snapshotID, 0)
		if _, err := s.store.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
			return fmt.Errorf("write data file %q: %w", key, err)
		}

		meta.SnapshotLog = append(meta.SnapshotLog, warehouse.Snapshot{
			SnapshotID:  snapshotID,
			CommittedAt: baseCommit.Add(time.Duration(i) * time.Minute),
			Operation:   "append",
			ParentID:    parent,
		})
		meta.DataFiles = append(meta.DataFiles, warehouse.DataFile{
			Path:          key,
			SnapshotID:    snapshotID,
			FileSizeBytes: int64(len(encoded)),
			RecordCount:   int64(len(rows)),
		})
		parent = &snapshotID

		if s.logger != nil {
			s.logger.InfoContext(ctx, "seeded snapshot",
				slog.Int64("snapshot_id", snapshotID),
				slog.Int("rows", len(rows)),
				slog.String("data_file", key),
			)
		}
	}

	if err := catalog.WriteTable(ctx, meta); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "seeded table",
			slog.String("table", s.cfg.Database+"."+s.cfg.Table),
			slog.Int("snapshots", s.cfg.Snapshots),
		)
	}
	return nil
}

func encodeParquet(rows []EventRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[EventRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
