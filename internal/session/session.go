// Package session provides the per-interaction engine session: an embedded
// DuckDB database bound to a warehouse bucket through an uploaded credential
// key file. Table references in user SQL are resolved against the warehouse
// catalog and bound as DuckDB relations before execution.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/icequery/icequery/internal/observability"
	"github.com/icequery/icequery/internal/storage"
	s3store "github.com/icequery/icequery/internal/storage/s3"
	"github.com/icequery/icequery/internal/warehouse"
)

// Config identifies one warehouse connection. All three fields come from the
// user on every interaction cycle.
type Config struct {
	Bucket          string
	CredentialsFile string
	Catalog         string
	WarehousePrefix string
}

type StoreFactory func(cfg Config) (storage.ObjectStore, error)

type Provider struct {
	Logger *slog.Logger
	// NewStore overrides object store construction; tests inject in-memory
	// stores here. Defaults to a MinIO store built from the key file.
	NewStore StoreFactory
}

// Open creates a session. No storage or credential validation happens here:
// an unreachable endpoint or a bad key surfaces on the first query that
// touches a table, and a session over a broken connection still answers
// catalog-free SQL such as SELECT 1.
func (p *Provider) Open(ctx context.Context, cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if strings.TrimSpace(cfg.CredentialsFile) == "" {
		return nil, fmt.Errorf("credentials file is required")
	}
	if strings.TrimSpace(cfg.Catalog) == "" {
		return nil, fmt.Errorf("catalog name is required")
	}
	if cfg.WarehousePrefix == "" {
		cfg.WarehousePrefix = "warehouse"
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	workDir, err := os.MkdirTemp("", "icequery-session-")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session scratch dir: %w", err)
	}

	newStore := p.NewStore
	if newStore == nil {
		newStore = func(cfg Config) (storage.ObjectStore, error) {
			return s3store.NewFromKeyFile(cfg.Bucket, cfg.CredentialsFile, cfg.WarehousePrefix)
		}
	}

	observability.IncrementSessionsOpened()
	if p.Logger != nil {
		p.Logger.DebugContext(ctx, "session opened",
			slog.String("catalog", cfg.Catalog),
			slog.String("bucket", cfg.Bucket),
		)
	}

	return &Session{
		cfg:      cfg,
		db:       db,
		workDir:  workDir,
		newStore: newStore,
		logger:   p.Logger,
		bound:    map[string]bool{},
		staged:   map[string]string{},
	}, nil
}

type Session struct {
	cfg      Config
	db       *sql.DB
	workDir  string
	newStore StoreFactory
	logger   *slog.Logger

	store   storage.ObjectStore
	catalog *warehouse.Catalog

	bound  map[string]bool   // relation name -> already bound
	staged map[string]string // object key -> local parquet path
	seq    int
}

func (s *Session) CatalogName() string {
	return s.cfg.Catalog
}

func (s *Session) DB() *sql.DB {
	return s.db
}

// Query binds every warehouse table reference in sqlText and executes the
// rewritten statement verbatim. The returned rows are lazy; callers own
// closing them.
func (s *Session) Query(ctx context.Context, sqlText string) (*sql.Rows, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	rewritten, err := s.bindReferences(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, rewritten)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return rows, nil
}

// ListTables enumerates the tables reachable through this session's bucket.
func (s *Session) ListTables(ctx context.Context) ([]warehouse.TableName, error) {
	if err := s.ensureCatalog(ctx); err != nil {
		return nil, err
	}
	return s.catalog.ListTables(ctx)
}

// Close releases the engine handle and the staged parquet scratch dir. The
// session is unusable afterwards; the next interaction opens a fresh one.
func (s *Session) Close() error {
	var firstErr error
	if err := s.db.Close(); err != nil {
		firstErr = fmt.Errorf("close duckdb: %w", err)
	}
	if err := os.RemoveAll(s.workDir); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("remove session scratch dir: %w", err)
	}
	return firstErr
}

func (s *Session) bindReferences(ctx context.Context, sqlText string) (string, error) {
	refs := scanReferences(s.cfg.Catalog, sqlText)
	for _, ref := range refs {
		if ref.History {
			if err := s.bindHistory(ctx, ref.Table); err != nil {
				return "", err
			}
			continue
		}
		if err := s.bindData(ctx, ref.Table); err != nil {
			return "", err
		}
	}
	return rewriteReferences(s.cfg.Catalog, sqlText), nil
}

func (s *Session) ensureCatalog(ctx context.Context) error {
	if s.catalog != nil {
		return nil
	}
	store, err := s.newStore(s.cfg)
	if err != nil {
		return fmt.Errorf("connect warehouse storage: %w", err)
	}
	s.store = store
	s.catalog = warehouse.NewCatalog(store)
	_ = ctx
	return nil
}

// bindData stages the table's parquet data files locally and creates a view
// named after the fully qualified reference. Every per-snapshot select is
// extended with a constant snapshot_id column so snapshot filters and the
// dedup window run engine-side.
func (s *Session) bindData(ctx context.Context, ref warehouse.TableRef) error {
	name := ref.String()
	if s.bound[name] {
		return nil
	}
	if err := s.ensureCatalog(ctx); err != nil {
		return err
	}

	meta, err := s.catalog.LoadTable(ctx, ref.Database, ref.Table)
	if err != nil {
		return err
	}
	if len(meta.DataFiles) == 0 {
		return fmt.Errorf("table %s has no data files", name)
	}

	grouped := map[int64][]string{}
	order := make([]int64, 0)
	for _, file := range meta.DataFiles {
		localPath, err := s.stage(ctx, file.Path)
		if err != nil {
			return err
		}
		if _, seen := grouped[file.SnapshotID]; !seen {
			order = append(order, file.SnapshotID)
		}
		grouped[file.SnapshotID] = append(grouped[file.SnapshotID], localPath)
	}

	selects := make([]string, 0, len(grouped))
	for _, snapshotID := range order {
		selects = append(selects, fmt.Sprintf(
			"SELECT *, CAST(%d AS BIGINT) AS snapshot_id FROM read_parquet(%s)",
			snapshotID, quoteStringArray(grouped[snapshotID]),
		))
	}
	viewSQL := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", quoteIdent(name), strings.Join(selects, " UNION ALL "))
	if _, err := s.db.ExecContext(ctx, viewSQL); err != nil {
		return fmt.Errorf("bind table %s: %w", name, err)
	}
	s.bound[name] = true
	return nil
}

// bindHistory materializes the table's snapshot log as a small engine table
// so the history relation is queryable like any other.
func (s *Session) bindHistory(ctx context.Context, ref warehouse.TableRef) error {
	name := ref.HistoryName()
	if s.bound[name] {
		return nil
	}
	if err := s.ensureCatalog(ctx); err != nil {
		return err
	}

	history, err := s.catalog.History(ctx, ref.Database, ref.Table)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s (snapshot_id BIGINT, committed_at TIMESTAMP, parent_id BIGINT, operation VARCHAR)",
		quoteIdent(name),
	)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("bind history %s: %w", name, err)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", quoteIdent(name))
	for _, snap := range history {
		var parent any
		if snap.ParentID != nil {
			parent = *snap.ParentID
		}
		if _, err := s.db.ExecContext(ctx, insertSQL, snap.SnapshotID, snap.CommittedAt, parent, snap.Operation); err != nil {
			return fmt.Errorf("insert history row for %s: %w", name, err)
		}
	}
	s.bound[name] = true
	return nil
}

func (s *Session) stage(ctx context.Context, objectKey string) (string, error) {
	if localPath, ok := s.staged[objectKey]; ok {
		return localPath, nil
	}
	reader, err := s.store.Get(ctx, objectKey)
	if err != nil {
		return "", fmt.Errorf("get data file %q: %w", objectKey, err)
	}
	s.seq++
	localPath := filepath.Join(s.workDir, fmt.Sprintf("part_%05d.parquet", s.seq))
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return "", fmt.Errorf("stage data file %q: %w", objectKey, err)
	}
	if err := reader.Close(); err != nil {
		return "", fmt.Errorf("close data file %q: %w", objectKey, err)
	}
	s.staged[objectKey] = localPath
	return localPath, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
