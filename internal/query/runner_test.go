package query

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

type sqlDBEngine struct {
	db *sql.DB
}

func (e sqlDBEngine) Query(ctx context.Context, sqlText string) (*sql.Rows, error) {
	return e.db.QueryContext(ctx, sqlText)
}

func newMockEngine(t *testing.T) (sqlDBEngine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlDBEngine{db: db}, mock
}

func TestRunReturnsLazyRowsOnSuccess(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("SELECT id FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"),
	)

	runner := &Runner{}
	outcome := runner.Run(context.Background(), engine, "SELECT id FROM t")
	if outcome.Failed() {
		t.Fatalf("outcome failed: %s", outcome.ErrText)
	}

	table, err := Materialize(outcome.Rows, 0)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if len(table.Columns) != 1 || table.Columns[0] != "id" {
		t.Fatalf("columns = %v", table.Columns)
	}
	if table.RowCount() != 2 {
		t.Fatalf("rows = %d", table.RowCount())
	}
}

func TestRunReturnsErrorTextNotError(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("SELECT * FROM nonexistent").WillReturnError(
		errors.New(`Table with name nonexistent does not exist`),
	)

	runner := &Runner{}
	outcome := runner.Run(context.Background(), engine, "SELECT * FROM nonexistent")
	if !outcome.Failed() {
		t.Fatal("expected failed outcome")
	}
	if outcome.Rows != nil {
		t.Fatal("failed outcome must not carry rows")
	}
	if !strings.Contains(outcome.ErrText, "nonexistent does not exist") {
		t.Fatalf("ErrText = %q", outcome.ErrText)
	}
}

func TestMaterializeNormalizesBytesAndAppliesLimit(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("SELECT v FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"v"}).AddRow([]byte("x")).AddRow([]byte("y")).AddRow([]byte("z")),
	)

	outcome := (&Runner{}).Run(context.Background(), engine, "SELECT v FROM t")
	if outcome.Failed() {
		t.Fatalf("outcome failed: %s", outcome.ErrText)
	}
	table, err := Materialize(outcome.Rows, 2)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if table.RowCount() != 2 {
		t.Fatalf("rows = %d", table.RowCount())
	}
	if table.Rows[0][0] != "x" {
		t.Fatalf("value = %#v, want normalized string", table.Rows[0][0])
	}
}
