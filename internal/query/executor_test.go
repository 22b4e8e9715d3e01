package query

import (
	"context"
	"errors"
	"testing"

	"github.com/icequery/icequery/internal/session"
)

type recordingSink struct {
	progress []int
	infos    []string
}

func (s *recordingSink) Progress(percent int) { s.progress = append(s.progress, percent) }
func (s *recordingSink) Info(message string)  { s.infos = append(s.infos, message) }

func testSessionConfig() session.Config {
	return session.Config{Bucket: "iceberg-storage", CredentialsFile: "/tmp/key.json", Catalog: "ice"}
}

func newTestExecutor() *Executor {
	return &Executor{Sessions: &session.Provider{}}
}

func TestExecuteReportsMilestonesForNonEmptyResult(t *testing.T) {
	sink := &recordingSink{}
	table, err := newTestExecutor().Execute(context.Background(), testSessionConfig(), Request{SQL: "SELECT 1 AS one"}, sink)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if table.RowCount() != 1 {
		t.Fatalf("rows = %d", table.RowCount())
	}
	want := []int{0, 50, 100}
	if len(sink.progress) != len(want) {
		t.Fatalf("progress = %v", sink.progress)
	}
	for i := range want {
		if sink.progress[i] != want[i] {
			t.Fatalf("progress = %v, want %v", sink.progress, want)
		}
	}
	if len(sink.infos) != 0 {
		t.Fatalf("infos = %v", sink.infos)
	}
}

func TestExecuteReturnsNilWithInfoForEmptyResult(t *testing.T) {
	sink := &recordingSink{}
	table, err := newTestExecutor().Execute(context.Background(), testSessionConfig(), Request{SQL: "SELECT 1 AS one WHERE 1 = 0"}, sink)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if table != nil {
		t.Fatalf("table = %+v, want nil", table)
	}
	if len(sink.infos) != 1 {
		t.Fatalf("infos = %v", sink.infos)
	}
	// Empty results stop at the 50% milestone; 100% is only reported once a
	// displayable table exists.
	if len(sink.progress) != 2 || sink.progress[0] != 0 || sink.progress[1] != 50 {
		t.Fatalf("progress = %v", sink.progress)
	}
}

func TestExecuteMapsEngineFailureToQueryError(t *testing.T) {
	sink := &recordingSink{}
	table, err := newTestExecutor().Execute(context.Background(), testSessionConfig(), Request{SQL: "SELECT FROM"}, sink)
	if table != nil {
		t.Fatalf("table = %+v, want nil", table)
	}
	var queryErr *Error
	if !errors.As(err, &queryErr) || queryErr.Kind != KindQuery {
		t.Fatalf("err = %v, want KindQuery", err)
	}
}

func TestExecuteMapsOpenFailureToConfigurationError(t *testing.T) {
	cfg := session.Config{Bucket: "", CredentialsFile: "/tmp/key.json", Catalog: "ice"}
	_, err := newTestExecutor().Execute(context.Background(), cfg, Request{SQL: "SELECT 1"}, nil)
	var queryErr *Error
	if !errors.As(err, &queryErr) || queryErr.Kind != KindConfiguration {
		t.Fatalf("err = %v, want KindConfiguration", err)
	}
}
