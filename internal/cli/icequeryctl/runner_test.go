package icequeryctl

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"icequery-api"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"health",
	}, Options{Stdout: &stdout, Stderr: &stderr, Timeout: 2 * time.Second})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key header = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), "icequery-api") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunQueryCommandUploadsCredentials(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(keyPath, []byte(`{"endpoint":"localhost:9000","access_key_id":"ak","secret_access_key":"sk"}`), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	var gotSQL, gotCatalog string
	var gotCredentials []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotSQL = r.FormValue("sql")
		gotCatalog = r.FormValue("catalog")
		file, _, err := r.FormFile("credentials")
		if err != nil {
			t.Errorf("credentials part: %v", err)
		} else {
			defer func() { _ = file.Close() }()
			buf := &bytes.Buffer{}
			_, _ = buf.ReadFrom(file)
			gotCredentials = buf.Bytes()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"columns":["id","v"],"rows":[["a","y"],["b","z"]],"row_count":2,"events":[{"type":"progress","percent":100}]}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"query",
		"-credentials", keyPath,
		"-sql", "SELECT * FROM ice.db.events",
	}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotSQL != "SELECT * FROM ice.db.events" || gotCatalog != "ice" {
		t.Fatalf("sql=%q catalog=%q", gotSQL, gotCatalog)
	}
	if !bytes.Contains(gotCredentials, []byte("access_key_id")) {
		t.Fatalf("credentials = %s", gotCredentials)
	}
	if !strings.Contains(stdout.String(), "(2 rows)") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunQueryCommandPrintsInfoForEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"columns":null,"rows":null,"row_count":0,"events":[{"type":"progress","percent":0},{"type":"progress","percent":50},{"type":"info","message":"No results returned for the query."}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "query", "-sql", "SELECT 1 WHERE 1=0"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "No results returned for the query.") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunQueryCommandSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"QUERY_ERROR","message":"Binder Error: column x not found"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "query", "-sql", "SELECT x"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "QUERY_ERROR") || !strings.Contains(stderr.String(), "Binder Error") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunResolveCommandReportsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("database") != "db" || r.FormValue("table") != "events" {
			t.Errorf("table = %s.%s", r.FormValue("database"), r.FormValue("table"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"columns":["id"],"rows":[["a"],["a"]],"row_count":2,"degraded":true,"reason":"history of ice.db.events is empty"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "resolve", "-database", "db", "-table", "events"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "degraded: history of ice.db.events is empty") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunShellExecutesLinesUntilExit(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"columns":["one"],"rows":[[1]],"row_count":1,"events":[]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	stdin := strings.NewReader("SELECT 1;\n\nSELECT 2\nexit\n")
	code := Run(context.Background(), []string{"-base-url", srv.URL, "shell"}, Options{Stdin: stdin, Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if requests != 2 {
		t.Fatalf("requests = %d", requests)
	}
	if !strings.Contains(stdout.String(), "ice>") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunShellDirectivesAdjustConnection(t *testing.T) {
	var gotCatalog, gotBucket string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotCatalog = r.FormValue("catalog")
		gotBucket = r.FormValue("bucket")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"columns":["one"],"rows":[[1]],"row_count":1,"events":[]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	stdin := strings.NewReader("\\catalog lake\n\\bucket other-bucket\nSELECT 1\n\\q\n")
	code := Run(context.Background(), []string{"-base-url", srv.URL, "shell"}, Options{Stdin: stdin, Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotCatalog != "lake" || gotBucket != "other-bucket" {
		t.Fatalf("catalog=%q bucket=%q", gotCatalog, gotBucket)
	}
	if !strings.Contains(stdout.String(), "catalog set to lake") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunUnknownCommandPrintsUsage(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"frobnicate"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: icequeryctl") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}
