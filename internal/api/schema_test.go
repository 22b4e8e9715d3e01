package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/icequery/icequery/internal/session"
	"github.com/icequery/icequery/internal/storage"
)

type emptyStore struct{}

func (emptyStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, errors.New("read-only")
}
func (emptyStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}
func (emptyStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}
func (emptyStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}
func (emptyStore) Delete(context.Context, string) error { return nil }

func TestSchemaListsTablesForEmptyWarehouse(t *testing.T) {
	sessions := &session.Provider{NewStore: func(session.Config) (storage.ObjectStore, error) {
		return emptyStore{}, nil
	}}
	h := NewHandler(testAPIConfig(t, nil), Dependencies{Sessions: sessions})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema?credentials_file=/tmp/key.json", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}

	var response schemaResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Catalog != "ice" {
		t.Fatalf("catalog = %q, want configured default", response.Catalog)
	}
	if len(response.Tables) != 0 {
		t.Fatalf("tables = %+v", response.Tables)
	}
}

func TestSchemaReportsWarehouseFailure(t *testing.T) {
	sessions := &session.Provider{NewStore: func(session.Config) (storage.ObjectStore, error) {
		return nil, errors.New("storage unreachable")
	}}
	h := NewHandler(testAPIConfig(t, nil), Dependencies{Sessions: sessions})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema?credentials_file=/tmp/key.json", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("WAREHOUSE_ERROR")) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
