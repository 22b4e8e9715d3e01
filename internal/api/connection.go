package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/icequery/icequery/internal/config"
	"github.com/icequery/icequery/internal/session"
)

const maxMultipartMemory = 32 << 20

// connectionFromForm builds the per-request warehouse connection from a
// multipart form. An uploaded "credentials" part is spooled to a temp file
// that the returned cleanup always removes, whether the query succeeds or
// not. Without an upload the request may name a server-side key file, or
// fall back to the configured one.
func connectionFromForm(cfg config.Config, r *http.Request) (session.Config, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return session.Config{}, noop, fmt.Errorf("parse multipart form: %w", err)
	}

	conn := session.Config{
		Catalog:         strings.TrimSpace(r.FormValue("catalog")),
		Bucket:          strings.TrimSpace(r.FormValue("bucket")),
		WarehousePrefix: cfg.Warehouse.Prefix,
	}
	if conn.Catalog == "" {
		conn.Catalog = cfg.Warehouse.DefaultCatalog
	}
	if conn.Bucket == "" {
		conn.Bucket = cfg.Warehouse.DefaultBucket
	}

	upload, _, err := r.FormFile("credentials")
	switch {
	case err == nil:
		defer func() { _ = upload.Close() }()
		path, err := spoolCredentials(upload)
		if err != nil {
			return session.Config{}, noop, err
		}
		conn.CredentialsFile = path
		return conn, func() { _ = os.Remove(path) }, nil
	case err == http.ErrMissingFile:
		conn.CredentialsFile = strings.TrimSpace(r.FormValue("credentials_file"))
		if conn.CredentialsFile == "" {
			conn.CredentialsFile = cfg.Warehouse.CredentialsFile
		}
		return conn, noop, nil
	default:
		return session.Config{}, noop, fmt.Errorf("read credentials upload: %w", err)
	}
}

func spoolCredentials(upload io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "icequery-key-*.json")
	if err != nil {
		return "", fmt.Errorf("create credentials temp file: %w", err)
	}
	if _, err := io.Copy(tmp, upload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write credentials temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close credentials temp file: %w", err)
	}
	return tmp.Name(), nil
}
