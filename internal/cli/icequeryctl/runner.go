// Package icequeryctl implements the operator CLI for the query engine API.
package icequeryctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

const (
	ansiCyan  = "\x1b[36m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type runContext struct {
	client  *http.Client
	baseURL string
	apiKey  string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

type connectionFlags struct {
	catalog     string
	bucket      string
	credentials string
}

func (c *connectionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.catalog, "catalog", "ice", "catalog name")
	fs.StringVar(&c.bucket, "bucket", "iceberg-storage", "warehouse bucket")
	fs.StringVar(&c.credentials, "credentials", "", "path to the credential key file (uploaded with the request)")
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("icequeryctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "IceQuery API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	rc := &runContext{
		client:  client,
		baseURL: strings.TrimRight(*baseURL, "/"),
		apiKey:  strings.TrimSpace(*apiKey),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "health":
		return rc.get(ctx, "/v1/health", nil)
	case "ready":
		return rc.get(ctx, "/v1/ready", nil)
	case "query":
		return rc.cmdQuery(ctx, rest)
	case "resolve":
		return rc.cmdResolve(ctx, rest)
	case "schema":
		return rc.cmdSchema(ctx, rest)
	case "shell":
		return rc.cmdShell(ctx, rest)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type queryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	Events   []struct {
		Type    string `json:"type"`
		Percent int    `json:"percent"`
		Message string `json:"message"`
	} `json:"events"`
	SnapshotID int64  `json:"snapshot_id"`
	Degraded   bool   `json:"degraded"`
	Reason     string `json:"reason"`
}

func (rc *runContext) cmdQuery(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("icequeryctl query", flag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	conn := &connectionFlags{}
	conn.register(fs)
	sqlText := fs.String("sql", "", "SQL to execute (defaults to remaining arguments)")
	rowLimit := fs.Int("row-limit", 0, "maximum rows to return (0 = server default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	statement := strings.TrimSpace(*sqlText)
	if statement == "" {
		statement = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}
	if statement == "" {
		_, _ = fmt.Fprintln(rc.stderr, "query: sql is required")
		return 2
	}
	return rc.runQuery(ctx, conn, statement, *rowLimit)
}

func (rc *runContext) runQuery(ctx context.Context, conn *connectionFlags, statement string, rowLimit int) int {
	fields := map[string]string{
		"catalog": conn.catalog,
		"bucket":  conn.bucket,
		"sql":     statement,
	}
	if rowLimit > 0 {
		fields["row_limit"] = strconv.Itoa(rowLimit)
	}
	result, code := rc.postForm(ctx, "/v1/query", fields, conn.credentials)
	if code != 0 {
		return code
	}
	if result.Rows == nil {
		for _, event := range result.Events {
			if event.Type == "info" {
				_, _ = fmt.Fprintln(rc.stdout, event.Message)
				return 0
			}
		}
		_, _ = fmt.Fprintln(rc.stdout, "No results returned for the query.")
		return 0
	}
	rc.printTable(result.Columns, result.Rows)
	_, _ = fmt.Fprintf(rc.stdout, "(%d rows)\n", result.RowCount)
	return 0
}

func (rc *runContext) cmdResolve(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("icequeryctl resolve", flag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	conn := &connectionFlags{}
	conn.register(fs)
	database := fs.String("database", "", "warehouse database")
	table := fs.String("table", "", "warehouse table")
	keyColumn := fs.String("key-column", "", "primary key column (default id)")
	tsColumn := fs.String("timestamp-column", "", "record timestamp column (default timestamp)")
	rowLimit := fs.Int("row-limit", 0, "maximum rows to return (0 = server default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*database) == "" || strings.TrimSpace(*table) == "" {
		_, _ = fmt.Fprintln(rc.stderr, "resolve: -database and -table are required")
		return 2
	}
	return rc.runResolve(ctx, conn, *database, *table, *keyColumn, *tsColumn, *rowLimit)
}

func (rc *runContext) runResolve(ctx context.Context, conn *connectionFlags, database, table, keyColumn, tsColumn string, rowLimit int) int {
	fields := map[string]string{
		"catalog":          conn.catalog,
		"bucket":           conn.bucket,
		"database":         database,
		"table":            table,
		"key_column":       keyColumn,
		"timestamp_column": tsColumn,
	}
	if rowLimit > 0 {
		fields["row_limit"] = strconv.Itoa(rowLimit)
	}
	result, code := rc.postForm(ctx, "/v1/resolve", fields, conn.credentials)
	if code != 0 {
		return code
	}

	if result.Degraded {
		_, _ = fmt.Fprintf(rc.stdout, "degraded: %s\n", result.Reason)
	} else {
		_, _ = fmt.Fprintf(rc.stdout, "snapshot: %d\n", result.SnapshotID)
	}
	rc.printTable(result.Columns, result.Rows)
	_, _ = fmt.Fprintf(rc.stdout, "(%d rows)\n", result.RowCount)
	return 0
}

func (rc *runContext) cmdSchema(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("icequeryctl schema", flag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	conn := &connectionFlags{}
	conn.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	params := url.Values{}
	params.Set("catalog", conn.catalog)
	params.Set("bucket", conn.bucket)
	if conn.credentials != "" {
		params.Set("credentials_file", conn.credentials)
	}
	return rc.get(ctx, "/v1/schema", params)
}

// cmdShell runs an interactive loop: each non-empty line is executed as one
// query over a fresh server-side session. Backslash directives adjust the
// connection without leaving the loop; exit, quit and \q leave it.
func (rc *runContext) cmdShell(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("icequeryctl shell", flag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	conn := &connectionFlags{}
	conn.register(fs)
	rowLimit := fs.Int("row-limit", 0, "maximum rows to return (0 = server default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	_, _ = fmt.Fprintf(rc.stdout, "connected to %s (catalog=%s bucket=%s)\n", rc.baseURL, conn.catalog, conn.bucket)
	_, _ = fmt.Fprintln(rc.stdout, `directives: \catalog \bucket \credentials \resolve <db> <table> \q`)
	scanner := bufio.NewScanner(rc.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		_, _ = fmt.Fprintf(rc.stdout, "%s%s>%s ", ansiCyan, conn.catalog, ansiReset)
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(rc.stdout, "")
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit", line == "quit", line == `\q`:
			return 0
		case strings.HasPrefix(line, `\`):
			rc.shellDirective(ctx, conn, line, *rowLimit)
			continue
		}
		rc.runQuery(ctx, conn, strings.TrimSuffix(line, ";"), *rowLimit)
	}
}

func (rc *runContext) shellDirective(ctx context.Context, conn *connectionFlags, line string, rowLimit int) {
	parts := strings.Fields(line)
	switch parts[0] {
	case `\catalog`:
		if len(parts) == 2 {
			conn.catalog = parts[1]
			_, _ = fmt.Fprintf(rc.stdout, "catalog set to %s\n", conn.catalog)
			return
		}
	case `\bucket`:
		if len(parts) == 2 {
			conn.bucket = parts[1]
			_, _ = fmt.Fprintf(rc.stdout, "bucket set to %s\n", conn.bucket)
			return
		}
	case `\credentials`:
		if len(parts) == 2 {
			conn.credentials = parts[1]
			_, _ = fmt.Fprintf(rc.stdout, "credentials set to %s\n", conn.credentials)
			return
		}
	case `\resolve`:
		if len(parts) == 3 {
			rc.runResolve(ctx, conn, parts[1], parts[2], "", "", rowLimit)
			return
		}
	}
	_, _ = fmt.Fprintf(rc.stderr, "%sunknown or malformed directive %q%s\n", ansiRed, line, ansiReset)
}

func (rc *runContext) get(ctx context.Context, path string, params url.Values) int {
	endpoint := rc.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		_, _ = fmt.Fprintf(rc.stderr, "request failed: %v\n", err)
		return 1
	}
	req.Header.Set("Accept", "application/json")
	rc.authorize(req)

	status, body, err := rc.do(req)
	if err != nil {
		_, _ = fmt.Fprintf(rc.stderr, "request failed: %v\n", err)
		return 1
	}
	if status >= 400 {
		_, _ = fmt.Fprintf(rc.stderr, "http %d: %s\n", status, strings.TrimSpace(string(body)))
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(rc.stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(rc.stdout, string(body))
	}
	return 0
}

// postForm submits a multipart form, attaching the credential key file when a
// path was given, and decodes the query-result shape shared by the query and
// resolve endpoints.
func (rc *runContext) postForm(ctx context.Context, path string, fields map[string]string, credentialsPath string) (*queryResult, int) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			_, _ = fmt.Fprintf(rc.stderr, "build request: %v\n", err)
			return nil, 1
		}
	}
	if credentialsPath != "" {
		if err := attachFile(writer, "credentials", credentialsPath); err != nil {
			_, _ = fmt.Fprintf(rc.stderr, "read credentials: %v\n", err)
			return nil, 1
		}
	}
	if err := writer.Close(); err != nil {
		_, _ = fmt.Fprintf(rc.stderr, "build request: %v\n", err)
		return nil, 1
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+path, body)
	if err != nil {
		_, _ = fmt.Fprintf(rc.stderr, "request failed: %v\n", err)
		return nil, 1
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	rc.authorize(req)

	status, responseBody, err := rc.do(req)
	if err != nil {
		_, _ = fmt.Fprintf(rc.stderr, "request failed: %v\n", err)
		return nil, 1
	}
	if status >= 400 {
		_, _ = fmt.Fprintln(rc.stderr, formatAPIError(status, responseBody))
		return nil, 1
	}

	var result queryResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		_, _ = fmt.Fprintf(rc.stderr, "decode response: %v\n", err)
		return nil, 1
	}
	return &result, 0
}

func (rc *runContext) authorize(req *http.Request) {
	if rc.apiKey != "" {
		req.Header.Set("X-API-Key", rc.apiKey)
	}
}

func (rc *runContext) do(req *http.Request) (int, []byte, error) {
	resp, err := rc.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (rc *runContext) printTable(columns []string, rows [][]any) {
	if len(columns) == 0 {
		return
	}
	tw := tabwriter.NewWriter(rc.stdout, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			if value == nil {
				cells[i] = ""
				continue
			}
			cells[i] = fmt.Sprint(value)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func attachFile(writer *multipart.Writer, field, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	part, err := writer.CreateFormFile(field, "key.json")
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

func formatAPIError(status int, body []byte) string {
	var payload struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.ErrorCode != "" {
		return fmt.Sprintf("%s: %s", payload.ErrorCode, payload.Message)
	}
	return fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: icequeryctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health    GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready     GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  query     POST /v1/query (flags: -catalog -bucket -credentials -sql -row-limit)")
	_, _ = fmt.Fprintln(w, "  resolve   POST /v1/resolve (flags: -database -table -key-column -timestamp-column)")
	_, _ = fmt.Fprintln(w, "  schema    GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  shell     interactive query loop")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
