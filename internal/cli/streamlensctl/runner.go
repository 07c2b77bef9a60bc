package streamlensctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
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

	fs := flag.NewFlagSet("streamlensctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "StreamLens API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	page := fs.Int("page", 0, "result page (session-results)")
	pageSize := fs.Int("page-size", 100, "result page size (session-results)")
	statement := fs.String("statement", "", "statement name (exports)")

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

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body []byte
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "sessions":
		method, path = http.MethodGet, "/v1/sessions"
	case "watches":
		method, path = http.MethodGet, "/v1/watches"
	case "exports":
		if strings.TrimSpace(*statement) == "" {
			_, _ = fmt.Fprintln(stderr, "exports requires -statement")
			return 2
		}
		method = http.MethodGet
		path = "/v1/exports?statement=" + url.QueryEscape(strings.TrimSpace(*statement))
	case "session-create":
		name := strings.TrimSpace(fs.Arg(1))
		if name == "" {
			_, _ = fmt.Fprintln(stderr, "session-create requires a statement name")
			return 2
		}
		method, path = http.MethodPost, "/v1/sessions"
		body, _ = json.Marshal(map[string]string{"statement_name": name})
	case "session-state":
		id, ok := sessionArg(fs, stderr, command)
		if !ok {
			return 2
		}
		method, path = http.MethodGet, "/v1/sessions/"+id+"/state"
	case "session-results":
		id, ok := sessionArg(fs, stderr, command)
		if !ok {
			return 2
		}
		method = http.MethodGet
		path = fmt.Sprintf("/v1/sessions/%s/results?page=%d&page_size=%d", id, *page, *pageSize)
	case "session-count":
		id, ok := sessionArg(fs, stderr, command)
		if !ok {
			return 2
		}
		method, path = http.MethodGet, "/v1/sessions/"+id+"/results/count"
	case "session-stop":
		id, ok := sessionArg(fs, stderr, command)
		if !ok {
			return 2
		}
		method, path = http.MethodPost, "/v1/sessions/"+id+"/stop"
	case "session-delete":
		id, ok := sessionArg(fs, stderr, command)
		if !ok {
			return 2
		}
		method, path = http.MethodDelete, "/v1/sessions/"+id
	case "session-export":
		id, ok := sessionArg(fs, stderr, command)
		if !ok {
			return 2
		}
		method, path = http.MethodPost, "/v1/sessions/"+id+"/export"
	case "retention-run":
		method, path = http.MethodPost, "/v1/retention/run"
	case "integrity-run":
		method, path = http.MethodPost, "/v1/integrity/run"
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func sessionArg(fs *flag.FlagSet, stderr io.Writer, command string) (string, bool) {
	id := strings.TrimSpace(fs.Arg(1))
	if id == "" {
		_, _ = fmt.Fprintf(stderr, "%s requires a session id\n", command)
		return "", false
	}
	return id, true
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
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
	_, _ = fmt.Fprintln(w, "usage: streamlensctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                      GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                       GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  sessions                    GET /v1/sessions")
	_, _ = fmt.Fprintln(w, "  watches                     GET /v1/watches")
	_, _ = fmt.Fprintln(w, "  exports -statement <name>   GET /v1/exports")
	_, _ = fmt.Fprintln(w, "  session-create <statement>  POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  session-state <id>          GET /v1/sessions/{id}/state")
	_, _ = fmt.Fprintln(w, "  session-results <id>        GET /v1/sessions/{id}/results")
	_, _ = fmt.Fprintln(w, "  session-count <id>          GET /v1/sessions/{id}/results/count")
	_, _ = fmt.Fprintln(w, "  session-stop <id>           POST /v1/sessions/{id}/stop")
	_, _ = fmt.Fprintln(w, "  session-delete <id>         DELETE /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  session-export <id>         POST /v1/sessions/{id}/export")
	_, _ = fmt.Fprintln(w, "  retention-run               POST /v1/retention/run")
	_, _ = fmt.Fprintln(w, "  integrity-run               POST /v1/integrity/run")
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
