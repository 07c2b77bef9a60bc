package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a thin REST client for the streaming-SQL gateway. It holds no
// mutable state beyond the underlying http.Client and is safe for concurrent
// use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}, nil
}

func (c *Client) GetStatement(ctx context.Context, handle StatementHandle) (StatementDetail, error) {
	path := fmt.Sprintf("/sql/v1/environments/%s/statements/%s",
		url.PathEscape(handle.Environment), url.PathEscape(handle.Name))

	var payload statementResponse
	if err := c.get(ctx, "statement", path, &payload); err != nil {
		return StatementDetail{}, err
	}

	return StatementDetail{
		Name:         payload.Name,
		Phase:        StatementPhase(strings.ToUpper(strings.TrimSpace(payload.Status.Phase))),
		StatusDetail: payload.Status.Detail,
		Schema:       payload.Status.Traits.Schema,
		CreatedAt:    payload.Metadata.CreatedAt,
	}, nil
}

func (c *Client) GetStatementResults(ctx context.Context, handle StatementHandle, pageToken string) (ResultPage, error) {
	path := fmt.Sprintf("/sql/v1/environments/%s/statements/%s/results",
		url.PathEscape(handle.Environment), url.PathEscape(handle.Name))
	if pageToken != "" {
		path += "?page_token=" + url.QueryEscape(pageToken)
	}

	var payload resultsResponse
	if err := c.get(ctx, "results", path, &payload); err != nil {
		return ResultPage{}, err
	}

	return ResultPage{
		Rows:      payload.Results.Data,
		NextToken: payload.Metadata.Next,
		CreatedAt: payload.Metadata.CreatedAt,
	}, nil
}

func (c *Client) StopStatement(ctx context.Context, handle StatementHandle) error {
	path := fmt.Sprintf("/sql/v1/environments/%s/statements/%s/stop",
		url.PathEscape(handle.Environment), url.PathEscape(handle.Name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build stop request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stop statement: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return &MalformedResponseError{Operation: operation, Err: err}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}

	var envelope struct {
		Code    string `json:"error_code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
