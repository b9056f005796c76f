package warehouse

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

// Row is one result row keyed by column name. Numeric columns wider than
// float64 arrive as strings in the row-oriented JSON format.
type Row map[string]any

// Result is a decoded warehouse response plus which endpoint served it.
type Result struct {
	Rows     []Row
	Count    int64
	ServedBy string
}

type queryResponse struct {
	Meta []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"meta"`
	Data []Row `json:"data"`
	Rows int64 `json:"rows"`
}

// EndpointError is a non-2xx or transport failure from one endpoint. The
// executor aggregates these; handlers must not leak them to clients.
type EndpointError struct {
	Status int
	Body   string
	Err    error
}

func (e *EndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("warehouse request failed: %v", e.Err)
	}
	return fmt.Sprintf("warehouse returned status %d: %s", e.Status, e.Body)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Client speaks the analytical store's stateless HTTP interface: a POST whose
// body is the query text, with named parameters and the target database passed
// as URL parameters, returning row-oriented JSON.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
	}
}

func (c *Client) Query(ctx context.Context, database, sql string, params map[string]string) (*Result, error) {
	values := url.Values{}
	values.Set("database", database)
	values.Set("default_format", "JSON")
	for name, value := range params {
		values.Set("param_"+name, value)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/?"+values.Encode(),
		strings.NewReader(sql),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EndpointError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, &EndpointError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &EndpointError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var decoded queryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &EndpointError{Err: fmt.Errorf("decode response: %w", err)}
	}

	return &Result{Rows: decoded.Data, Count: decoded.Rows}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
