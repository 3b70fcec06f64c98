// Package client calls a running pyexec server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/narrated/pyexec/pkg/api"
)

// Error is a non-2xx reply from the server.
type Error struct {
	StatusCode int
	APIError   *api.APIError // nil when the body was not an error envelope
	Body       string
}

func (e *Error) Error() string {
	if e.APIError != nil {
		return fmt.Sprintf("server returned HTTP %d: %s", e.StatusCode, e.APIError.Message)
	}
	return fmt.Sprintf("server returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsAtCapacity reports whether err is a 429 from the server.
func IsAtCapacity(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// Client talks to one pyexec server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends the token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the overall request timeout. It must exceed the
// execution timeout, which the server enforces.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the server at baseURL, e.g. "http://gpu-1:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 65 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute submits code. Execution failures are a nil error with
// Success=false; the error covers requests the server refused.
func (c *Client) Execute(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
	var resp api.ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/v1/code/execute/python", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status calls GET /.
func (c *Client) Status(ctx context.Context) (*api.ServiceStatus, error) {
	var s api.ServiceStatus
	if err := c.do(ctx, http.MethodGet, "/", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthStatus, error) {
	var h api.HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Info calls GET /v1/info.
func (c *Client) Info(ctx context.Context) (*api.InstanceInfo, error) {
	var info api.InstanceInfo
	if err := c.do(ctx, http.MethodGet, "/v1/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetExecution fetches a stored execution record.
func (c *Client) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	var rec api.ExecutionRecord
	if err := c.do(ctx, http.MethodGet, "/v1/executions/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListOptions selects a page of execution records.
type ListOptions struct {
	After  string
	Before string
	Limit  int
	Status api.ExecutionStatus
	Order  string
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.After != "" {
		q.Set("after", o.After)
	}
	if o.Before != "" {
		q.Set("before", o.Before)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	if o.Order != "" {
		q.Set("order", o.Order)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListExecutions fetches a page of execution records.
func (c *Client) ListExecutions(ctx context.Context, opts ListOptions) (*api.ExecutionList, error) {
	var list api.ExecutionList
	if err := c.do(ctx, http.MethodGet, "/v1/executions"+opts.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Cancel stops a running execution or deletes a finished record. It
// reports true when a running execution was cancelled.
func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	status, err := c.send(ctx, http.MethodDelete, "/v1/executions/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusAccepted, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.send(ctx, method, path, in, out)
	return err
}

// send performs one request and decodes a 2xx body into out.
func (c *Client) send(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		var envelope api.ErrorResponse
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			e.APIError = envelope.Error
		}
		return resp.StatusCode, e
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
