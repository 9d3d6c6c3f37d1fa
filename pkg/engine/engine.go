// Package engine provides a typed wrapper over the backing search engine's
// HTTP API: collection create/delete/list, schema field add/remove, JSON
// batch update, and solr-style select. Every call returns a uniform
// Response regardless of the engine's native envelope.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
)

// DefaultTimeout is the request bound used when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Client talks to the backing search engine over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Config configures a Client.
type Config struct {
	// BaseURL is the engine's base URL, e.g. "http://localhost:8983".
	BaseURL string

	// Timeout is the deadline applied to a request whose context has
	// none of its own, and the timeout of the default http.Client.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: cfg.BaseURL, http: hc, timeout: timeout}
}

// Response is the normalized result of every engine call.
type Response struct {
	Status     int
	Message    string
	Docs       []map[string]any
	NumFound   int
	QTime      int
	NextCursor string
}

// engineHeader mirrors the "responseHeader" block the engine always sends.
type engineHeader struct {
	Status int `json:"status"`
	QTime  int `json:"QTime"`
}

type engineEnvelope struct {
	ResponseHeader engineHeader `json:"responseHeader"`
	Error          *struct {
		Msg string `json:"msg"`
	} `json:"error"`
	Collections []string `json:"collections"`
	Response    *struct {
		NumFound int              `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
	NextCursorMark string `json:"nextCursorMark"`
}

// CreateCollection creates a collection with the given name, config,
// shard count, and replication factor. A 409 status means the collection
// already existed; it is not treated as a Go error.
func (c *Client) CreateCollection(ctx context.Context, name, config string, shards, replicas int) (Response, error) {
	body := map[string]any{
		"create": map[string]any{
			"name":              name,
			"config":            config,
			"numShards":         shards,
			"replicationFactor": replicas,
		},
	}
	return c.doJSON(ctx, http.MethodPost, "/api/collections", nil, body)
}

// DeleteCollection deletes the named collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) (Response, error) {
	q := url.Values{"action": {"DELETE"}, "name": {name}}
	return c.doJSON(ctx, http.MethodGet, "/api/collections", q, nil)
}

// ListCollections returns the names of every collection the engine knows
// about.
func (c *Client) ListCollections(ctx context.Context) ([]string, Response, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/api/collections", nil, nil)
	if err != nil {
		return nil, resp, err
	}
	// doJSON doesn't surface the raw "collections" field since Response
	// doesn't carry it; re-decode is avoided by stashing it on Docs as
	// {"name": ...} entries instead, matching the engine's own "name"
	// convention for collection listings.
	names := make([]string, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		if n, ok := d["name"].(string); ok {
			names = append(names, n)
		}
	}
	return names, resp, nil
}

// Healthy reports whether the engine is reachable and answering requests,
// by listing its collections and discarding the result. Used by the HTTP
// API's readiness check.
func (c *Client) Healthy(ctx context.Context) error {
	_, resp, err := c.ListCollections(ctx)
	if err != nil {
		return err
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: engine health check: %s", mediatorerr.ErrEngineTransient, resp.Message)
	}
	return nil
}

// AddField adds a field of the given type to a collection's schema.
func (c *Client) AddField(ctx context.Context, collection, name, fieldType string) (Response, error) {
	body := map[string]any{
		"add-field": map[string]any{
			"name":          name,
			"type":          fieldType,
			"indexed":       true,
			"stored":        true,
			"multiValued":   true,
			"termVectors":   true,
			"termPositions": true,
			"termOffsets":   true,
		},
	}
	path := fmt.Sprintf("/api/collections/%s/schema", collection)
	return c.doJSON(ctx, http.MethodPost, path, nil, body)
}

// RemoveField removes a field from a collection's schema.
func (c *Client) RemoveField(ctx context.Context, collection, name string) (Response, error) {
	body := map[string]any{
		"delete-field": map[string]any{"name": name},
	}
	path := fmt.Sprintf("/api/collections/%s/schema", collection)
	return c.doJSON(ctx, http.MethodPost, path, nil, body)
}

// DeleteByID deletes a single document by id from a collection.
func (c *Client) DeleteByID(ctx context.Context, collection, id string) (Response, error) {
	payload := map[string]any{"delete": map[string]any{"id": id}}
	q := url.Values{"commitWithin": {"1000"}, "overwrite": {"true"}}
	path := fmt.Sprintf("/solr/%s/update", collection)
	return c.doJSON(ctx, http.MethodPost, path, q, payload)
}

// BatchUpdate sends docs to the collection's update endpoint with
// commitWithin soft-commit semantics and overwrite=true. Each doc may use
// atomic field ops ({"set": v}, {"add": v}, {"remove": v}); they are
// passed through unchanged.
func (c *Client) BatchUpdate(ctx context.Context, collection string, docs []map[string]any) (Response, error) {
	q := url.Values{"commitWithin": {"1000"}, "overwrite": {"true"}}
	path := fmt.Sprintf("/solr/%s/update", collection)
	return c.doJSON(ctx, http.MethodPost, path, q, docs)
}

// SelectParams carries the solr-style select parameters.
type SelectParams struct {
	Q     string
	FQ    string
	FL    string
	Sort  string
	Start string
	Rows  string
}

// Select runs a query against a collection.
func (c *Client) Select(ctx context.Context, collection string, params SelectParams) (Response, error) {
	q := url.Values{}
	if params.Q != "" {
		q.Set("q", params.Q)
	}
	if params.FQ != "" {
		q.Set("fq", params.FQ)
	}
	if params.FL != "" {
		q.Set("fl", params.FL)
	}
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	if params.Start != "" {
		q.Set("start", params.Start)
	}
	if params.Rows != "" {
		q.Set("rows", params.Rows)
	}
	path := fmt.Sprintf("/solr/%s/select", collection)
	return c.doJSON(ctx, http.MethodGet, path, q, nil)
}

// doJSON performs a request and decodes the engine's response into a
// uniform Response. It never retries; retries are the caller's
// responsibility.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any) (Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("wt", "json")
	u := c.baseURL + path + "?" + query.Encode()

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("%w: encoding request body: %v", mediatorerr.ErrMalformedInput, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", mediatorerr.ErrEngineTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: reading response: %v", mediatorerr.ErrEngineTransient, err)
	}

	var env engineEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{Status: http.StatusBadRequest, Message: string(raw)}, nil
	}

	out := Response{QTime: env.ResponseHeader.QTime, NextCursor: env.NextCursorMark}
	if env.ResponseHeader.Status == 0 {
		out.Status = http.StatusOK
	} else {
		out.Status = env.ResponseHeader.Status
		if env.Error != nil {
			out.Message = env.Error.Msg
		}
	}
	if env.Response != nil {
		out.Docs = env.Response.Docs
		out.NumFound = env.Response.NumFound
	}
	for _, name := range env.Collections {
		out.Docs = append(out.Docs, map[string]any{"name": name})
	}
	return out, nil
}

// IsTransient reports whether r represents an engine-side failure that is
// safe for the caller to retry (a 5xx response).
func IsTransient(r Response) bool {
	return r.Status >= 500
}
