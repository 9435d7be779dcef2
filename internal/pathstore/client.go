// Package pathstore talks to a pathstore service: a hierarchical JSON
// key-value store addressed by slash-separated key paths.
package pathstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Node is one stored key path and its JSON value.
type Node struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

// StatusError is returned for replies outside the expected status codes.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pathstore %s: status %d: %s", e.Op, e.Status, e.Body)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type Client struct {
	base   string
	token  string
	source string
	hc     *http.Client
}

// NewClient returns a client for the service at baseURL. Writes are tagged
// with source "papergest".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  apiKey,
		source: "papergest",
		hc:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Put stores value as JSON under key, replacing any previous value.
func (c *Client) Put(ctx context.Context, key string, value any) error {
	body := struct {
		Value  any    `json:"value"`
		Source string `json:"source,omitempty"`
	}{value, c.source}
	return c.call(ctx, http.MethodPut, "put "+key, c.keyURL(key, nil), body, nil, http.StatusOK, http.StatusCreated)
}

// Get decodes the value under key into dst. It reports false when the key
// does not exist.
func (c *Client) Get(ctx context.Context, key string, dst any) (bool, error) {
	var n Node
	err := c.call(ctx, http.MethodGet, "get "+key, c.keyURL(key, nil), nil, &n, http.StatusOK)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(n.Value, dst); err != nil {
		return false, fmt.Errorf("pathstore get %s: %w", key, err)
	}
	return true, nil
}

// Scan lists the nodes below prefix. A limit of zero leaves paging to the
// server. An unknown prefix yields no nodes.
func (c *Client) Scan(ctx context.Context, prefix string, limit int) ([]Node, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var page struct {
		Nodes []Node `json:"nodes"`
	}
	err := c.call(ctx, http.MethodGet, "scan "+prefix, c.keyURL(strings.TrimRight(prefix, "/")+"/*", q), nil, &page, http.StatusOK)
	if isNotFound(err) {
		return nil, nil
	}
	return page.Nodes, err
}

func (c *Client) keyURL(key string, q url.Values) string {
	u := c.base + "/kv/" + strings.TrimLeft(key, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// call sends in as JSON (when non-nil), checks the status against ok and
// decodes the reply into out (when non-nil).
func (c *Client) call(ctx context.Context, method, op, u string, in, out any, ok ...int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("pathstore %s: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("pathstore %s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("pathstore %s: %w", op, err)
	}
	defer resp.Body.Close()

	if !slices.Contains(ok, resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pathstore %s: decode: %w", op, err)
	}
	return nil
}

// Close drops idle keep-alive connections.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}
