package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// restClient implements the verb-to-method mapping shared by the direct
// store surface and the proxy relay: GET reads, PUT overwrites, POST
// pushes under a store-generated key, PATCH partially updates, DELETE
// removes. Every path gets the ".json" suffix of the store surface.
type restClient struct {
	base string
	hc   *http.Client
}

func (c *restClient) url(path string) string {
	return c.base + "/" + strings.Trim(path, "/") + ".json"
}

// do issues one request and returns the response body, translating any
// network failure or non-2xx status into a *TransportError.
func (c *restClient) do(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Op: op, Path: path, Err: err}
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return nil, &TransportError{Op: op, Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Path: path, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Path: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, Path: path, Status: resp.StatusCode}
	}
	return b, nil
}

func (c *restClient) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, "get", http.MethodGet, path, nil)
}

func (c *restClient) Set(ctx context.Context, path string, v any) error {
	_, err := c.do(ctx, "set", http.MethodPut, path, v)
	return err
}

func (c *restClient) Push(ctx context.Context, path string, v any) (string, error) {
	b, err := c.do(ctx, "push", http.MethodPost, path, v)
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", &TransportError{Op: "push", Path: path, Err: err}
	}
	return out.Name, nil
}

func (c *restClient) Update(ctx context.Context, path string, partial any) error {
	_, err := c.do(ctx, "update", http.MethodPatch, path, partial)
	return err
}

func (c *restClient) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, path, nil)
	return err
}
