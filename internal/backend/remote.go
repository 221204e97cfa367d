package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"toolcatalog/internal/model"
)

// Client is the shared HTTP transport for every remote backend of a set.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient targets baseURL. A nil httpClient gets a 30 second timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// do sends body (when non-nil) as JSON and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var decoded errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, &decoded)
		if resp.StatusCode == http.StatusNotFound {
			return resp.StatusCode, &statusError{code: decoded.Code, err: ErrNotFound}
		}
		message := decoded.Error
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &statusError{code: decoded.Code, err: fmt.Errorf("%s", message)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// statusError carries the server's error code up to Remote.fail.
type statusError struct {
	code string
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// Remote maps one entity kind onto its REST resource.
type Remote[T model.Record[T], P model.Patch[T]] struct {
	client *Client
	kind   model.Kind
}

func NewRemote[T model.Record[T], P model.Patch[T]](client *Client, kind model.Kind) *Remote[T, P] {
	return &Remote[T, P]{client: client, kind: kind}
}

// NewRemoteSet builds remote backends for every kind on one client.
func NewRemoteSet(client *Client) Set {
	return Set{
		Customers:    NewRemote[model.Customer, model.CustomerPatch](client, model.CustomerKind),
		Applications: NewRemote[model.Application, model.ApplicationPatch](client, model.ApplicationKind),
		Tools:        NewRemote[model.Tool, model.ToolPatch](client, model.ToolKind),
		ToolInputs:   NewRemote[model.ToolInput, model.ToolInputPatch](client, model.ToolInputKind),
		ToolOutputs:  NewRemote[model.ToolOutput, model.ToolOutputPatch](client, model.ToolOutputKind),
		InputOptions: NewRemote[model.InputOption, model.InputOptionPatch](client, model.InputOptionKind),
	}
}

func (r *Remote[T, P]) collectionPath() string {
	return "/" + r.kind.Resource
}

func (r *Remote[T, P]) itemPath(id int64) string {
	return "/" + r.kind.Resource + "/" + strconv.FormatInt(id, 10)
}

func (r *Remote[T, P]) fail(op string, id int64, status int, err error) error {
	out := &Error{Op: op, Resource: r.kind.Resource, ID: id, Status: status, Err: err}
	if se, ok := err.(*statusError); ok {
		out.Code = se.code
		out.Err = se.err
	}
	return out
}

func (r *Remote[T, P]) List(ctx context.Context) ([]T, error) {
	var items []T
	status, err := r.client.do(ctx, http.MethodGet, r.collectionPath(), nil, &items)
	if err != nil {
		return nil, r.fail("list", 0, status, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Create posts item and returns the server's record; the server assigns the id.
func (r *Remote[T, P]) Create(ctx context.Context, item T) (T, error) {
	var created T
	status, err := r.client.do(ctx, http.MethodPost, r.collectionPath(), item, &created)
	if err != nil {
		var zero T
		return zero, r.fail("create", 0, status, err)
	}
	return created, nil
}

func (r *Remote[T, P]) Update(ctx context.Context, id int64, patch P) (T, error) {
	var updated T
	status, err := r.client.do(ctx, http.MethodPut, r.itemPath(id), patch, &updated)
	if err != nil {
		var zero T
		return zero, r.fail("update", id, status, err)
	}
	return updated, nil
}

func (r *Remote[T, P]) Delete(ctx context.Context, id int64) error {
	status, err := r.client.do(ctx, http.MethodDelete, r.itemPath(id), nil, nil)
	if err != nil {
		return r.fail("delete", id, status, err)
	}
	return nil
}

// DeleteChildren calls the bulk endpoint that removes every child of a parent,
// e.g. DELETE /customers/1/applications. It returns the number removed.
func (c *Client) DeleteChildren(ctx context.Context, parent model.Kind, parentID int64, child model.Kind) (int64, error) {
	var result struct {
		Deleted int64 `json:"deleted"`
	}
	path := "/" + parent.Resource + "/" + strconv.FormatInt(parentID, 10) + "/" + child.Resource
	status, err := c.do(ctx, http.MethodDelete, path, nil, &result)
	if err != nil {
		out := &Error{Op: "delete", Resource: child.Resource, Status: status, Err: err}
		if se, ok := err.(*statusError); ok {
			out.Code = se.code
			out.Err = se.err
		}
		return 0, out
	}
	return result.Deleted, nil
}
