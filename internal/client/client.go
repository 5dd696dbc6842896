// Package client talks to the forms HTTP API.
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

	"formdesk/api/internal/designer"
	"formdesk/api/internal/search"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client is an authenticated API client. It satisfies designer.Store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ designer.Store = (*Client)(nil)

type saveRequest struct {
	Title   string          `json:"title,omitempty"`
	RawJSON json.RawMessage `json:"rawJson"`
}

func (c *Client) CreateForm(ctx context.Context, title string, rawJSON json.RawMessage) (designer.Ref, error) {
	var ref designer.Ref
	err := c.do(ctx, http.MethodPost, "/forms", saveRequest{Title: title, RawJSON: rawJSON}, &ref)
	return ref, err
}

func (c *Client) EditForm(ctx context.Context, formID, title string, rawJSON json.RawMessage) (designer.Ref, error) {
	var ref designer.Ref
	err := c.do(ctx, http.MethodPut, "/forms/"+url.PathEscape(formID), saveRequest{Title: title, RawJSON: rawJSON}, &ref)
	return ref, err
}

func (c *Client) GetForm(ctx context.Context, formID string, version int) (designer.Form, error) {
	var form designer.Form
	err := c.do(ctx, http.MethodGet, versionPath(formID, version), nil, &form)
	return form, err
}

// GetLatest fetches the highest version of a form.
func (c *Client) GetLatest(ctx context.Context, formID string) (designer.Form, error) {
	var form designer.Form
	err := c.do(ctx, http.MethodGet, "/forms/"+url.PathEscape(formID), nil, &form)
	return form, err
}

func (c *Client) Publish(ctx context.Context, formID string, version int) (designer.Ref, error) {
	var ref designer.Ref
	err := c.do(ctx, http.MethodPost, versionPath(formID, version)+"/publish", nil, &ref)
	return ref, err
}

// Summary is one entry of a form listing.
type Summary struct {
	FormID    string    `json:"formId"`
	Version   int       `json:"version"`
	Status    string    `json:"status"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
	Thumbnail string    `json:"thumbnail"`
}

type Page struct {
	Forms  []Summary `json:"forms"`
	Page   int       `json:"page"`
	Limit  int       `json:"limit"`
	Status string    `json:"status"`
}

// ListForms lists the caller's forms. Zero values use the server defaults.
func (c *Client) ListForms(ctx context.Context, status string, page, limit int) (Page, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/forms"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out Page
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, q string, limit int) (search.Response, error) {
	query := url.Values{"q": {q}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out search.Response
	err := c.do(ctx, http.MethodGet, "/forms/search?"+query.Encode(), nil, &out)
	return out, err
}

// Thumbnail downloads the preview of a version and its content type.
func (c *Client) Thumbnail(ctx context.Context, formID string, version int) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, versionPath(formID, version)+"/thumbnail", nil)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read thumbnail: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func versionPath(formID string, version int) string {
	return "/forms/" + url.PathEscape(formID) + "/" + strconv.Itoa(version)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the response for 2xx statuses.
// Other statuses are returned as *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	}
	return nil, apiErr
}
