// Package gateway is the client of the remote record store. Every call takes
// the caller's session explicitly; nothing is cached.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"labdesk/internal/form"
	"labdesk/internal/record"
)

// Session carries the bearer credential of the signed-in user.
type Session struct {
	Token string
}

// Identity is the signed-in user as the store reports it.
type Identity struct {
	ID      string
	Email   string
	Name    string
	IsAdmin bool
}

// APIError is a non-2xx response from the store.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the store.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to one record store.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the store at baseURL. A nil httpClient uses
// http.DefaultClient, so timeouts are the transport defaults.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// BaseURL returns the store root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// FileURL is the public address of a stored file.
func (c *Client) FileURL(collection, id, filename string) string {
	return fmt.Sprintf("%s/api/files/%s/%s/%s", c.baseURL,
		url.PathEscape(collection), url.PathEscape(id), url.PathEscape(filename))
}

// ListParams selects one page of a collection.
type ListParams struct {
	Page    int
	PerPage int
	Sort    string
	Filter  string
	Expand  []string
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	page := p.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	if p.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(p.PerPage))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	if len(p.Expand) > 0 {
		q.Set("expand", strings.Join(p.Expand, ","))
	}
	return q
}

// ListResult is one page of records.
type ListResult struct {
	Page       int             `json:"page"`
	PerPage    int             `json:"perPage"`
	TotalItems int             `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
	Items      []record.Record `json:"items"`
}

func recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

func recordPath(collection, id string) string {
	return recordsPath(collection) + "/" + url.PathEscape(id)
}

// List fetches one page of a collection.
func (c *Client) List(ctx context.Context, sess Session, collection string, p ListParams) (*ListResult, error) {
	var out ListResult
	if err := c.do(ctx, sess, http.MethodGet, recordsPath(collection)+"?"+p.values().Encode(), nil, "", &out); err != nil {
		return nil, err
	}
	for i := range out.Items {
		if out.Items[i].Collection == "" {
			out.Items[i].Collection = collection
		}
	}
	return &out, nil
}

// Get fetches one record, optionally expanding relation fields.
func (c *Client) Get(ctx context.Context, sess Session, collection, id string, expand ...string) (record.Record, error) {
	path := recordPath(collection, id)
	if len(expand) > 0 {
		path += "?" + url.Values{"expand": {strings.Join(expand, ",")}}.Encode()
	}
	var rec record.Record
	if err := c.do(ctx, sess, http.MethodGet, path, nil, "", &rec); err != nil {
		return record.Record{}, err
	}
	if rec.Collection == "" {
		rec.Collection = collection
	}
	return rec, nil
}

// Create posts a new record.
func (c *Client) Create(ctx context.Context, sess Session, collection string, sub *form.Submission) (record.Record, error) {
	return c.send(ctx, sess, http.MethodPost, recordsPath(collection), collection, sub)
}

// Update patches an existing record with the submission's keys.
func (c *Client) Update(ctx context.Context, sess Session, collection, id string, sub *form.Submission) (record.Record, error) {
	return c.send(ctx, sess, http.MethodPatch, recordPath(collection, id), collection, sub)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, sess Session, collection, id string) error {
	return c.do(ctx, sess, http.MethodDelete, recordPath(collection, id), nil, "", nil)
}

func (c *Client) send(ctx context.Context, sess Session, method, path, collection string, sub *form.Submission) (record.Record, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := sub.WriteMultipart(w); err != nil {
		return record.Record{}, fmt.Errorf("encode submission: %w", err)
	}
	var rec record.Record
	if err := c.do(ctx, sess, method, path, &buf, w.FormDataContentType(), &rec); err != nil {
		return record.Record{}, err
	}
	if rec.Collection == "" {
		rec.Collection = collection
	}
	return rec, nil
}

type authResponse struct {
	Token  string        `json:"token"`
	Record record.Record `json:"record"`
}

func identityOf(rec record.Record) Identity {
	return Identity{
		ID:      rec.ID,
		Email:   rec.String("email"),
		Name:    rec.String("name"),
		IsAdmin: rec.Bool("is_admin"),
	}
}

// AuthWithPassword exchanges credentials for a session.
func (c *Client) AuthWithPassword(ctx context.Context, email, password string) (Session, Identity, error) {
	body, err := json.Marshal(map[string]string{"identity": email, "password": password})
	if err != nil {
		return Session{}, Identity{}, fmt.Errorf("encode credentials: %w", err)
	}
	var out authResponse
	if err := c.do(ctx, Session{}, http.MethodPost, "/api/collections/users/auth-with-password",
		bytes.NewReader(body), "application/json", &out); err != nil {
		return Session{}, Identity{}, err
	}
	return Session{Token: out.Token}, identityOf(out.Record), nil
}

// Identity looks up who the session belongs to, including the admin flag.
func (c *Client) Identity(ctx context.Context, sess Session) (Identity, error) {
	var out authResponse
	if err := c.do(ctx, sess, http.MethodPost, "/api/collections/users/auth-refresh", nil, "", &out); err != nil {
		return Identity{}, err
	}
	return identityOf(out.Record), nil
}

func (c *Client) do(ctx context.Context, sess Session, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError prefers the store's message and falls back to the status text.
func apiError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return &APIError{Status: status, Message: msg}
		}
		if s, ok := payload.Error.(string); ok && strings.TrimSpace(s) != "" {
			return &APIError{Status: status, Message: s}
		}
	}
	text := http.StatusText(status)
	if text == "" {
		text = "Unexpected response"
	}
	return &APIError{Status: status, Message: fmt.Sprintf("%d %s", status, text)}
}
