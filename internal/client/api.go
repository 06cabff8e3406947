package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
)

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: defaultHTTPConnectTimeout}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: defaultHTTPConnectTimeout,
		},
		Timeout: defaultHTTPTimeout,
	}
}

// TodoRequest is what the form submits.
type TodoRequest struct {
	Title  string
	UserID int
}

func (r TodoRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("todo title is empty")
	}
	if r.UserID < 0 {
		return fmt.Errorf("user id %d is negative", r.UserID)
	}
	return nil
}

// CreateResult is the backend's reply to a create request.
type CreateResult struct {
	Message string         `json:"message"`
	Details string         `json:"details"`
	Todo    map[string]any `json:"todo,omitempty"`
}

// StatusError is returned for non-2xx responses. Body is the trimmed response body.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// TodoCreator is implemented by API and by test doubles.
type TodoCreator interface {
	CreateTodo(ctx context.Context, req TodoRequest) (CreateResult, error)
}

// API talks to the backend's HTTP surface.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), HTTP: defaultHTTPClient()}
}

// TodoURL is POST {base}/todos/{user_id}/{todo_title} with each segment path-escaped.
func (a *API) TodoURL(req TodoRequest) (string, error) {
	base, err := url.Parse(strings.TrimRight(a.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("backend url: %q is not absolute", a.BaseURL)
	}
	user := strconv.Itoa(req.UserID)
	prefix := strings.TrimRight(base.Path, "/")
	base.Path = prefix + "/todos/" + user + "/" + req.Title
	base.RawPath = escapePath(prefix) + "/todos/" + url.PathEscape(user) + "/" + url.PathEscape(req.Title)
	return base.String(), nil
}

// CreateTodo issues exactly one POST and reports the decoded reply.
func (a *API) CreateTodo(ctx context.Context, req TodoRequest) (CreateResult, error) {
	if err := req.Validate(); err != nil {
		return CreateResult{}, err
	}
	u, err := a.TodoURL(req)
	if err != nil {
		return CreateResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return CreateResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	hc := a.HTTP
	if hc == nil {
		hc = defaultHTTPClient()
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create todo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CreateResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CreateResult{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out CreateResult
	if len(strings.TrimSpace(string(body))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return CreateResult{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func escapePath(p string) string {
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
