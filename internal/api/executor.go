// Package api talks to the finance REST backend.
//
// The Executor owns transport concerns: base URL, bearer token, request
// ids and error decoding. It knows nothing about sessions; the caller
// supplies a TokenSource and an UnauthorizedFunc, which is how a 401 from
// any endpoint reaches the session manager.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/log"
)

const (
	HeaderRequestID = "X-Request-ID"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// TokenSource returns the bearer token to attach, or "" for none.
type TokenSource func() string

// UnauthorizedFunc is called with the token a request carried when the
// backend answered 401.
type UnauthorizedFunc func(token string)

type Executor struct {
	baseURL        *url.URL
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedFunc
	logger         *log.Logger
}

type Option func(*Executor)

func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.httpClient = c }
}

func WithTokenSource(ts TokenSource) Option {
	return func(e *Executor) { e.tokens = ts }
}

func WithUnauthorizedFunc(fn UnauthorizedFunc) Option {
	return func(e *Executor) { e.onUnauthorized = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l.WithComponent(log.ComponentAPI) }
}

// NewExecutor builds an executor for baseURL. timeout is the HTTP client
// timeout and is the only deadline applied besides the caller's context.
func NewExecutor(baseURL string, timeout time.Duration, opts ...Option) (*Executor, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	e := &Executor{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     func() string { return "" },
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetTokenSource rewires the token provider. It exists because the session
// manager and the executor reference each other and one must be built first.
func (e *Executor) SetTokenSource(ts TokenSource) { e.tokens = ts }

// SetUnauthorizedFunc rewires the 401 hook.
func (e *Executor) SetUnauthorizedFunc(fn UnauthorizedFunc) { e.onUnauthorized = fn }

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Anonymous requests carry no Authorization header.
	Anonymous bool
	// Token overrides the token source for this request.
	Token string
}

// Do sends req and decodes a 2xx body into out when out is non-nil.
func (e *Executor) Do(ctx context.Context, req Request, out any) error {
	token := ""
	if !req.Anonymous {
		token = req.Token
		if token == "" {
			token = e.tokens()
		}
	}

	httpReq, err := e.newRequest(ctx, req, token)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.logger.WarnContext(ctx, "Backend request failed",
			log.FieldMethod, req.Method,
			log.FieldPath, req.Path,
			log.FieldRequestID, httpReq.Header.Get(HeaderRequestID),
			log.FieldError, err)
		return &NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Method: req.Method, Path: req.Path, Err: fmt.Errorf("read body: %w", err)}
	}

	e.logger.DebugContext(ctx, "Backend request completed", log.NewFields().
		WithHTTPRequest(req.Method, req.Path, httpReq.URL.RawQuery, "").
		WithHTTPResponse(resp.StatusCode, time.Since(start).Milliseconds()).
		WithRequestID(httpReq.Header.Get(HeaderRequestID)).
		ToSlice()...)

	if resp.StatusCode == http.StatusUnauthorized && token != "" && e.onUnauthorized != nil {
		e.onUnauthorized(token)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (e *Executor) newRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	u := e.baseURL.JoinPath(req.Path)
	// JoinPath drops the trailing slash the backend routes require.
	if strings.HasSuffix(req.Path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}
