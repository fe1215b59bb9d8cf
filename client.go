package sdbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"
)

// Querier runs SurrealQL. The returned error is non-nil when the request
// failed or when any statement reported status ERR; results are returned
// whenever the server answered.
type Querier interface {
	Query(ctx context.Context, sql string, vars map[string]any) ([]QueryResult, error)
}

// DB is a connection to one SurrealDB namespace and database.
type DB interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// ClientOption configures optional connection settings.
type ClientOption func(*options)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	user       string
	pass       string
	namespace  string
	database   string
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *options) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithLogger attaches a logger used for debug information.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTimeout sets the request timeout, and the websocket handshake and call
// timeout when the caller's context has no deadline.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithRetry sets the maximum number of retries for transient errors and the base backoff.
func WithRetry(maxRetries int, backoff time.Duration) ClientOption {
	return func(o *options) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		o.maxRetries = maxRetries
		if backoff > 0 {
			o.backoff = backoff
		}
	}
}

// WithCredentials signs in as a root user. Without credentials requests are anonymous.
func WithCredentials(user, pass string) ClientOption {
	return func(o *options) {
		o.user = strings.TrimSpace(user)
		o.pass = pass
	}
}

// WithNamespace selects the namespace queries run in.
func WithNamespace(ns string) ClientOption {
	return func(o *options) {
		o.namespace = strings.TrimSpace(ns)
	}
}

// WithDatabase selects the database queries run in.
func WithDatabase(db string) ClientOption {
	return func(o *options) {
		o.database = strings.TrimSpace(db)
	}
}

func buildOptions(opts []ClientOption) options {
	o := options{
		timeout: 30 * time.Second,
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Connect opens a connection, choosing the transport from the URL scheme:
// http and https use the /sql endpoint, ws and wss the /rpc endpoint.
func Connect(ctx context.Context, rawURL string, opts ...ClientOption) (DB, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		c, err := NewClient(rawURL, opts...)
		if err != nil {
			return nil, err
		}
		if err := c.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}
		return c, nil
	case "ws", "wss":
		return DialRPC(ctx, rawURL, opts...)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// tokenLifetime stays below SurrealDB's default one hour session.
const tokenLifetime = 55 * time.Minute

// Client talks to SurrealDB over the HTTP /sql endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	opts       options

	token        string
	tokenExpires time.Time
	authMutex    sync.Mutex
	tokenMutex   sync.RWMutex
}

// NewClient constructs an HTTP client. Authentication happens lazily on the first query.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("baseURL is required")
	}

	o := buildOptions(opts)
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		opts:       o,
	}, nil
}

// Query sends sql to /sql. Vars are bound with leading LET statements whose
// results are removed from the returned slice.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) ([]QueryResult, error) {
	prefix, lets, err := renderVars(vars)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/sql", []byte(prefix+sql), "text/plain")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := mapHTTPError(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var results []QueryResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if lets > len(results) {
		lets = len(results)
	}
	results = results[lets:]
	return results, CheckResults(results)
}

// Begin starts a buffered transaction committed as a single request.
func (c *Client) Begin(ctx context.Context) (Tx, error) {
	return newBufferedTx(c), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// do executes a request, retrying 401 and 429 responses and connections that
// could not be dialled. Any other network error may mean the server already
// ran the statements, so it is returned as is.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	attempts := c.opts.maxRetries

	for attempt := 0; attempt <= attempts; attempt++ {
		if err := c.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		c.setHeaders(req)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt == attempts || ctx.Err() != nil || !isDialError(err) {
				return nil, err
			}
			c.opts.logger.Debug("request failed, retrying", "attempt", attempt+1, "error", err)
			if waitErr := c.wait(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized && c.opts.user != "" {
			c.clearToken()
			if attempt < attempts {
				resp.Body.Close()
				continue
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < attempts {
			resp.Body.Close()
			if waitErr := c.wait(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return resp, nil
	}

	return nil, errors.New("request failed after retries")
}

// isDialError reports whether err happened before the request left the client.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if ns := c.opts.namespace; ns != "" {
		req.Header.Set("Surreal-NS", ns)
		req.Header.Set("NS", ns)
	}
	if db := c.opts.database; db != "" {
		req.Header.Set("Surreal-DB", db)
		req.Header.Set("DB", db)
	}
	if token := c.readToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.opts.user == "" || c.tokenValid() {
		return nil
	}
	c.authMutex.Lock()
	defer c.authMutex.Unlock()

	if c.tokenValid() {
		return nil
	}
	return c.authenticate(ctx)
}

func (c *Client) authenticate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload := map[string]string{
		"user": c.opts.user,
		"pass": c.opts.pass,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("encode signin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signin", &buf)
	if err != nil {
		return fmt.Errorf("build signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signin request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read signin response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.clearToken()
		return mapHTTPError(resp.StatusCode, body)
	}

	var authResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &authResp); err != nil {
		return fmt.Errorf("parse signin response: %w", err)
	}
	if authResp.Token == "" {
		return errors.New("signin succeeded but token missing")
	}

	expiry := time.Now().Add(tokenLifetime)
	c.tokenMutex.Lock()
	c.token = authResp.Token
	c.tokenExpires = expiry
	c.tokenMutex.Unlock()

	c.opts.logger.Debug("signed in to SurrealDB", "user", c.opts.user, "expires", expiry)
	return nil
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	delay := c.opts.backoff << attempt

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) tokenValid() bool {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()

	if c.token == "" {
		return false
	}
	if c.tokenExpires.IsZero() {
		return true
	}
	return time.Now().Before(c.tokenExpires)
}

func (c *Client) readToken() string {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.token
}

func (c *Client) clearToken() {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	c.token = ""
	c.tokenExpires = time.Time{}
}

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// renderVars turns vars into "LET $k = <json>;" statements in key order.
func renderVars(vars map[string]any) (string, int, error) {
	if len(vars) == 0 {
		return "", 0, nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		if !varName.MatchString(k) {
			return "", 0, fmt.Errorf("invalid variable name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		value, err := json.Marshal(vars[k])
		if err != nil {
			return "", 0, fmt.Errorf("encode variable %s: %w", k, err)
		}
		fmt.Fprintf(&b, "LET $%s = %s;\n", k, value)
	}
	return b.String(), len(keys), nil
}
