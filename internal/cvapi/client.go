package cvapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody caps how much of a failed response is kept in a ServerError.
const maxErrorBody = 4096

// Client is a stateless façade over the CV service HTTP API. It never
// stores a session token: protected calls take the token as an argument.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client targeting baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "cvdesk",
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the server root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	token       string
	protected   bool
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// open sends r and returns the response only when the status is 2xx. Any
// other outcome is turned into a TransportError, AuthError or ServerError
// and the body is closed.
func (c *Client) open(ctx context.Context, r request) (*http.Response, error) {
	if r.protected && strings.TrimSpace(r.token) == "" {
		return nil, &AuthError{Message: r.op + " requires a login token"}
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", r.op, err)
	}
	reqID := uuid.New().String()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "op", r.op, "method", r.method, "path", r.path, "request_id", reqID, "error", err)
		return nil, &TransportError{Op: r.op, Err: err}
	}
	c.logger.Debug("api request",
		"op", r.op,
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", reqID,
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return nil, &TransportError{Op: r.op, Err: fmt.Errorf("reading error body: %w", readErr)}
	}
	return nil, statusError(resp.StatusCode, body)
}

func statusError(status int, body []byte) error {
	msg := bodyMessage(body)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &AuthError{Status: status, Message: msg}
	}
	return &ServerError{Status: status, Message: msg, Body: string(body)}
}

// bodyMessage pulls the human-readable part out of {"message": ...} or
// {"error": ...} bodies.
func bodyMessage(body []byte) string {
	var v struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	if v.Message != "" {
		return v.Message
	}
	return v.Error
}

// do sends r and decodes a 2xx JSON body into out (when non-nil). It returns
// the status code so callers can apply endpoint-specific status rules.
func (c *Client) do(ctx context.Context, r request, out any) (int, error) {
	resp, err := c.open(ctx, r)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &TransportError{Op: r.op, Err: fmt.Errorf("reading body: %w", err)}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, &ProtocolError{Op: r.op, Err: err}
	}
	return resp.StatusCode, nil
}

// doMessage reads a {"message": ...} body, tolerating bodies that are not
// JSON at all (the server answers some successful deletes with plain text).
func (c *Client) doMessage(ctx context.Context, r request, fallback string) (Message, int, error) {
	resp, err := c.open(ctx, r)
	if err != nil {
		return Message{}, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, resp.StatusCode, &TransportError{Op: r.op, Err: fmt.Errorf("reading body: %w", err)}
	}
	if msg := bodyMessage(body); msg != "" {
		return Message{Message: msg}, resp.StatusCode, nil
	}
	return Message{Message: fallback}, resp.StatusCode, nil
}

func pathID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", Invalid("id", "is required")
	}
	return url.PathEscape(id), nil
}
