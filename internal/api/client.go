// Package api is the HTTP client for the remote course service: the chunked
// upload endpoints and the course create, update and list endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
)

var apiLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	apiLogger = l
}

const DefaultTimeout = 60 * time.Second

// ResponseError is returned for any non-2xx response. It carries the
// structured response so callers can classify it.
type ResponseError struct {
	Method  string
	Path    string
	Status  int
	Body    []byte
	Message string
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

func (e *ResponseError) StatusCode() int      { return e.Status }
func (e *ResponseError) ResponseBody() []byte { return e.Body }

var _ apperr.ResponseCarrier = (*ResponseError)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends an opaque bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

type Client struct {
	baseURL   string
	http      *http.Client
	token     string
	userAgent string
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: "coursesync",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(err, apperr.KindValidation, "encode request body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(req, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(req, err)
	}

	apiLogger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ResponseError{
			Method:  req.Method,
			Path:    req.URL.Path,
			Status:  resp.StatusCode,
			Body:    data,
			Message: errorMessage(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(err, apperr.KindServer, fmt.Sprintf("%s %s: malformed response", req.Method, req.URL.Path))
	}
	return nil
}

// transportError maps failures that never produced a response.
func transportError(req *http.Request, err error) error {
	msg := fmt.Sprintf("%s %s", req.Method, req.URL.Path)
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.KindTimeout, msg+": timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Wrap(err, apperr.KindTimeout, msg+": timed out")
	}
	return apperr.Wrap(err, apperr.KindNetwork, msg)
}

// errorMessage extracts {"message": ...} or {"error": ...} from a body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
