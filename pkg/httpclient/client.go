// Package httpclient provides the REST client every vendor integration
// builds on: base URL handling, TLS verification and proxy toggles, auth
// headers, JSON encoding and uniform error wrapping.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/siem-soar-platform/integrations/pkg/errors"
)

// Signer signs a fully built request, for schemes such as Akamai EdgeGrid.
type Signer interface {
	SignRequest(r *http.Request)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(r *http.Request)

// SignRequest calls f.
func (f SignerFunc) SignRequest(r *http.Request) { f(r) }

// Config holds client construction settings.
type Config struct {
	BaseURL string
	Verify  bool
	Proxy   bool
	Timeout time.Duration
	Headers map[string]string

	// Optional basic auth applied to every request.
	Username string
	Password string

	Signer Signer
	Limit  Limit

	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper
}

// Limit throttles outgoing requests. The zero value disables throttling.
type Limit struct {
	RequestsPerSecond float64
	BurstSize         int
}

// limitedTransport waits on a shared limiter before every round trip, so
// clients borrowing HTTPClient are throttled as well.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return t.next.RoundTrip(req)
}

// Client is a thin REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     Signer
	username   string
	password   string

	mu      sync.RWMutex
	headers map[string]string
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	transport := cfg.Transport
	if transport == nil {
		t := &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.Verify,
			},
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		}
		if cfg.Proxy {
			t.Proxy = http.ProxyFromEnvironment
		}
		transport = t
	}
	if cfg.Limit.RequestsPerSecond > 0 {
		burst := cfg.Limit.BurstSize
		if burst <= 0 {
			burst = 1
		}
		transport = &limitedTransport{
			next:    transport,
			limiter: rate.NewLimiter(rate.Limit(cfg.Limit.RequestsPerSecond), burst),
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		signer:   cfg.Signer,
		username: cfg.Username,
		password: cfg.Password,
		headers:  headers,
	}

	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying client, for libraries that take an
// *http.Client (OAuth2 token sources, vendor SDKs).
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SetHeader sets a header sent with every request, e.g. a refreshed token.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// Header returns a default header value.
func (c *Client) Header(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers[key]
}

// Request describes one API call.
type Request struct {
	Method string

	// Path is appended to the base URL. FullURL overrides both.
	Path    string
	FullURL string

	Query   url.Values
	JSON    interface{}
	Form    url.Values
	Data    []byte
	Headers map[string]string

	// OKCodes lists accepted statuses; any 2xx is accepted when empty.
	OKCodes []int

	// Username/Password override the client's basic auth for this call.
	Username string
	Password string
}

// Response is a successful response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v interface{}) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, errors.CodeUpstream, "failed to parse json object from response")
	}
	return nil
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Do performs req and returns the response. Non-accepted statuses become
// upstream errors carrying the status, reason and body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.signer != nil {
		c.signer.SignRequest(httpReq)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstream, "connection error")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstream, "failed to read response body")
	}

	if !accepted(resp.StatusCode, req.OKCodes) {
		return nil, errors.Upstream(resp.StatusCode, reason(resp), string(body))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// DoJSON performs req and decodes the JSON body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.JSON(out)
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	target := req.FullURL
	if target == "" {
		target = c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
		if req.Path == "" {
			target = c.baseURL
		}
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternalError, "failed to marshal request body")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Data != nil:
		body = bytes.NewReader(req.Data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, fmt.Sprintf("failed to create request for %s", target))
	}

	c.mu.RLock()
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	c.mu.RUnlock()

	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	switch {
	case req.Username != "" || req.Password != "":
		httpReq.SetBasicAuth(req.Username, req.Password)
	case c.username != "" || c.password != "":
		httpReq.SetBasicAuth(c.username, c.password)
	}

	return httpReq, nil
}

func accepted(status int, okCodes []int) bool {
	if len(okCodes) == 0 {
		return status >= 200 && status < 300
	}
	for _, code := range okCodes {
		if code == status {
			return true
		}
	}
	return false
}

func reason(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
}
