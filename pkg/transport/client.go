package transport

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
	"time"

	"golang.org/x/time/rate"

	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
	"github.com/thijsmie/pocketbase/pkg/tracing"
)

// Authorizer decorates an outgoing request with credentials. It is called
// for every request issued through Client.Do and Client.Send.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// Client issues requests against one PocketBase base URL. It is the single
// path every API call takes: CRUD services, realtime resyncs and token
// refreshes all go through Do, and therefore through the Authorizer.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authorizer Authorizer
	limiter    *rate.Limiter
	timeout    time.Duration
	language   string
	beforeSend func(*http.Request) error
	afterSend  func(*http.Response) error
	metrics    metrics.Provider
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its Timeout must be
// zero, otherwise the realtime stream is cut after that duration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthorizer sets the Authorizer consulted before each request
func WithAuthorizer(a Authorizer) Option {
	return func(c *Client) { c.authorizer = a }
}

// WithTimeout bounds every request except streams
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit throttles outgoing requests to rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLanguage sets the Accept-Language header, en-US by default
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithBeforeSend registers a hook that may modify each request right before it is sent
func WithBeforeSend(fn func(*http.Request) error) Option {
	return func(c *Client) { c.beforeSend = fn }
}

// WithAfterSend registers a hook that inspects each response before it is decoded
func WithAfterSend(fn func(*http.Response) error) Option {
	return func(c *Client) { c.afterSend = fn }
}

// WithMetrics sets the metrics provider, metrics.GetProvider() by default
func WithMetrics(p metrics.Provider) Option {
	return func(c *Client) { c.metrics = p }
}

// New creates a client for baseURL, e.g. "http://127.0.0.1:8090".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		language:   "en-US",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetAuthorizer replaces the Authorizer. The composition root uses it to
// break the construction cycle between the client and the auth store.
func (c *Client) SetAuthorizer(a Authorizer) {
	c.authorizer = a
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// BuildURL resolves path (already escaped) against the base URL.
func (c *Client) BuildURL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	if p, err := url.PathUnescape(u.Path); err == nil && p != u.Path {
		// keep escaped segments such as record ids with reserved characters
		u.RawPath = u.Path
		u.Path = p
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) provider() metrics.Provider {
	if c.metrics != nil {
		return c.metrics
	}
	return metrics.GetProvider()
}

// NewRequest builds the request described by opts without sending it.
func (c *Client) NewRequest(ctx context.Context, path string, opts SendOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	data, files := splitBody(opts.Body)
	files = append(files, opts.Files...)

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case len(files) > 0:
		buf, ct, err := encodeMultipart(data, files)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case data != nil:
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BuildURL(path, opts.Query), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func encodeMultipart(data map[string]any, files []File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for key, value := range data {
		var field string
		switch v := value.(type) {
		case string:
			field = v
		case nil:
			field = ""
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, "", fmt.Errorf("encode form field %s: %w", key, err)
			}
			field = string(raw)
		}
		if err := w.WriteField(key, field); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, "", err
		}
		if f.Reader != nil {
			if _, err := io.Copy(part, f.Reader); err != nil {
				return nil, "", fmt.Errorf("read upload %s: %w", f.Name, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// Do authorizes and sends the request, returning the raw response whatever
// its status. The caller closes the body.
func (c *Client) Do(ctx context.Context, path string, opts SendOptions) (*http.Response, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	req, err := c.NewRequest(ctx, path, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.send(req, true)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) send(req *http.Request, authorize bool) (*http.Response, error) {
	ctx := req.Context()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	if authorize && c.authorizer != nil {
		if err := c.authorizer.Authorize(ctx, req); err != nil {
			return nil, fmt.Errorf("authorize request: %w", err)
		}
	}

	if c.beforeSend != nil {
		if err := c.beforeSend(req); err != nil {
			return nil, fmt.Errorf("before send hook: %w", err)
		}
	}

	req, span := tracing.StartRequestSpan(req)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	tracing.EndRequestSpan(span, resp, err)

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.provider().RecordHTTPRequest(req.Method, req.URL.Path, status, time.Since(start))

	if err != nil {
		return nil, err
	}

	if c.afterSend != nil {
		if err := c.afterSend(resp); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("after send hook: %w", err)
		}
	}
	return resp, nil
}

// Send issues the request and decodes a JSON response into out. out may be
// nil to discard the body. A status >= 400 yields a *ResponseError.
func (c *Client) Send(ctx context.Context, path string, opts SendOptions, out any) error {
	resp, err := c.Do(ctx, path, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readResponseError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response of %s %s: %w", resp.Request.Method, path, err)
	}
	return nil
}

// Stream opens a long lived GET request for server-sent events. Streams are
// not bounded by the client timeout and are not authorized. A non-200
// response is turned into a *ResponseError.
func (c *Client) Stream(ctx context.Context, path string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(path, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.send(req, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		rerr := readResponseError(resp)
		logger.Debug("[Transport] Stream %s rejected: %v", path, rerr)
		return nil, rerr
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
