// Package gateway is the HTTP client every backend call goes through.
//
// A [Gateway] attaches the stored credential as a bearer token, carries the persisted cookie jar on every
// request, paces requests when a rate limit is configured, and inspects every response. A 401 clears every
// credential surface synchronously and publishes [events.Unauthorized]; navigation is left to whoever observes
// the resulting unauthenticated state. Requests are never retried.
package gateway

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

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/storydesk/internal/events"
)

const defaultBaseURL = "http://localhost:8000"

// Credentials is the credential store as seen by the gateway.
type Credentials interface {
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Options configures a [Gateway]. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables pacing
	Jar         http.CookieJar
	Transport   http.RoundTripper
	Credentials Credentials
	Bus         *events.Bus
	Logger      *log.Logger
}

// Gateway performs requests against the backend API.
type Gateway struct {
	baseURL string
	client  *http.Client
	creds   Credentials
	bus     *events.Bus
	limiter *rate.Limiter
	logger  *log.Logger
}

// New creates a [Gateway].
func New(opts Options) *Gateway {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	g := &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout, Jar: opts.Jar, Transport: opts.Transport},
		creds:   opts.Credentials,
		bus:     opts.Bus,
		logger:  logger.With("component", "gateway"),
	}
	if opts.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return g
}

// BaseURL returns the backend origin requests are sent to.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Response is a raw backend response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Get performs a GET request. query may be nil.
func (g *Gateway) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return g.Do(ctx, http.MethodGet, path, nil, "")
}

// PostJSON performs a POST request with payload encoded as JSON.
func (g *Gateway) PostJSON(ctx context.Context, path string, payload any) (*Response, error) {
	return g.sendJSON(ctx, http.MethodPost, path, payload)
}

// PatchJSON performs a PATCH request with payload encoded as JSON.
func (g *Gateway) PatchJSON(ctx context.Context, path string, payload any) (*Response, error) {
	return g.sendJSON(ctx, http.MethodPatch, path, payload)
}

func (g *Gateway) sendJSON(ctx context.Context, method, path string, payload any) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Method: method, Path: path, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}
	return g.Do(ctx, method, path, bytes.NewReader(data), "application/json")
}

// Do sends a request and reads the full response.
//
// A non-2xx status returns both the [*Response] and an [*Error] of kind [KindRejected] or [KindUnauthorized], so
// callers can inspect the body either way.
func (g *Gateway) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*Response, error) {
	fullURL := g.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := g.authorize(ctx, req); err != nil {
		g.logger.Warn("could not read credential, sending request without it", "error", err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindRequest, Method: method, Path: path, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	g.logger.Debug("request", "method", method, "path", path)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Method: method, Path: path, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	apiResp := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	g.logger.Debug("response", "method", method, "path", path, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		g.unauthorized(ctx, method, path)
		return apiResp, &Error{Kind: KindUnauthorized, Method: method, Path: path, StatusCode: resp.StatusCode, Body: data}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return apiResp, &Error{Kind: KindRejected, Method: method, Path: path, StatusCode: resp.StatusCode, Body: data}
	}
	return apiResp, nil
}

func (g *Gateway) authorize(ctx context.Context, req *http.Request) error {
	if g.creds == nil {
		return nil
	}
	token, err := g.creds.Get(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	return nil
}

// unauthorized clears every credential surface before the caller sees the 401.
func (g *Gateway) unauthorized(ctx context.Context, method, path string) {
	g.logger.Info("unauthorized response, clearing credentials", "method", method, "path", path)

	if g.creds != nil {
		if err := g.creds.Clear(context.WithoutCancel(ctx)); err != nil {
			g.logger.Error("failed to clear credentials", "error", err)
		}
	}
	if g.bus != nil {
		g.bus.PublishUnauthorized(events.Unauthorized{Method: method, Path: path})
	}
}
