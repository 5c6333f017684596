package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-submissions/core"
)

// Credentials is the view of the credential coordinator the client needs.
type Credentials interface {
	// AccessToken returns the current token and the session generation it
	// belongs to. An empty token means no credential.
	AccessToken() (string, uint64)
	// RefreshStale rotates the credential unless it already moved past
	// staleToken. A failed refresh has already forced a logout.
	RefreshStale(ctx context.Context, generation uint64, staleToken string) error
	ForceLogout(ctx context.Context, reason string)
}

type RequestOptions struct {
	Method      string
	Query       map[string]string
	Headers     map[string]string
	Body        []byte
	ContentType string
	// Cache serves GET requests from the response cache and stores fresh ones.
	Cache    bool
	CacheTTL time.Duration
	// SkipAuth sends the request without a credential header.
	SkipAuth bool
	// NoAuthRetry disables the refresh-and-replay cycle on 401.
	NoAuthRetry bool
	Idempotency string
}

// RequestDescriptor describes the most recent call made through the client.
type RequestDescriptor struct {
	Method   string
	Endpoint string
	Query    map[string]string
	CacheKey string
	Cached   bool
	At       time.Time
}

type ClientOption func(*Client)

func WithCredentials(credentials Credentials) ClientOption {
	return func(c *Client) {
		c.credentials = credentials
	}
}

func WithResponseCache(cache *ResponseCache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithAdapter(adapter core.TransportAdapter) ClientOption {
	return func(c *Client) {
		c.adapter = adapter
	}
}

func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

type Client struct {
	baseURL string
	adapter core.TransportAdapter
	cache   *ResponseCache
	logger  core.Logger
	timeout time.Duration
	now     func() time.Time

	mu          sync.RWMutex
	credentials Credentials
	last        *RequestDescriptor
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.adapter == nil {
		client.adapter = NewRESTAdapter(nil)
	}
	if client.cache == nil {
		client.cache = NewResponseCache(defaultCacheTTL)
	}
	client.logger = glog.Ensure(client.logger)
	return client
}

// SetCredentials binds the credential coordinator after construction; the
// coordinator itself talks to the server through this client.
func (c *Client) SetCredentials(credentials Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = credentials
}

func (c *Client) Cache() *ResponseCache {
	return c.cache
}

// InvalidateCache drops cached reads whose key contains pattern.
func (c *Client) InvalidateCache(pattern string) {
	c.cache.Clear(pattern)
}

func (c *Client) LastRequest() (RequestDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return RequestDescriptor{}, false
	}
	out := *c.last
	out.Query = copyStringMap(c.last.Query)
	return out, true
}

// Request performs endpoint relative to the base URL. Non-2xx responses are
// returned as errors: AuthError for unrecoverable 401s, HttpError otherwise.
// Failures to reach the server are NetworkErrors.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (core.TransportResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	key := CacheKey(method, endpoint, opts.Query)
	cacheable := opts.Cache && method == http.MethodGet

	descriptor := RequestDescriptor{
		Method:   method,
		Endpoint: endpoint,
		Query:    copyStringMap(opts.Query),
		CacheKey: key,
		At:       c.now(),
	}
	if cacheable {
		if cached, ok := c.cache.Get(key); ok {
			descriptor.Cached = true
			c.record(descriptor)
			return cached, nil
		}
	}
	c.record(descriptor)

	credentials := c.currentCredentials()
	token, generation := "", uint64(0)
	if credentials != nil {
		token, generation = credentials.AccessToken()
	}
	if opts.SkipAuth {
		token = ""
	}
	epoch := c.cache.Epoch()

	response, err := c.send(ctx, method, endpoint, opts, token)
	if err != nil {
		return core.TransportResponse{}, err
	}

	if response.StatusCode == http.StatusUnauthorized && token != "" && !opts.NoAuthRetry {
		c.logger.Debug("access token rejected, refreshing", "endpoint", endpoint, "method", method)
		if err := credentials.RefreshStale(ctx, generation, token); err != nil {
			return core.TransportResponse{}, err
		}
		token, _ = credentials.AccessToken()
		response, err = c.send(ctx, method, endpoint, opts, token)
		if err != nil {
			return core.TransportResponse{}, err
		}
		if response.StatusCode == http.StatusUnauthorized {
			credentials.ForceLogout(ctx, "unauthorized_after_refresh")
			return core.TransportResponse{}, core.AuthError(
				"session expired, please sign in again",
				core.ErrorSessionExpired,
				map[string]any{"endpoint": endpoint, "method": method},
			)
		}
	}

	if response.StatusCode == http.StatusUnauthorized {
		return core.TransportResponse{}, core.AuthError(
			responseMessage(response.Body),
			core.ErrorAuth,
			map[string]any{"endpoint": endpoint, "method": method},
		)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return core.TransportResponse{}, core.HTTPError(
			response.StatusCode,
			responseMessage(response.Body),
			map[string]any{"endpoint": endpoint, "method": method},
		)
	}

	if cacheable {
		c.storeResponse(key, response, opts.CacheTTL, credentials, generation, epoch)
	}
	return response, nil
}

// storeResponse caches a read unless a logout, a new login or a cache clear
// happened while it was in flight.
func (c *Client) storeResponse(
	key string,
	response core.TransportResponse,
	ttl time.Duration,
	credentials Credentials,
	generation uint64,
	epoch uint64,
) {
	if credentials != nil {
		if _, current := credentials.AccessToken(); current != generation {
			c.logger.Debug("discarding response from a previous session", "cache_key", key)
			return
		}
	}
	if !c.cache.SetIfEpoch(key, response, ttl, epoch) {
		c.logger.Debug("discarding response read before a cache clear", "cache_key", key)
	}
}

// JSON performs Request and decodes a successful body into out.
func (c *Client) JSON(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	response, err := c.Request(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if out == nil || len(response.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Body, out); err != nil {
		return core.HTTPError(
			http.StatusBadGateway,
			fmt.Sprintf("decode %s response: %v", endpoint, err),
			map[string]any{"endpoint": endpoint},
		)
	}
	return nil
}

func (c *Client) send(
	ctx context.Context,
	method string,
	endpoint string,
	opts RequestOptions,
	token string,
) (core.TransportResponse, error) {
	headers := copyStringMap(opts.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	if opts.ContentType != "" {
		headers[HeaderContentType] = opts.ContentType
	}
	if token != "" {
		headers[HeaderAuthorization] = "Bearer " + token
	}
	return c.adapter.Do(ctx, core.TransportRequest{
		Method:      method,
		URL:         c.resolveURL(endpoint),
		Headers:     headers,
		Query:       copyStringMap(opts.Query),
		Body:        opts.Body,
		Timeout:     c.timeout,
		Idempotency: opts.Idempotency,
	})
}

func (c *Client) resolveURL(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

func (c *Client) record(descriptor RequestDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = &descriptor
}

func (c *Client) currentCredentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials
}

// responseMessage extracts the server supplied error message, if any.
func responseMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if message := strings.TrimSpace(payload.Message); message != "" {
		return message
	}
	switch value := payload.Error.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if message, ok := value["message"].(string); ok {
			return strings.TrimSpace(message)
		}
	}
	return ""
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
