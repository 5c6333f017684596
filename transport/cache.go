package transport

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-submissions/core"
)

const defaultCacheTTL = 5 * time.Minute

// ResponseCache holds successful read responses for a bounded time. Each key
// owns one expiry timer; setting a key again replaces its value and timer.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	defaultTTL time.Duration
	now        func() time.Time
	// epoch counts Clear calls.
	epoch uint64
}

type cacheEntry struct {
	response  core.TransportResponse
	expiresAt time.Time
	timer     *time.Timer
}

func NewResponseCache(defaultTTL time.Duration) *ResponseCache {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	return &ResponseCache{
		entries:    map[string]*cacheEntry{},
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns a copy of the cached response. Reads never consume the entry.
func (c *ResponseCache) Get(key string) (core.TransportResponse, bool) {
	if c == nil {
		return core.TransportResponse{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return core.TransportResponse{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		entry.timer.Stop()
		delete(c.entries, key)
		return core.TransportResponse{}, false
	}
	return cloneResponse(entry.response), true
}

// Set stores value under key for ttl, or the default window when ttl <= 0.
func (c *ResponseCache) Set(key string, value core.TransportResponse, ttl time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

// Epoch identifies the cache contents between two Clear calls.
func (c *ResponseCache) Epoch() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// SetIfEpoch stores value only when no Clear happened since epoch was read.
// It reports whether the value was stored.
func (c *ResponseCache) SetIfEpoch(key string, value core.TransportResponse, ttl time.Duration, epoch uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.setLocked(key, value, ttl)
	return true
}

func (c *ResponseCache) setLocked(key string, value core.TransportResponse, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if previous, ok := c.entries[key]; ok {
		previous.timer.Stop()
	}
	entry := &cacheEntry{
		response:  cloneResponse(value),
		expiresAt: c.now().Add(ttl),
	}
	entry.timer = time.AfterFunc(ttl, func() {
		c.expire(key, entry)
	})
	c.entries[key] = entry
}

// Clear removes every entry whose key contains pattern, or all entries when
// pattern is empty.
func (c *ResponseCache) Clear(pattern string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for key, entry := range c.entries {
		if pattern != "" && !strings.Contains(key, pattern) {
			continue
		}
		entry.timer.Stop()
		delete(c.entries, key)
	}
}

func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) expire(key string, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a later Set may have replaced the entry after this timer fired
	if current, ok := c.entries[key]; ok && current == entry {
		delete(c.entries, key)
	}
}

// CacheKey identifies a read by method, endpoint path and sorted query.
func CacheKey(method string, endpoint string, query map[string]string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(endpoint)
	if parsed, err := url.Parse(path); err == nil {
		merged := parsed.Query()
		for key, value := range query {
			merged.Set(key, value)
		}
		parsed.RawQuery = ""
		path = parsed.String()
		query = make(map[string]string, len(merged))
		for key := range merged {
			query[key] = merged.Get(key)
		}
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(query[key]))
	}
	return method + " " + path + "?" + strings.Join(parts, "&")
}

func cloneResponse(response core.TransportResponse) core.TransportResponse {
	out := core.TransportResponse{StatusCode: response.StatusCode}
	if response.Body != nil {
		out.Body = append([]byte(nil), response.Body...)
	}
	if response.Headers != nil {
		out.Headers = make(map[string]string, len(response.Headers))
		for key, value := range response.Headers {
			out.Headers[key] = value
		}
	}
	if response.Metadata != nil {
		out.Metadata = make(map[string]any, len(response.Metadata))
		for key, value := range response.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

var _ core.ResponseInvalidator = (*ResponseCache)(nil)
