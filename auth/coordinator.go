package auth

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-submissions/core"
	"golang.org/x/sync/singleflight"
)

const (
	LogoutReasonRefreshFailed = "refresh_failed"
	LogoutReasonUnauthorized  = "unauthorized_after_refresh"
)

// API is the server side of the credential lifecycle.
type API interface {
	Login(ctx context.Context, input core.LoginInput) (core.Credential, error)
	Register(ctx context.Context, input core.RegisterInput) (core.Credential, error)
	Refresh(ctx context.Context, current core.Credential) (core.Credential, error)
}

type Option func(*Coordinator)

func WithLogger(logger core.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithCredentialStore(store core.CredentialStore) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithResponseCache sets the read cache purged on every credential change.
func WithResponseCache(cache core.ResponseInvalidator) Option {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator owns the current credential. Concurrent refresh requests for
// the same session share one network call; a failed refresh logs the user out.
type Coordinator struct {
	api    API
	store  core.CredentialStore
	cache  core.ResponseInvalidator
	logger core.Logger
	now    func() time.Time

	mu           sync.RWMutex
	current      core.Credential
	generation   uint64
	listeners    map[uint64]core.LogoutListener
	nextListener uint64

	refreshes singleflight.Group
}

func NewCoordinator(api API, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:       api,
		now:       func() time.Time { return time.Now().UTC() },
		listeners: map[uint64]core.LogoutListener{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.store == nil {
		c.store = core.NewMemoryCredentialStore()
	}
	c.logger = glog.Ensure(c.logger)
	return c
}

func (c *Coordinator) AccessToken() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.AccessToken, c.generation
}

func (c *Coordinator) Current() (core.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Empty() {
		return core.Credential{}, false
	}
	return c.current, true
}

// AttachAuth sets the bearer header on req when a credential is present.
func (c *Coordinator) AttachAuth(req *http.Request) {
	if req == nil {
		return
	}
	token, _ := c.AccessToken()
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func (c *Coordinator) Login(ctx context.Context, input core.LoginInput) (core.Credential, error) {
	if c.api == nil {
		return core.Credential{}, fmt.Errorf("auth: api is required")
	}
	c.purgeCache()
	credential, err := c.api.Login(ctx, input)
	if err != nil {
		return core.Credential{}, err
	}
	if err := c.install(ctx, credential); err != nil {
		return core.Credential{}, err
	}
	c.logger.Info("user signed in", "user_id", credential.UserID)
	return credential, nil
}

func (c *Coordinator) Register(ctx context.Context, input core.RegisterInput) (core.Credential, error) {
	if c.api == nil {
		return core.Credential{}, fmt.Errorf("auth: api is required")
	}
	c.purgeCache()
	credential, err := c.api.Register(ctx, input)
	if err != nil {
		return core.Credential{}, err
	}
	if err := c.install(ctx, credential); err != nil {
		return core.Credential{}, err
	}
	c.logger.Info("user registered", "user_id", credential.UserID)
	return credential, nil
}

// Restore reloads a persisted credential, typically after a restart.
func (c *Coordinator) Restore(ctx context.Context, userID string) (core.Credential, error) {
	credential, err := c.store.Load(ctx, userID)
	if err != nil {
		return core.Credential{}, core.AuthError("no stored credential for user", core.ErrorAuth, map[string]any{
			"user_id": userID,
			"cause":   err.Error(),
		})
	}
	c.purgeCache()
	if err := c.install(ctx, credential); err != nil {
		return core.Credential{}, err
	}
	return credential, nil
}

func (c *Coordinator) install(ctx context.Context, credential core.Credential) error {
	if err := credential.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(ctx, credential); err != nil {
		return fmt.Errorf("auth: persist credential: %w", err)
	}
	c.current = credential
	c.generation++
	return nil
}

func (c *Coordinator) Logout(ctx context.Context, reason string) error {
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()
	return c.logout(ctx, generation, reason)
}

// ForceLogout ends the current session. Used when the server keeps rejecting
// a freshly refreshed credential.
func (c *Coordinator) ForceLogout(ctx context.Context, reason string) {
	if err := c.Logout(ctx, reason); err != nil {
		c.logger.Warn("forced logout incomplete", "reason", reason, "error", err)
	}
}

func (c *Coordinator) OnLogout(listener core.LogoutListener) func() {
	if listener == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = listener
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Refresh rotates the current credential.
func (c *Coordinator) Refresh(ctx context.Context) error {
	token, generation := c.AccessToken()
	return c.RefreshStale(ctx, generation, token)
}

// RefreshStale rotates the credential the caller used (staleToken) unless a
// concurrent refresh already replaced it. Callers from an older session get a
// session changed error and never trigger a logout.
func (c *Coordinator) RefreshStale(ctx context.Context, generation uint64, staleToken string) error {
	c.mu.RLock()
	currentGeneration := c.generation
	currentToken := c.current.AccessToken
	c.mu.RUnlock()

	if generation != currentGeneration {
		return core.SessionChangedError("auth_refresh")
	}
	if currentToken == "" {
		return core.AuthError("no credential to refresh", core.ErrorAuth, nil)
	}
	if staleToken != "" && staleToken != currentToken {
		return nil
	}

	key := strconv.FormatUint(generation, 10)
	_, err, _ := c.refreshes.Do(key, func() (any, error) {
		// the refresh outlives any single caller's cancellation
		return nil, c.refresh(context.WithoutCancel(ctx), generation)
	})
	return err
}

func (c *Coordinator) refresh(ctx context.Context, generation uint64) error {
	c.mu.RLock()
	current := c.current
	sameSession := c.generation == generation
	c.mu.RUnlock()
	if !sameSession {
		return core.SessionChangedError("auth_refresh")
	}
	if c.api == nil {
		return fmt.Errorf("auth: api is required")
	}

	startedAt := c.now()
	refreshed, err := c.api.Refresh(ctx, current)
	if err == nil && refreshed.UserID == "" {
		refreshed.UserID = current.UserID
	}
	if err == nil {
		err = refreshed.Validate()
	}
	if err != nil {
		if core.IsSessionChanged(err) {
			return err
		}
		c.logger.Warn("credential refresh failed", "user_id", current.UserID, "error", err)
		if logoutErr := c.logout(ctx, generation, LogoutReasonRefreshFailed); logoutErr != nil {
			c.logger.Error("logout after refresh failure incomplete", "error", logoutErr)
		}
		return core.AuthError("session expired, please sign in again", core.ErrorSessionExpired, map[string]any{
			"user_id": current.UserID,
			"cause":   err.Error(),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return core.SessionChangedError("auth_refresh")
	}
	// persist before any caller replays with the new token
	if err := c.store.Save(ctx, refreshed); err != nil {
		return fmt.Errorf("auth: persist refreshed credential: %w", err)
	}
	c.current = refreshed
	c.logger.Debug("credential refreshed", "user_id", refreshed.UserID, "duration_ms", c.now().Sub(startedAt).Milliseconds())
	return nil
}

// logout clears everything tied to the credential of generation. It is a no-op
// when that generation has already been replaced or holds no credential.
func (c *Coordinator) logout(ctx context.Context, generation uint64, reason string) error {
	c.mu.Lock()
	if c.generation != generation || c.current.Empty() {
		c.mu.Unlock()
		return nil
	}
	userID := c.current.UserID
	var deleteErr error
	if userID != "" {
		deleteErr = c.store.Delete(ctx, userID)
	}
	c.current = core.Credential{}
	c.generation++
	listeners := make([]core.LogoutListener, 0, len(c.listeners))
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	c.purgeCache()
	for _, listener := range listeners {
		listener(ctx, userID, reason)
	}
	if deleteErr != nil {
		return fmt.Errorf("auth: delete credential: %w", deleteErr)
	}
	return nil
}

func (c *Coordinator) purgeCache() {
	if c.cache != nil {
		c.cache.Clear("")
	}
}

var _ core.Authenticator = (*Coordinator)(nil)
