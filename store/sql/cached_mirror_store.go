package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-submissions/core"
)

const mirrorCacheKeyPrefix = "go-submissions::mirror::v1"

// CachedMirrorStore serves Load from a read-through cache and evicts the key
// on every write.
type CachedMirrorStore struct {
	base  core.MirrorStore
	cache repositorycache.CacheService
}

func NewCachedMirrorStore(base core.MirrorStore, cacheService repositorycache.CacheService) (*CachedMirrorStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base mirror store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: mirror cache service is required")
	}
	return &CachedMirrorStore{base: base, cache: cacheService}, nil
}

// MirrorCacheKey returns go-submissions::mirror::v1::<namespace>::<user_id>
// with each segment URL-path escaped.
func MirrorCacheKey(key core.MirrorKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return strings.Join([]string{
		mirrorCacheKeyPrefix,
		url.PathEscape(string(key.Namespace)),
		url.PathEscape(strings.TrimSpace(key.UserID)),
	}, "::"), nil
}

func (s *CachedMirrorStore) Load(ctx context.Context, key core.MirrorKey) ([]core.Submission, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached mirror store is not configured")
	}
	cacheKey, err := MirrorCacheKey(key)
	if err != nil {
		return nil, err
	}
	submissions, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Submission, error) {
		return s.base.Load(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return cloneSubmissions(submissions), nil
}

func (s *CachedMirrorStore) Replace(ctx context.Context, key core.MirrorKey, submissions []core.Submission) error {
	return s.write(ctx, key, func(ctx context.Context) error {
		return s.base.Replace(ctx, key, submissions)
	})
}

func (s *CachedMirrorStore) Prepend(ctx context.Context, key core.MirrorKey, submission core.Submission) error {
	return s.write(ctx, key, func(ctx context.Context) error {
		return s.base.Prepend(ctx, key, submission)
	})
}

func (s *CachedMirrorStore) Clear(ctx context.Context, key core.MirrorKey) error {
	return s.write(ctx, key, func(ctx context.Context) error {
		return s.base.Clear(ctx, key)
	})
}

func (s *CachedMirrorStore) write(ctx context.Context, key core.MirrorKey, fn func(context.Context) error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached mirror store is not configured")
	}
	cacheKey, err := MirrorCacheKey(key)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneSubmissions(in []core.Submission) []core.Submission {
	if in == nil {
		return nil
	}
	out := make([]core.Submission, len(in))
	for i, submission := range in {
		if submission.PointsAwarded != nil {
			value := *submission.PointsAwarded
			submission.PointsAwarded = &value
		}
		out[i] = submission
	}
	return out
}

var _ core.MirrorStore = (*CachedMirrorStore)(nil)
