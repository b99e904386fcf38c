// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manifest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuGH/lessoncast/internal/cache"
	"github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "manifest:"

// Cached memoizes successful resolutions of Next for TTL and collapses
// concurrent lookups of the same reference. Failures are never cached.
type Cached struct {
	Next  Resolver
	Cache cache.Cache
	TTL   time.Duration

	group singleflight.Group
}

// NewCached wraps next.
func NewCached(next Resolver, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{Next: next, Cache: c, TTL: ttl}
}

func (c *Cached) Resolve(ctx context.Context, ref string) (Source, error) {
	key := cacheKeyPrefix + ref
	if buf, ok := c.Cache.Get(ctx, key); ok {
		var src Source
		if err := json.Unmarshal(buf, &src); err == nil && src.URL != "" {
			metrics.IncManifestCache(true)
			return src, nil
		}
		c.Cache.Delete(ctx, key)
	}
	metrics.IncManifestCache(false)

	// The shared call outlives any single caller.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(ref, func() (any, error) {
		src, err := c.Next.Resolve(shared, ref)
		if err != nil {
			return Source{}, err
		}
		if buf, err := json.Marshal(src); err == nil {
			c.Cache.Set(shared, key, buf, c.TTL)
		}
		return src, nil
	})
	if err != nil {
		log.FromContext(ctx).Debug().Err(err).Str(log.FieldLessonRef, ref).Msg("manifest resolution failed")
		return Source{}, err
	}
	return v.(Source), nil
}

// Invalidate drops the cached source for ref.
func (c *Cached) Invalidate(ctx context.Context, ref string) {
	c.Cache.Delete(ctx, cacheKeyPrefix+ref)
}
