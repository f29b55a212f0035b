package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/logger"
	"github.com/courtside/mailer/internal/render"
)

var log = logger.Named("cache")

const (
	keyPrefix = "mailer:template:"
	// absent marks a key the store has no active template for.
	absent = "-"

	DefaultTTL  = 5 * time.Minute
	NegativeTTL = 30 * time.Second
)

// TemplateCache is a read-through Redis cache in front of a template store.
// Redis errors never fail a lookup; the backing store answers instead.
type TemplateCache struct {
	client *redis.Client
	next   render.TemplateStore
	ttl    time.Duration
}

// NewTemplateCache wraps next with a cache. A nil client disables caching.
func NewTemplateCache(client *redis.Client, next render.TemplateStore, ttl time.Duration) *TemplateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TemplateCache{client: client, next: next, ttl: ttl}
}

// FetchActiveTemplate implements render.TemplateStore.
func (c *TemplateCache) FetchActiveTemplate(ctx context.Context, key string) (*domain.Template, error) {
	if c.client == nil {
		return c.next.FetchActiveTemplate(ctx, key)
	}

	cacheKey := keyPrefix + key
	raw, err := c.client.Get(ctx, cacheKey).Result()
	switch {
	case err == nil:
		if raw == absent {
			return nil, nil
		}
		var t domain.Template
		if err := json.Unmarshal([]byte(raw), &t); err == nil {
			return &t, nil
		}
		log.Warn("discarding undecodable cached template", "template_key", key, "err", err)
	case !errors.Is(err, redis.Nil):
		log.Warn("template cache read failed", "template_key", key, "err", err)
	}

	t, err := c.next.FetchActiveTemplate(ctx, key)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cacheKey, t)
	return t, nil
}

func (c *TemplateCache) store(ctx context.Context, cacheKey string, t *domain.Template) {
	value, ttl := absent, NegativeTTL
	if t != nil {
		data, err := json.Marshal(t)
		if err != nil {
			log.Warn("template not cacheable", "template_key", t.Key, "err", err)
			return
		}
		value, ttl = string(data), c.ttl
	}
	if err := c.client.Set(ctx, cacheKey, value, ttl).Err(); err != nil {
		log.Warn("template cache write failed", "key", cacheKey, "err", err)
	}
}

// Invalidate drops the cached entry for key.
func (c *TemplateCache) Invalidate(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyPrefix+key).Err()
}
