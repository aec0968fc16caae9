// Package querycache memoizes list queries per collection and drops them
// when the collection changes.
package querycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
)

// Cache keys are "qc:<collection>|<filter>"; the part before "|" is the
// invalidation prefix.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

func New(store Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logger.With().Str("component", "querycache").Logger()}
}

func prefix(collection string) string {
	return "qc:" + collection
}

func key(collection, filter string) string {
	return prefix(collection) + "|" + filter
}

// Query returns the cached result for collection/filter or runs load and
// caches what it returns. Cache failures are logged and fall through to load.
// A nil cache always loads.
func Query[T any](ctx context.Context, c *Cache, collection, filter string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	k := key(collection, filter)

	if data, ok, err := c.store.Get(ctx, k); err != nil {
		c.logger.Warn().Err(err).Str("key", k).Msg("cache read failed")
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		c.logger.Warn().Str("key", k).Msg("discarding undecodable cache entry")
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", k).Msg("cache write failed")
		}
	}
	return v, nil
}

// Invalidate drops every cached query of collection.
func (c *Cache) Invalidate(ctx context.Context, collection string) {
	if c == nil {
		return
	}
	if err := c.store.DeletePrefix(ctx, prefix(collection)); err != nil {
		c.logger.Warn().Err(err).Str("collection", collection).Msg("cache invalidation failed")
	}
}

// Follow invalidates collections whenever the bus reports a change on them,
// which covers writes made by other instances.
func (c *Cache) Follow(bus pubsub.Bus, collections ...string) (stop func()) {
	var unsubs []func()
	for _, coll := range collections {
		unsubs = append(unsubs, bus.Subscribe(coll, func(e pubsub.Event) {
			c.Invalidate(context.Background(), e.Collection)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Notifier is handed to every write path. It invalidates the local cache
// before returning and then announces the change.
type Notifier struct {
	cache  *Cache
	bus    pubsub.Bus
	logger zerolog.Logger
}

func NewNotifier(cache *Cache, bus pubsub.Bus, logger zerolog.Logger) *Notifier {
	return &Notifier{cache: cache, bus: bus, logger: logger}
}

// Changed records a committed write. A publish failure only delays other
// watchers, so it is logged rather than returned.
func (n *Notifier) Changed(ctx context.Context, collection, id, op string) {
	if n == nil {
		return
	}
	n.cache.Invalidate(ctx, collection)
	if n.bus == nil {
		return
	}
	e := pubsub.Event{Collection: collection, ID: id, Op: op}
	if err := n.bus.Publish(ctx, e); err != nil {
		n.logger.Error().Err(err).Str("collection", collection).Str("id", id).Msg("publish change failed")
	}
}
