package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/nsstore/internal/cachemanager"
	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
)

// ===========================================================================
// Deduplication Middleware
// ===========================================================================

// DefaultDedupTTL is the default window in which a repeated action is dropped.
const DefaultDedupTTL = 5 * time.Second

// ErrDuplicateAction is returned when an identical action reaches the same
// namespace again within the dedup window.
var ErrDuplicateAction = errors.New("pipeline: duplicate action")

// ContentHasher is implemented by payloads that opt into deduplication.
// The hash must leave out anything that differs between logically equal
// actions, such as timestamps or request ids.
type ContentHasher interface {
	ContentHash() string
}

// DedupConfig configures the deduplication stage.
type DedupConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration // If 0, uses TTL*2
	// Cache stores the seen hashes. If nil an in-memory cache is created.
	Cache cachemanager.CacheManager[string, time.Time]
}

// Dedup drops repeated actions. Only payloads implementing ContentHasher are
// considered; everything else passes straight through.
type Dedup struct {
	seen cachemanager.CacheManager[string, time.Time]
	ttl  time.Duration
}

// NewDedup creates a Dedup stage backed by an in-memory cache.
func NewDedup(cfg DedupConfig) *Dedup {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultDedupTTL
	}
	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = ttl * 2
	}
	seen := cfg.Cache
	if seen == nil {
		seen = cachemanager.NewInMemoryCacheManager[string, time.Time]("dedup", ttl, cleanup)
	}
	return &Dedup{seen: seen, ttl: ttl}
}

// Len returns the number of hashes currently remembered.
func (d *Dedup) Len() int {
	return d.seen.Len()
}

// Stats reports how many actions passed and how many were rejected.
func (d *Dedup) Stats() cachemanager.Stats {
	return d.seen.Stats()
}

// Reset forgets every remembered hash.
func (d *Dedup) Reset(ctx context.Context) error {
	return d.seen.Flush(ctx)
}

// Middleware returns the stage.
func (d *Dedup) Middleware() Middleware {
	return func(api API) func(Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, action Action) (Action, error) {
				hasher, ok := namespace.Payload(action).(ContentHasher)
				if !ok {
					return next(ctx, action)
				}

				key := targetOf(api, action)
				hash := contentHash(key, action.Type(), hasher)
				if !d.seen.Add(ctx, hash, time.Now(), d.ttl) {
					log.Warn(log.CatPipeline, "duplicate action rejected",
						"namespace", key,
						"action_type", action.Type(),
						"content_hash", hash[:16],
					)
					return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateAction, action.Type(), key)
				}
				return next(ctx, action)
			}
		}
	}
}

// contentHash scopes the payload hash to one namespace so the same action on
// two namespaces is never considered a duplicate.
func contentHash(key namespace.Key, actionType namespace.ActionType, hasher ContentHasher) string {
	h := sha256.New()
	h.Write([]byte(key.String()))
	h.Write([]byte{0})
	h.Write([]byte(actionType))
	h.Write([]byte{0})
	h.Write([]byte(hasher.ContentHash()))
	return hex.EncodeToString(h.Sum(nil))
}
