package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"reverie/internal/config"
	"reverie/internal/models"
	"reverie/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Operation classes recognized by the admission controller.
const (
	ClassGeneral  = "general"
	ClassStory    = "story-generation"
	ClassImages   = "image-generation"
	ClassAnalysis = "dream-analysis"
	ClassSpeech   = "speech-synthesis"
)

// AdmissionStore counts admissions per (class, caller) window. Implementations
// must be safe under concurrent increments and must not require active
// cleanup on the hot path.
type AdmissionStore interface {
	// Admit records one admission attempt against the key and reports
	// whether it is allowed, with a retry hint in seconds when it is not.
	Admit(ctx context.Context, class, id string, limit int, window time.Duration) (allowed bool, retryAfter int, err error)
}

// RedisAdmissionStore implements a fixed-window counter on Redis INCR+EXPIRE.
// Window expiry is handled by Redis key TTL; no cleanup pass is needed.
type RedisAdmissionStore struct {
	client *redis.Client
}

// NewRedisAdmissionStore returns an admission store backed by client.
func NewRedisAdmissionStore(client *redis.Client) *RedisAdmissionStore {
	return &RedisAdmissionStore{client: client}
}

// Admit increments the window counter for the key, starting the window on
// first admission.
func (s *RedisAdmissionStore) Admit(ctx context.Context, class, id string, limit int, window time.Duration) (bool, int, error) {
	key := fmt.Sprintf("rl:%s:%s", class, id)

	cnt, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if cnt == 1 {
		s.client.Expire(ctx, key, window)
	}
	if cnt > int64(limit) {
		retryAfter := int(math.Ceil(window.Seconds()))
		if ttl, ttlErr := s.client.TTL(ctx, key).Result(); ttlErr == nil && ttl > 0 {
			retryAfter = int(math.Ceil(ttl.Seconds()))
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}

// MemoryAdmissionStore is the in-process fallback used when Redis is not
// configured. Entries expire lazily on next access; sync.Map keeps unrelated
// keys from serializing on a single lock.
type MemoryAdmissionStore struct {
	entries sync.Map // key -> *windowEntry
}

type windowEntry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// NewMemoryAdmissionStore returns an empty in-memory admission store.
func NewMemoryAdmissionStore() *MemoryAdmissionStore {
	return &MemoryAdmissionStore{}
}

// Admit increments the caller's window counter, resetting expired windows in
// place.
func (s *MemoryAdmissionStore) Admit(_ context.Context, class, id string, limit int, window time.Duration) (bool, int, error) {
	key := class + ":" + id
	v, _ := s.entries.LoadOrStore(key, &windowEntry{})
	entry := v.(*windowEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	if entry.resetAt.IsZero() || now.After(entry.resetAt) {
		entry.count = 0
		entry.resetAt = now.Add(window)
	}
	entry.count++
	if entry.count > limit {
		return false, int(math.Ceil(entry.resetAt.Sub(now).Seconds())), nil
	}
	return true, 0, nil
}

// callerKey identifies the caller: the authenticated user when available,
// otherwise the source address.
func callerKey(c *fiber.Ctx) string {
	if uid := CurrentUserID(c); uid != 0 {
		return fmt.Sprintf("user:%d", uid)
	}
	return "ip:" + c.IP()
}

// RateLimit returns a Fiber middleware gating the route behind the given
// operation class. Rejections surface 429 with a retryAfter hint. Store
// errors fail open so an unavailable counter store does not take down the
// API.
func RateLimit(store AdmissionStore, class string, rl config.RateLimitClass) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, retryAfter, err := store.Admit(c.Context(), class, callerKey(c), rl.Max, rl.Window)
		if err != nil {
			return c.Next()
		}
		if !allowed {
			observability.RateLimitRejections.WithLabelValues(class).Inc()
			if retryAfter <= 0 {
				retryAfter = int(math.Ceil(rl.Window.Seconds()))
			}
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError(retryAfter))
		}
		return c.Next()
	}
}
