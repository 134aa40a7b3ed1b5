package flow

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"zwop/internal/ports"
	"zwop/internal/types"

	log "github.com/sirupsen/logrus"
)

var (
	ErrMissingKey  = errors.New("not authenticated")
	ErrForbidden   = errors.New("forbidden for this client")
	ErrRateLimited = errors.New("rate limited")
	ErrEmptyUpdate = errors.New("either content (update message text) or topic (rename message topic) must be provided")
)

// Resolver looks API keys up in a ClientRepository. With a positive TTL, hits are kept in
// an in-process cache; records never change once stored, so a cached entry is never stale.
type Resolver struct {
	repo  ports.ClientRepository
	ttl   time.Duration
	cache *TTL[string, types.Client]
}

func NewResolver(repo ports.ClientRepository, ttl time.Duration) *Resolver {
	r := &Resolver{repo: repo, ttl: ttl}
	if ttl > 0 {
		r.cache = NewTTL[string, types.Client](0)
	}
	return r
}

// Resolve returns the client for key. An empty key fails with ErrMissingKey; an unknown
// key with types.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, key string) (types.Client, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if r.cache != nil {
		if c, ok := r.cache.Get(key); ok {
			return types.CloneClient(c), nil
		}
	}
	c, err := r.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(key, types.CloneClient(c), r.ttl)
		log.WithFields(log.Fields{"client": ComputeKey(key), "cached": r.cache.Len()}).Debug("client cached")
	}
	return c, nil
}

// RequireScoped narrows c to a ScopedClient.
func RequireScoped(c types.Client) (types.ScopedClient, error) {
	sc, ok := c.(types.ScopedClient)
	if !ok {
		return types.ScopedClient{}, fmt.Errorf("%w: %s client cannot act on a stream", ErrForbidden, c.Kind())
	}
	return sc, nil
}

// RequireAdmin narrows c to an AdminClient.
func RequireAdmin(c types.Client) (types.AdminClient, error) {
	ac, ok := c.(types.AdminClient)
	if !ok || !ac.Admin {
		return types.AdminClient{}, fmt.Errorf("%w: admin client required", ErrForbidden)
	}
	return ac, nil
}

// Throttle applies the per-client request budget. rpm <= 0 disables it. Limiter failures
// are logged and let the request through.
func Throttle(ctx context.Context, limiter ports.RateLimiter, c types.Client, rpm int) error {
	if limiter == nil || rpm <= 0 {
		return nil
	}
	ok, err := limiter.Acquire(ctx, "CLIENT:"+ComputeKey(c.ClientKey()), rpm, time.Minute)
	if err != nil {
		log.WithError(err).Error("failed to acquire client rate limit")
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// AppendAttachment links an uploaded file at the end of a message.
func AppendAttachment(content, uri string) string {
	return content + "\n[](" + uri + ")"
}

// CheckUpdate rejects an edit that changes neither content nor topic.
func CheckUpdate(content, topic string) error {
	if strings.TrimSpace(content) == "" && strings.TrimSpace(topic) == "" {
		return ErrEmptyUpdate
	}
	return nil
}

// ComputeKey generates a quick 64-bit hash of the given string with fixed length. Used so
// raw API keys never end up in limiter keys or logs; limiter scopes of distinct keys must
// not collide.
func ComputeKey(s string) string {
	h := fnv.New64a()
	// hash.Hash.Write never returns an error according to the interface contract
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("e%016x", h.Sum64())
}
