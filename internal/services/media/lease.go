package media

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/asad/mediabridge/internal/metrics"
)

// Lease is a cached object-store credential with the endpoints bound to it.
// A Lease is never modified after it is published; refreshes swap in a new one.
type Lease struct {
	Token       string
	APIURL      string
	DownloadURL string
	AccountID   string
	ExpiresAt   time.Time
}

// Authorizer performs the backend authorization handshake. ExpiresAt of the
// returned lease is ignored; the cache assigns its own.
type Authorizer func(ctx context.Context) (*Lease, error)

// LeaseCache holds the single process-wide lease. Reads are lock-free.
// Concurrent callers that find the lease expired may each authorize; the
// last one to finish wins, which is harmless because authorization is
// idempotent.
type LeaseCache struct {
	current   atomic.Pointer[Lease]
	authorize Authorizer
	ttl       time.Duration
	now       func() time.Time
}

// NewLeaseCache creates a cache that keeps each lease for ttl.
func NewLeaseCache(authorize Authorizer, ttl time.Duration) *LeaseCache {
	return &LeaseCache{
		authorize: authorize,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Get returns the cached lease, authorizing first if it is absent or expired.
// A failed authorization leaves the cache empty.
func (c *LeaseCache) Get(ctx context.Context) (*Lease, error) {
	if l := c.current.Load(); l != nil && c.now().Before(l.ExpiresAt) {
		return l, nil
	}

	fresh, err := c.authorize(ctx)
	if err != nil {
		c.current.Store(nil)
		metrics.RecordLeaseAcquisition("error")
		return nil, err
	}

	lease := *fresh
	lease.ExpiresAt = c.now().Add(c.ttl)
	c.current.Store(&lease)
	metrics.RecordLeaseAcquisition("ok")
	return &lease, nil
}

// Invalidate drops the lease if it is still the cached one. A lease that has
// already been replaced is left alone.
func (c *LeaseCache) Invalidate(stale *Lease) {
	c.current.CompareAndSwap(stale, nil)
}

// Current returns the cached lease without refreshing it.
func (c *LeaseCache) Current() *Lease {
	return c.current.Load()
}
