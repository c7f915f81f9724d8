// Package cache fronts the one expensive external call in the system,
// the upstream statistical data API, with a content-addressed query
// result cache stored alongside the reference data.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/census-resolver/internal/store"
)

// DefaultTTL is used when a caller supplies no TTL of its own.
const DefaultTTL = 24 * time.Hour

// writeTimeout bounds the detached cache write so a wedged backend
// cannot leak goroutines forever.
const writeTimeout = 10 * time.Second

// Geography is the normalized geography scope of a data request. It is
// serialized structurally, never as free text, so formatting quirks
// cannot cause cache misses.
type Geography struct {
	For string   `json:"for"`
	In  []string `json:"in,omitempty"`
}

// Request identifies one upstream data fetch. Fingerprinting is
// order-sensitive on Variables; callers wanting equivalent requests to
// share an entry must normalize variable order before building the
// request.
type Request struct {
	Dataset   string    `json:"dataset"`
	Group     string    `json:"group,omitempty"`
	Year      int       `json:"year"`
	Variables []string  `json:"variables"`
	Geography Geography `json:"geography"`
}

// Fingerprint derives the deterministic cache key for a request.
func (r Request) Fingerprint() string {
	// Struct field order is fixed, so the JSON form is canonical.
	payload, _ := json.Marshal(r)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Cache is the query-result cache. Reads are synchronous; writes are
// detached from the caller that just served a fresh fetch, so a write
// failure never fails the in-flight response. Failures are logged.
type Cache struct {
	store store.Store
	wg    sync.WaitGroup
}

// New creates a cache over a store backend
func New(st store.Store) *Cache {
	return &Cache{store: st}
}

// Get returns the cached rows for a request, or ok=false when no live
// entry exists. An expired entry is indistinguishable from one that was
// never written.
func (c *Cache) Get(ctx context.Context, req Request) ([][]string, bool, error) {
	result, ok, err := c.store.CacheGet(ctx, req.Fingerprint())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return result.Rows, true, nil
}

// Put stores rows for a request in the background. A non-positive TTL
// falls back to DefaultTTL.
func (c *Cache) Put(req Request, rows [][]string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	fingerprint := req.Fingerprint()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := c.store.CachePut(ctx, fingerprint, rows, ttl); err != nil {
			log.Printf("cache write failed for %s/%d: %v", req.Dataset, req.Year, err)
		}
	}()
}

// Flush blocks until every detached write has finished. Shutdown and
// tests use it; request paths never do.
func (c *Cache) Flush() {
	c.wg.Wait()
}

// Sweep removes expired entries and reports how many were deleted.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	return c.store.CacheSweep(ctx)
}
