// Package cache memoizes successful resolution responses at the HTTP
// boundary. Entries live in a pluggable Store with a fixed freshness window.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTTL is the freshness window of a cached response.
const DefaultTTL = 1200 * time.Second

const (
	keyPrefix    = "bilirelay:resolve:"
	writeTimeout = 5 * time.Second
)

// Store is a keyed byte store with per-entry expiry. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
	Close() error
}

// Cache wraps handlers so successful responses are replayed from a Store.
type Cache struct {
	store Store
	ttl   time.Duration
	wg    sync.WaitGroup
}

// New creates a Cache over store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Key returns the cache key for a resolution request: the trimmed input
// text and the requested tier.
func Key(text string, tier int) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(text)))
	return keyPrefix + hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(tier)
}

// KeyFunc derives the cache key of a request; ok=false bypasses the cache.
type KeyFunc func(r *http.Request) (key string, ok bool)

// entry is the serialized form of a response.
type entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func (e *entry) writeTo(w http.ResponseWriter) {
	h := w.Header()
	for k, v := range e.Header {
		h[k] = append([]string(nil), v...)
	}
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

// Middleware replays cached responses and records fresh ones. Only 200
// responses are stored, in the background, so the caller is never delayed
// by the store.
func (c *Cache) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k, ok := key(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if e, hit := c.lookup(r.Context(), k); hit {
				logrus.WithField("key", k).Debug("cache hit")
				e.writeTo(w)
				return
			}

			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r)

			e := &entry{
				Status: rec.Code,
				Header: rec.Header().Clone(),
				Body:   rec.Body.Bytes(),
			}
			e.writeTo(w)

			if e.Status == http.StatusOK {
				c.storeAsync(k, e)
			}
		})
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (*entry, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		logrus.WithField("key", key).WithError(err).Warn("discarding corrupt cache entry")
		return nil, false
	}
	return &e, true
}

// storeAsync writes e under key without blocking the caller. Wait blocks
// until every pending write has finished.
func (c *Cache) storeAsync(key string, e *entry) {
	data, err := json.Marshal(e)
	if err != nil {
		logrus.WithError(err).Warn("encoding cache entry")
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			logrus.WithField("key", key).WithError(err).Warn("cache write failed")
		}
	}()
}

// Wait blocks until all background writes have completed.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Clear drops every cached response.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close waits for pending writes and releases the store.
func (c *Cache) Close() error {
	c.Wait()
	return c.store.Close()
}
