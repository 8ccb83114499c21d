package capture

import "context"

// ContentStore is the digest-addressed, access-counted dedup layer
// sitting in front of the content_store table. It is a thin façade over
// Store so capture producers depend on a narrow store/get/cleanup
// surface rather than the full query API.
type ContentStore struct {
	store *Store
}

// NewContentStore wraps a Store as a ContentStore.
func NewContentStore(s *Store) *ContentStore {
	return &ContentStore{store: s}
}

// Store upserts payload under digest: a new digest is inserted with
// access_count=1, an existing one has its access_count bumped and
// last_accessed_at refreshed without touching the stored body.
func (c *ContentStore) Store(ctx context.Context, digest string, payload []byte, kind string, now int64) error {
	return c.store.StoreContent(ctx, digest, payload, kind, now)
}

// Get reads a payload by digest, bumping its access counter on hit.
// Returns ok=false on miss, including when the body has been reclaimed
// by Cleanup — callers must tolerate a capture whose body is gone.
func (c *ContentStore) Get(ctx context.Context, digest string, now int64) (*ContentEntry, bool, error) {
	return c.store.GetContent(ctx, digest, now)
}

// Cleanup reclaims entries untouched for longer than the TTL and
// accessed fewer than the minimum keep-count, returning the number of
// rows removed.
func (c *ContentStore) Cleanup(ctx context.Context, now int64) (int64, error) {
	return c.store.CleanupContent(ctx, now)
}
