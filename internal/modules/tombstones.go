package modules

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTombstoneTTL is how long a deleted document ID is remembered.
const DefaultTombstoneTTL = time.Hour

// Tombstones remembers recently deleted document IDs. Modules that derive
// rows from one event type and clear them on document_deleted receive the
// two on separate subscriptions, so a late or concurrent derive must check
// here before and after it writes.
type Tombstones struct {
	ids *cache.Cache
}

// NewTombstones creates a tombstone set. A non-positive ttl uses
// DefaultTombstoneTTL.
func NewTombstones(ttl time.Duration) *Tombstones {
	if ttl <= 0 {
		ttl = DefaultTombstoneTTL
	}
	return &Tombstones{ids: cache.New(ttl, ttl)}
}

// Mark records docID as deleted.
func (t *Tombstones) Mark(docID string) {
	t.ids.SetDefault(docID, struct{}{})
}

// Deleted reports whether docID was marked within the ttl.
func (t *Tombstones) Deleted(docID string) bool {
	_, ok := t.ids.Get(docID)
	return ok
}
