package relay

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"editmesh/internal/proto"
)

const (
	DefaultSeenCap = 4096
	DefaultSeenTTL = 10 * time.Minute
)

// SeenSet tracks reference ids already broadcast. It is deliberately
// bounded: capacity and TTL are tunables, so a long-lived relay never
// grows without limit. Keys are hashed to fixed size before caching.
type SeenSet struct {
	cache *expirable.LRU[[32]byte, struct{}]
}

func NewSeenSet(capacity int, ttl time.Duration) *SeenSet {
	if capacity <= 0 {
		capacity = DefaultSeenCap
	}
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &SeenSet{cache: expirable.NewLRU[[32]byte, struct{}](capacity, nil, ttl)}
}

func (s *SeenSet) Seen(refID string) bool {
	return s.cache.Contains(proto.EditKey(refID))
}

// Mark records refID and reports whether it was new.
func (s *SeenSet) Mark(refID string) bool {
	key := proto.EditKey(refID)
	if s.cache.Contains(key) {
		return false
	}
	s.cache.Add(key, struct{}{})
	return true
}

func (s *SeenSet) Len() int {
	return s.cache.Len()
}
