package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore recognizes repeated event IDs inside a TTL window using an
// atomic SETNX.
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupStore creates a dedup store with the given window.
func NewDedupStore(client *redis.Client, ttl time.Duration) *DedupStore {
	return &DedupStore{client: client, ttl: ttl}
}

func (s *DedupStore) key(eventID string) string {
	return fmt.Sprintf("dedup:%s", eventID)
}

// CheckAndMark atomically marks an event ID as seen. It returns true when
// the ID was already present (duplicate).
func (s *DedupStore) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.key(eventID), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return !set, nil
}

// Release removes the dedup mark so a redelivered message is not mistaken
// for a duplicate after a transient failure between dedup and publish.
func (s *DedupStore) Release(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, s.key(eventID)).Err()
}
