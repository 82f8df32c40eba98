package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps the current attempt per subject and channel. Keying by
// (subject, channel) is what makes supersession work: writing a fresh
// attempt makes the prior one unreachable.
type Store interface {
	Get(ctx context.Context, subjectID int64, channel Channel) (*Attempt, error)
	Set(ctx context.Context, attempt *Attempt, ttl time.Duration) error
	Delete(ctx context.Context, subjectID int64, channel Channel) error
}

func attemptKey(subjectID int64, channel Channel) string {
	return fmt.Sprintf("verification:%d:%s", subjectID, channel)
}

// MemoryStore keeps attempts in a process-local map.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string]Attempt
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]Attempt)}
}

// Get returns the current attempt, or nil when none exists.
func (s *MemoryStore) Get(ctx context.Context, subjectID int64, channel Channel) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptKey(subjectID, channel)]
	if !ok {
		return nil, nil
	}
	return &attempt, nil
}

// Set stores the attempt, superseding any prior one for the same key.
func (s *MemoryStore) Set(ctx context.Context, attempt *Attempt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attemptKey(attempt.SubjectID, attempt.Channel)] = *attempt
	return nil
}

// Delete removes the current attempt.
func (s *MemoryStore) Delete(ctx context.Context, subjectID int64, channel Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, attemptKey(subjectID, channel))
	return nil
}

var _ Store = (*MemoryStore)(nil)

// RedisStore shares attempts across processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the current attempt, or nil when none exists.
func (s *RedisStore) Get(ctx context.Context, subjectID int64, channel Channel) (*Attempt, error) {
	payload, err := s.client.Get(ctx, attemptKey(subjectID, channel)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var attempt Attempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Set stores the attempt with the given expiry.
func (s *RedisStore) Set(ctx context.Context, attempt *Attempt, ttl time.Duration) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, attemptKey(attempt.SubjectID, attempt.Channel), payload, ttl).Err()
}

// Delete removes the current attempt.
func (s *RedisStore) Delete(ctx context.Context, subjectID int64, channel Channel) error {
	return s.client.Del(ctx, attemptKey(subjectID, channel)).Err()
}

var _ Store = (*RedisStore)(nil)
