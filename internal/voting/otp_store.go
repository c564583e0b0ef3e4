package voting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sabha/pkg/platform/sentinel"
)

// OTPStore holds outstanding one-time codes. Save replaces any earlier code
// for the same voter and election; a re-request invalidates the old code and
// resets its failure count. Consume removes the record so a code verifies at
// most once. RecordFailure counts a wrong guess atomically and returns the
// running total, so concurrent guesses cannot undercount.
type OTPStore interface {
	Save(ctx context.Context, record OTPRecord, ttl time.Duration) error
	Find(ctx context.Context, electionID, memberID uuid.UUID) (*OTPRecord, error)
	Consume(ctx context.Context, electionID, memberID uuid.UUID) error
	RecordFailure(ctx context.Context, electionID, memberID uuid.UUID) (int, error)
}

// InMemoryOTPStore is the map-backed OTPStore for tests and single-node
// runs. It ignores the TTL; callers check OTPRecord.ExpiresAt themselves,
// the way the Redis TTL only approximates the authoritative timestamp.
type InMemoryOTPStore struct {
	mu      sync.Mutex
	records map[string]OTPRecord
}

func NewInMemoryOTPStore() *InMemoryOTPStore {
	return &InMemoryOTPStore{records: make(map[string]OTPRecord)}
}

func otpKey(electionID, memberID uuid.UUID) string {
	return fmt.Sprintf("otp:%s:%s", electionID, memberID)
}

func (s *InMemoryOTPStore) Save(_ context.Context, record OTPRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[otpKey(record.ElectionID, record.MemberID)] = record
	return nil
}

func (s *InMemoryOTPStore) Find(_ context.Context, electionID, memberID uuid.UUID) (*OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[otpKey(electionID, memberID)]
	if !ok {
		return nil, fmt.Errorf("one-time code: %w", sentinel.ErrNotFound)
	}
	return &record, nil
}

func (s *InMemoryOTPStore) RecordFailure(_ context.Context, electionID, memberID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := otpKey(electionID, memberID)
	record, ok := s.records[key]
	if !ok {
		return 0, fmt.Errorf("one-time code: %w", sentinel.ErrNotFound)
	}
	record.Attempts++
	s.records[key] = record
	return record.Attempts, nil
}

func (s *InMemoryOTPStore) Consume(_ context.Context, electionID, memberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := otpKey(electionID, memberID)
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("one-time code: %w", sentinel.ErrNotFound)
	}
	delete(s.records, key)
	return nil
}

// RedisOTPStore keeps codes in Redis with the TTL doing the expiry.
type RedisOTPStore struct {
	client redis.Cmdable
}

func NewRedisOTPStore(client redis.Cmdable) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpFailKey(electionID, memberID uuid.UUID) string {
	return otpKey(electionID, memberID) + ":fails"
}

func (s *RedisOTPStore) Save(ctx context.Context, record OTPRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	if err := s.client.Set(ctx, otpKey(record.ElectionID, record.MemberID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save otp record: %w", err)
	}
	// A fresh code starts with a clean slate of attempts.
	s.client.Del(ctx, otpFailKey(record.ElectionID, record.MemberID))
	return nil
}

func (s *RedisOTPStore) Find(ctx context.Context, electionID, memberID uuid.UUID) (*OTPRecord, error) {
	payload, err := s.client.Get(ctx, otpKey(electionID, memberID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("one-time code: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find otp record: %w", err)
	}
	var record OTPRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal otp record: %w", err)
	}
	return &record, nil
}

func (s *RedisOTPStore) RecordFailure(ctx context.Context, electionID, memberID uuid.UUID) (int, error) {
	key := otpFailKey(electionID, memberID)
	attempts, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("record otp failure: %w", err)
	}
	// The counter must not outlive the code it counts against.
	if ttl, ttlErr := s.client.PTTL(ctx, otpKey(electionID, memberID)).Result(); ttlErr == nil && ttl > 0 {
		s.client.PExpire(ctx, key, ttl)
	}
	return int(attempts), nil
}

func (s *RedisOTPStore) Consume(ctx context.Context, electionID, memberID uuid.UUID) error {
	// The code key decides single use; the counter is deleted separately so
	// leftover failures never masquerade as a live code.
	deleted, err := s.client.Del(ctx, otpKey(electionID, memberID)).Result()
	if err != nil {
		return fmt.Errorf("consume otp record: %w", err)
	}
	s.client.Del(ctx, otpFailKey(electionID, memberID))
	if deleted == 0 {
		return fmt.Errorf("one-time code: %w", sentinel.ErrNotFound)
	}
	return nil
}
