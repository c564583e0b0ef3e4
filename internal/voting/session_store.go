package voting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sabha/pkg/platform/sentinel"
)

// SessionStore holds verified-voter sessions between OTP verification and
// vote submission. Find reads without claiming, so preconditions can run
// before the session is spent. Consume is single-use: the first caller gets
// the session, later callers get sentinel.ErrNotFound.
type SessionStore interface {
	Save(ctx context.Context, session VerifiedSession, ttl time.Duration) error
	Find(ctx context.Context, token string) (*VerifiedSession, error)
	Consume(ctx context.Context, token string) (*VerifiedSession, error)
}

// InMemorySessionStore is the map-backed SessionStore. It ignores the TTL;
// callers check VerifiedSession.ExpiresAt themselves.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]VerifiedSession
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]VerifiedSession)}
}

func sessionKey(token string) string {
	return "vsession:" + token
}

func (s *InMemorySessionStore) Save(_ context.Context, session VerifiedSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, token string) (*VerifiedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("verified session: %w", sentinel.ErrNotFound)
	}
	return &session, nil
}

func (s *InMemorySessionStore) Consume(_ context.Context, token string) (*VerifiedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("verified session: %w", sentinel.ErrNotFound)
	}
	delete(s.sessions, token)
	return &session, nil
}

// RedisSessionStore keeps sessions in Redis. Consume uses GETDEL so two
// concurrent submissions cannot both claim the same session.
type RedisSessionStore struct {
	client redis.Cmdable
}

func NewRedisSessionStore(client redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Save(ctx context.Context, session VerifiedSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Find(ctx context.Context, token string) (*VerifiedSession, error) {
	payload, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("verified session: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return decodeSession(payload)
}

func (s *RedisSessionStore) Consume(ctx context.Context, token string) (*VerifiedSession, error) {
	payload, err := s.client.GetDel(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("verified session: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("consume session: %w", err)
	}
	return decodeSession(payload)
}

func decodeSession(payload []byte) (*VerifiedSession, error) {
	var session VerifiedSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}
