package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoSession is returned when no valid session is stored.
	ErrNoSession = errors.New("no session")
	// ErrStorageUnavailable indicates the storage backend failed.
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrNoClientID is returned by RedisStorage when ctx carries no client id.
	ErrNoClientID = errors.New("session client id missing from context")
)

// Storage is the client-side session slot. It holds at most one encoded
// session; Save overwrites it wholesale.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type clientIDKey struct{}

// WithClientID scopes ctx to one client's session slot.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientIDFromContext returns the client id set by WithClientID.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDKey{}).(string)
	return id, ok && id != ""
}

// MemoryStorage is a single in-process slot, the equivalent of browser
// storage for one client.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStorage returns an empty slot.
func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNoSession
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, data []byte, _ time.Duration) error {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

const defaultRedisPrefix = "ccs:"

// RedisStorage keeps one slot per client id, read from the context.
type RedisStorage struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStorage returns a RedisStorage. An empty prefix selects "ccs:".
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStorage{redis: client, prefix: prefix}
}

func (s *RedisStorage) key(ctx context.Context) (string, error) {
	id, ok := ClientIDFromContext(ctx)
	if !ok {
		return "", ErrNoClientID
	}
	return s.prefix + id, nil
}

func (s *RedisStorage) Load(ctx context.Context) ([]byte, error) {
	key, err := s.key(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return data, nil
}

func (s *RedisStorage) Save(ctx context.Context, data []byte, ttl time.Duration) error {
	key, err := s.key(ctx)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	key, err := s.key(ctx)
	if errors.Is(err, ErrNoClientID) {
		return nil
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
