package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"community-server/conf"

	"github.com/emirpasic/gods/sets/hashset"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrSessionNotFound = errors.New("session not found")

// Session is what a signed-in caller carries between requests, keyed by the
// token's jwt id.
type Session struct {
	Id          string    `json:"id"`
	Uid         int64     `json:"uid"`
	Name        string    `json:"name"`
	Roles       []string  `json:"roles"`
	Authorities []string  `json:"authorities"`
	ExpireAt    time.Time `json:"expire_at"`
}

type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, uid int64) error
	// Sweep drops expired sessions; stores with native expiry may no-op.
	Sweep(ctx context.Context, now time.Time)
	Close() error
}

func NewSessionStore(cfg *conf.AuthConfig, redisCfg *conf.RedisConfig) (SessionStore, error) {
	switch cfg.Session {
	case "", "memory":
		return NewMemorySessionStore(), nil
	case "redis":
		if redisCfg == nil || redisCfg.Addr == "" {
			return nil, errors.New("redis session store needs redis.addr")
		}
		return NewRedisSessionStore(redisCfg)
	}
	return nil, fmt.Errorf("unsupported session store %q", cfg.Session)
}

type MemorySessionStore struct {
	lock     sync.RWMutex
	sessions map[string]*Session
	byUser   map[int64]*hashset.Set
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[string]*Session{},
		byUser:   map[int64]*hashset.Set{},
	}
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.sessions[s.Id] = s
	ids, ok := m.byUser[s.Uid]
	if !ok {
		ids = hashset.New()
		m.byUser[s.Uid] = ids
	}
	ids.Add(s.Id)
	return nil
}

func (m *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpireAt) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.remove(id)
	return nil
}

func (m *MemorySessionStore) DeleteByUser(_ context.Context, uid int64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if ids, ok := m.byUser[uid]; ok {
		for _, id := range ids.Values() {
			delete(m.sessions, id.(string))
		}
		delete(m.byUser, uid)
	}
	return nil
}

func (m *MemorySessionStore) Sweep(_ context.Context, now time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for id, s := range m.sessions {
		if now.After(s.ExpireAt) {
			m.remove(id)
		}
	}
}

func (m *MemorySessionStore) Close() error {
	return nil
}

// remove expects the write lock to be held.
func (m *MemorySessionStore) remove(id string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if ids, ok := m.byUser[s.Uid]; ok {
		ids.Remove(id)
		if ids.Empty() {
			delete(m.byUser, s.Uid)
		}
	}
}

const (
	sessionKeyPrefix     = "community:session:"
	userSessionKeyPrefix = "community:user-sessions:"
)

// RedisSessionStore shares sessions between server instances.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(cfg *conf.RedisConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisSessionStoreWithClient(client), nil
}

func NewRedisSessionStoreWithClient(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func userSessionsKey(uid int64) string {
	return userSessionKeyPrefix + strconv.FormatInt(uid, 10)
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	ttl := time.Until(s.ExpireAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+s.Id, data, ttl)
		pipe.SAdd(ctx, userSessionsKey(s.Uid), s.Id)
		pipe.Expire(ctx, userSessionsKey(s.Uid), ttl)
		return nil
	})
	return err
}

func (r *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s := &Session{}
	if err = json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	s, err := r.Load(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeyPrefix+id)
		pipe.SRem(ctx, userSessionsKey(s.Uid), id)
		return nil
	})
	return err
}

func (r *RedisSessionStore) DeleteByUser(ctx context.Context, uid int64) error {
	ids, err := r.client.SMembers(ctx, userSessionsKey(uid)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, userSessionsKey(uid))
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisSessionStore) Sweep(context.Context, time.Time) {}

func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}
