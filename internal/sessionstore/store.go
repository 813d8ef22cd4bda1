// Package sessionstore 把编辑会话保存在 Redis 中，API 进程之间共享，并提供会话级的互斥锁。
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pairStudio/internal/editor"
)

var (
	ErrNotFound = errors.New("editor session not found")
	ErrLocked   = errors.New("editor session is locked by another request")
)

// Session is one persisted editing session.
type Session struct {
	ID        string       `json:"id"`
	UserID    uint         `json:"userId"`
	State     editor.State `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Store 基于 redis 的会话存储。
type Store struct {
	client  redis.Cmdable
	ttl     time.Duration
	lockTTL time.Duration
}

// New returns a store whose sessions expire after ttl of inactivity.
func New(client redis.Cmdable, ttl, lockTTL time.Duration) *Store {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Store{client: client, ttl: ttl, lockTTL: lockTTL}
}

func sessionKey(id string) string { return "editor_session:" + id }
func lockKey(id string) string    { return "editor_session_lock:" + id }

// Create 创建新会话并分配 ID。
func (s *Store) Create(ctx context.Context, userID uint, st editor.State) (Session, error) {
	now := time.Now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     st,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Load returns ErrNotFound when the session expired or never existed.
func (s *Store) Load(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load editor session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode editor session: %w", err)
	}
	return sess, nil
}

// Save writes the session back and restarts its expiry.
func (s *Store) Save(ctx context.Context, sess Session) error {
	sess.UpdatedAt = time.Now().UTC()
	return s.write(ctx, sess)
}

func (s *Store) write(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode editor session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save editor session: %w", err)
	}
	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete editor session: %w", err)
	}
	return nil
}

// 仅当令牌匹配时才释放锁，避免误删他人续上的锁。
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the session lock or returns ErrLocked. The returned func releases it.
func (s *Store) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey(id), token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("lock editor session: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// 请求上下文可能已取消，释放锁使用独立的短超时。
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, s.client, []string{lockKey(id)}, token).Err()
	}, nil
}
