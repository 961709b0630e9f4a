package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL 상수 정의
const (
	TTLUser    = 5 * time.Minute // 사용자 표시 정보
	TTLDefault = 5 * time.Minute
)

// 캐시 키 접두사
const (
	PrefixUser = "user:"
)

// ErrMiss is returned when the key is absent or the cache is disabled
var ErrMiss = errors.New("cache miss")

// Service Redis 캐시 서비스 인터페이스
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// 사용자 캐시 (multi-get으로 한 번에 조회)
	GetUsers(ctx context.Context, userIDs []string, dest func(id string, raw []byte)) (missing []string, err error)
	SetUser(ctx context.Context, userID string, data interface{}) error
	InvalidateUser(ctx context.Context, userID string) error

	IsAvailable() bool
}

// redisCache Redis 기반 캐시 구현
type redisCache struct {
	client *redis.Client
}

// NewService 새로운 캐시 서비스 생성; client가 nil이면 모든 조회는 miss
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

// IsAvailable Redis 연결 가능 여부
func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

// Get 캐시에서 값 조회
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Set 캐시에 값 저장
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // Redis 없으면 무시
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete 캐시 삭제
func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// GetUsers reads cached user entries with one MGET. Ids without an entry are returned as missing.
func (c *redisCache) GetUsers(ctx context.Context, userIDs []string, dest func(id string, raw []byte)) ([]string, error) {
	if c.client == nil || len(userIDs) == 0 {
		return userIDs, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return userIDs, err
	}

	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, userIDs[i])
			continue
		}
		dest(userIDs[i], []byte(s))
	}
	return missing, nil
}

// SetUser 사용자 캐시 저장
func (c *redisCache) SetUser(ctx context.Context, userID string, data interface{}) error {
	return c.Set(ctx, userKey(userID), data, TTLUser)
}

// InvalidateUser 사용자 캐시 무효화
func (c *redisCache) InvalidateUser(ctx context.Context, userID string) error {
	return c.Delete(ctx, userKey(userID))
}

func userKey(userID string) string {
	return fmt.Sprintf("%s%s", PrefixUser, userID)
}
