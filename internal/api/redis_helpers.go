package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// uploadRateLimiter 按用户限制每个时间窗口内的上传次数；limit<=0 或未配置 redis 时不限制。
type uploadRateLimiter struct {
	client redisRateCounter
	limit  int64
	window time.Duration
	now    func() time.Time
}

func newUploadRateLimiter(client redisRateCounter, limit int, window time.Duration) *uploadRateLimiter {
	return &uploadRateLimiter{client: client, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one upload and reports whether it is within the limit.
// Redis failures let the upload through.
func (l *uploadRateLimiter) Allow(ctx context.Context, userID uint) bool {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true
	}
	bucket := l.now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("upload_rate:%d:%d", userID, bucket)
	count, err := incrWithTTL(ctx, l.client, key, l.window)
	if err != nil {
		return true
	}
	return count <= l.limit
}
