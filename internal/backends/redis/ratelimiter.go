package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	windowKeyNameTemplate = "_fg_rwin_%s_%d"
)

// RateLimiter implements ports.RateLimiter with a fixed-window counter per scope.
type RateLimiter struct {
	cli *redis.Client
	now func() time.Time
}

func NewRateLimiter(cli *redis.Client) *RateLimiter {
	return &RateLimiter{cli: cli, now: time.Now}
}

func (s *RateLimiter) Acquire(ctx context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error) {
	if ratePerWindow <= 0 {
		return false, nil
	}
	if window < time.Second {
		window = time.Second
	}
	bucket := s.now().Unix() / int64(window/time.Second)
	key := getWindowKeyName(scope, bucket)

	// INCR and EXPIRE in one round trip. Rejected acquires are counted too.
	pipe := s.cli.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(ratePerWindow), nil
}

func getWindowKeyName(scope string, bucket int64) string {
	return fmt.Sprintf(windowKeyNameTemplate, scope, bucket)
}
