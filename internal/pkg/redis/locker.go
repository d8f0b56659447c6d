package redis

import (
	"context"
	"time"
)

// Locker 以包级函数实现分布式锁接口
type Locker struct{}

func (Locker) TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retryTimes int) (bool, error) {
	return TryLock(ctx, key, value, expiration, retryTimes)
}

func (Locker) UnLock(ctx context.Context, key string, value interface{}) {
	UnLock(ctx, key, value)
}
