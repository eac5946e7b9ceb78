package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLocked 锁已被其他运行持有
var ErrLocked = errors.New("lock: already held")

// ReleaseFunc 释放锁
type ReleaseFunc func(ctx context.Context) error

// Locker 店铺级互斥锁，保证同一店铺同时只有一次同步在跑
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// MallKey 店铺锁的 key
func MallKey(mallID int64) string {
	return fmt.Sprintf("pdd_sync:mall:%d", mallID)
}
