package lock

import (
	"context"
	"sync"
	"time"
)

// memoryItem 锁值与过期时间
type memoryItem struct {
	token      uint64
	expiration time.Time
}

// MemoryLocker 进程内锁，未配置 Redis 时使用
type MemoryLocker struct {
	mu    sync.Mutex
	items map[string]memoryItem
	seq   uint64
	now   func() time.Time
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if item, ok := l.items[key]; ok && now.Before(item.expiration) {
		return nil, ErrLocked
	}

	l.seq++
	token := l.seq
	l.items[key] = memoryItem{token: token, expiration: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// 过期后被他人重新获取的锁不能删
		if item, ok := l.items[key]; ok && item.token == token {
			delete(l.items, key)
		}
		return nil
	}, nil
}
