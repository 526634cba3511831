package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NewLocalWorkflowLock 单进程使用的锁, 测试和 sqlite 场景
func NewLocalWorkflowLock() WorkflowLock {
	return &localWorkflowLock{
		entries: make(map[string]*localLockEntry),
	}
}

type localWorkflowLock struct {
	mu      sync.Mutex
	entries map[string]*localLockEntry // key -> 当前持有者
}

type localLockEntry struct {
	value string      // 锁的值，用于验证是否是同一个持有者
	timer *time.Timer // 超时定时器
}

func (l *localWorkflowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	if holdingLock(ctx, key) {
		// 已经持有锁，可重入，直接执行
		return f(ctx)
	}

	value := uuid.NewString()
	if !l.acquire(key, value, maxLockTimeDuration) {
		return errors.WithMessagef(LockFailedError, "[localWorkflowLock.NonBlockingSynchronized] key %s has been locked", key)
	}
	defer func() {
		if !l.release(key, value) {
			slog.Warn("[localWorkflowLock.NonBlockingSynchronized] lock expired before release", "key", key, "ttl", maxLockTimeDuration)
		}
	}()
	return f(context.WithValue(ctx, lockKey(key), value))
}

// acquire 检查和占用在同一把互斥锁下完成
func (l *localWorkflowLock) acquire(key string, value string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return false
	}
	l.entries[key] = &localLockEntry{
		value: value,
		timer: time.AfterFunc(ttl, func() {
			l.release(key, value)
		}),
	}
	return true
}

// release 只删除 value 对应的持有者, 已经超时被别人拿到的锁不受影响
func (l *localWorkflowLock) release(key string, value string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok || entry.value != value {
		return false
	}
	entry.timer.Stop()
	delete(l.entries, key)
	return true
}
