package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	delCommand = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`
)

// NewRedisWorkflowLock 多实例部署时使用, keyPrefix 为空时使用默认前缀
func NewRedisWorkflowLock(redisClient redis.Cmdable, keyPrefix string) WorkflowLock {
	if keyPrefix == "" {
		keyPrefix = "simple_fsm_workflow:"
	}
	return &redisWorkflowLock{redisClient: redisClient, keyPrefix: keyPrefix}
}

type redisWorkflowLock struct {
	redisClient redis.Cmdable
	keyPrefix   string
}

func (d *redisWorkflowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(ctx2 context.Context) error) error {
	if holdingLock(ctx, key) {
		// 之前成功上锁了,继续执行即可
		return f(ctx)
	}
	value := uuid.NewString()
	isLock, err := d.redisClient.SetNX(ctx, d.keyPrefix+key, value, maxLockTimeDuration).Result()
	if err != nil {
		return errors.WithMessagef(LockFailedError, "[redisWorkflowLock.NonBlockingSynchronized] key %s, err:%v", key, err)
	}
	if !isLock {
		return errors.WithMessagef(LockFailedError, "[redisWorkflowLock.NonBlockingSynchronized] key %s has been locked", key)
	}
	defer d.releaseKey(key, value)
	return f(context.WithValue(ctx, lockKey(key), value))
}

func (d *redisWorkflowLock) releaseKey(key string, value string) {
	// 释放锁, 因为context 可能会被cancel，确保释放锁需要新开一个context,不能用原来的
	reply, err := d.redisClient.Eval(context.Background(), delCommand, []string{d.keyPrefix + key}, value).Int64()
	if err != nil {
		slog.Error("[redisWorkflowLock.releaseKey] release key failed", "key", key, "error", err)
		return
	}
	if reply != 1 {
		// 锁已经过期被别人拿走
		slog.Warn("[redisWorkflowLock.releaseKey] lock not released", "key", key, "reply", reply)
	}
}
