package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	LockFailedError = errors.New("lock failed")
)

// DefaultLockTTL 单次迁移持有锁的最长时间
const DefaultLockTTL = 30 * time.Second

type lockKey string

type WorkflowLock interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁，立刻返回错误
	//                 2.可以重入锁, ctx 中记录了已经持有的 key
	//  @param ctx 原来的ctx
	//  @param key 锁的key, 一般是工作流实例维度
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}

// holdingLock ctx 中已经持有 key 对应的锁
func holdingLock(ctx context.Context, key string) bool {
	_, ok := ctx.Value(lockKey(key)).(string)
	return ok
}

func itemLockKey(item *WorkflowItem) string {
	if item.IsNew() {
		// 还没有 id, 用工作流和实体保证同一个实体不会被并发启动
		return fmt.Sprintf("workflow_start_%s_%s_%s", item.WorkflowName, item.EntityClass, item.EntityID)
	}
	return fmt.Sprintf("workflow_item_%d", item.ID)
}
