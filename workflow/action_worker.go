package workflow

import (
	"context"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/pkg/errors"
)

// ActionWorker 业务自定义动作,需要外部实现
type ActionWorker interface {
	/**
	 * @description:  动作执行, 在迁移的事务内调用
	 * @return error 返回错误时整个迁移回滚
	 * @param ctx context.Context 上下文, 带有事务
	 * @param item *WorkflowItem 工作流实例, 修改 item.Data 会在迁移结束时保存
	 * @param parameters []any 配置的参数, 属性路径已经求值
	 */
	Run(ctx context.Context, item *WorkflowItem, parameters []any) error
}

type RunFunc func(ctx context.Context, item *WorkflowItem, parameters []any) error

// NormalActionWorker 函数形式的动作
type NormalActionWorker struct {
	runHandler RunFunc
}

func NewNormalActionWorker(funcRun RunFunc) *NormalActionWorker {
	return &NormalActionWorker{runHandler: funcRun}
}

func (w *NormalActionWorker) Run(ctx context.Context, item *WorkflowItem, parameters []any) error {
	if w.runHandler == nil {
		return errors.New("Not implemented")
	}
	return w.runHandler(ctx, item, parameters)
}

// RegisterActionWorker 注册之后配置中可以用 @name 调用
func RegisterActionWorker(factory *configexpression.Factory, name string, worker ActionWorker) error {
	if worker == nil {
		return errors.WithMessagef(ErrConfiguration, "action worker %s is nil", name)
	}
	callback := func(ctx context.Context, data any, parameters []any) (any, error) {
		item, ok := data.(*WorkflowItem)
		if !ok {
			return nil, errors.Errorf("action %s must run against a workflow item, got %T", name, data)
		}
		if err := worker.Run(ctx, item, parameters); err != nil {
			return nil, errors.WithMessagef(err, "action %s failed", name)
		}
		return nil, nil
	}
	return factory.Register(configexpression.NewCallbackConstructor(name, callback), name)
}
