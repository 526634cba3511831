package workflow

import (
	"context"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
)

type WorkflowService interface {
	/**
	 * @description: 获取工作流运行时, 不存在返回 ErrWorkflowNotFound
	 * @param name string
	 * @return *Workflow, error
	 */
	GetWorkflow(name string) (*Workflow, error)
	/**
	 * @description: 实体类型上激活的工作流, 按 order 升序
	 * @param entityClass string
	 * @return []*Workflow
	 */
	GetApplicableWorkflows(entityClass string) []*Workflow
	/**
	 * @description: 激活工作流, 之后创建的实体会自动启动, 已经创建的实体不受影响
	 */
	ActivateWorkflow(ctx context.Context, name string) error
	DeactivateWorkflow(ctx context.Context, name string) error
	/**
	 * @description: 手动启动工作流, 工作流必须是激活的
	 * @param ctx context.Context
	 * @param req *StartWorkflowReq
	 *				  req.TransitionName 为空时使用默认开始迁移 __start__
	 *				  req.Data 为初始数据, 写入 WorkflowData
	 * @return *WorkflowItem, error
	 */
	StartWorkflow(ctx context.Context, req *StartWorkflowReq) (*WorkflowItem, error)
	/**
	 * @description: 执行迁移
	 *				 同一个工作流实例只会被一个goroutine迁移,如果有其他goroutine正在迁移，则返回 LockFailedError
	 *				 被拒绝的迁移不会修改实例, IsTransitionError 可以判断
	 * @param ctx context.Context
	 * @param req *TransitWorkflowItemReq
	 * @return *WorkflowItem, error 迁移之后的实例
	 */
	TransitWorkflowItem(ctx context.Context, req *TransitWorkflowItemReq) (*WorkflowItem, error)
	/**
	 * @description: 检查迁移是否可以执行, errs 不为 nil 时条件不满足只返回 false
	 */
	IsTransitionAllowed(ctx context.Context, item *WorkflowItem, transitionName string, errs *configexpression.Errors) (bool, error)
	GetWorkflowItem(ctx context.Context, workflowItemID int64) (*WorkflowItem, error)
	GetWorkflowItemsByEntity(ctx context.Context, entity Entity) ([]*WorkflowItem, error)
	GetTransitionRecords(ctx context.Context, workflowItemID int64) ([]*WorkflowTransitionRecord, error)
	/**
	 * @description: 实例当前可以展示的迁移, 只检查 preconditions
	 */
	GetAvailableTransitions(ctx context.Context, item *WorkflowItem) ([]*Transition, error)
	/**
	 * @description: 实体创建之后自动启动工作流
	 *				 只启动激活的并且有默认开始迁移的工作流, 按 order 升序
	 *				 整批实体在一个事务里面, 已经存在的实例和条件不满足的会跳过
	 * @param ctx context.Context
	 * @param entities ...Entity
	 * @return []*WorkflowItem, error 新启动的实例
	 */
	HandleEntitiesCreated(ctx context.Context, entities ...Entity) ([]*WorkflowItem, error)
	/**
	 * @description: 实体当前的字段限制, 只给渲染层参考
	 */
	GetEntityRestrictions(ctx context.Context, entity Entity) ([]*EntityRestriction, error)
}

type StartWorkflowReq struct {
	WorkflowName   string         `json:"workflow_name" validate:"required"`
	Entity         Entity         `json:"-" validate:"required"`
	TransitionName string         `json:"transition_name"`
	Data           map[string]any `json:"data"`
}

type TransitWorkflowItemReq struct {
	WorkflowItemID int64          `json:"workflow_item_id" validate:"gt=0"`
	TransitionName string         `json:"transition_name" validate:"required"`
	Entity         Entity         `json:"-"`
	Data           map[string]any `json:"data"` // 迁移前合并到 WorkflowData
}
