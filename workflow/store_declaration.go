package workflow

import (
	"context"
)

type WorkflowRepo interface {
	CreateWorkflowItem(ctx context.Context, item *WorkflowItemPo) (*WorkflowItemPo, error)
	UpdateWorkflowItem(ctx context.Context, param *UpdateWorkflowItemParams) error
	QueryWorkflowItem(ctx context.Context, param *QueryWorkflowItemParams) ([]*WorkflowItemPo, error)
	CountWorkflowItem(ctx context.Context, param *QueryWorkflowItemParams) (int64, error)
	CreateTransitionRecord(ctx context.Context, record *WorkflowTransitionRecordPo) (*WorkflowTransitionRecordPo, error)
	QueryTransitionRecord(ctx context.Context, param *QueryTransitionRecordParams) ([]*WorkflowTransitionRecordPo, error)
	CountTransitionRecord(ctx context.Context, param *QueryTransitionRecordParams) (int64, error)
	// Transaction ctx 中已经有事务时复用, 否则开启新事务
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
