package transition

import (
	"context"
	"fmt"
	"testing"

	"github.com/blingmoon/simple-fsm-workflow/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const leaveWorkflowYAML = `
workflows:
  leave_request:
    label: 请假
    entity: leave
    start_step: draft
    attributes:
      days: {type: int, label: 天数}
      reason: {type: string}
      reviewer: {type: string}
    steps:
      draft: {order: 10, label: 草稿, allowed_transitions: [submit, review]}
      submitted: {order: 20, label: 已提交, allowed_transitions: [approve]}
      approved: {order: 30, label: 已通过, is_final: true}
    transitions:
      - name: submit
        step_to: submitted
        message: "确认提交 {{ transition }}"
        form_options:
          form_init:
            - "@assign_value": [$reason, 个人事务]
          attribute_fields:
            days:
              options: {required: true}
            reason: ~
        conditions:
          "@gt":
            parameters: [$days, 0]
            message: 天数必须大于0
      - name: review
        step_to: submitted
        form_type: leave_review_form
        form_options:
          form_data_provider: leave_review
      - name: approve
        step_to: approved
        display_type: page
`

type testEntity struct {
	class string
	id    string
}

func (e *testEntity) EntityClass() string { return e.class }
func (e *testEntity) EntityID() string    { return e.id }

func newLeave(id string) *testEntity {
	return &testEntity{class: "leave", id: id}
}

func newTestWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, workflow.AutoMigrate(db))
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	definitions, err := workflow.NewDefaultConfigurationLoader().LoadYAML([]byte(leaveWorkflowYAML))
	require.NoError(t, err)
	require.Len(t, definitions, 1)
	return workflow.NewWorkflow(definitions[0], workflow.NewWorkflowRepo(db), workflow.NewLocalWorkflowLock())
}

// startedItem 已经执行了默认开始迁移的实例
func startedItem(t *testing.T, wf *workflow.Workflow, entity workflow.Entity) *workflow.WorkflowItem {
	t.Helper()
	item, err := wf.Start(context.Background(), entity, nil, "")
	require.NoError(t, err)
	return item
}

type staticRestrictions []*workflow.EntityRestriction

func (s staticRestrictions) GetEntityRestrictions(ctx context.Context, entity workflow.Entity) ([]*workflow.EntityRestriction, error) {
	return s, nil
}
