package workflow

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const expenseWorkflowYAML = `
workflows:
  expense_approval:
    label: 报销审批
    entity: expense
    start_step: draft
    order: 10
    attributes:
      amount: {type: float}
      reviewer: {type: string}
      approved: {type: bool}
      submit_count: {type: int}
    steps:
      draft: {order: 10, allowed_transitions: [submit]}
      submitted: {order: 20, allowed_transitions: [approve, reject]}
      approved: {order: 30, is_final: true}
      rejected: {order: 40, allowed_transitions: [submit]}
    transitions:
      - name: submit
        step_to: submitted
        conditions:
          - "@not_blank":
              parameters: [$amount]
              message: 金额不能为空
          - "@gt":
              parameters: [$amount, 0]
              message: 金额必须大于0
        actions:
          - "@increase_value": [$submit_count]
      - name: approve
        step_to: approved
        preconditions:
          "@not_blank": [$reviewer]
        actions:
          - "@assign_value": [$approved, true]
      - name: reject
        step_to: rejected
        actions:
          - "@assign_value": [$approved, false]
    entity_restrictions:
      - field: amount
        step: submitted
        mode: full
      - field: category
        mode: disallow
        values: [travel]
`

type testEntity struct {
	class string
	id    string
	Title string
}

func (e *testEntity) EntityClass() string { return e.class }
func (e *testEntity) EntityID() string    { return e.id }

func newExpense(id string) *testEntity {
	return &testEntity{class: "expense", id: id, Title: "expense " + id}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite 内存库只用一个连接, 事务内外共享同一份数据
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func loadTestDefinitions(t *testing.T, content string) map[string]*WorkflowDefinition {
	t.Helper()
	definitions, err := NewDefaultConfigurationLoader().LoadYAML([]byte(content))
	require.NoError(t, err)
	ret := make(map[string]*WorkflowDefinition, len(definitions))
	for _, definition := range definitions {
		ret[definition.Name] = definition
	}
	return ret
}

func newTestWorkflow(t *testing.T, opts ...WorkflowOption) (*Workflow, WorkflowRepo) {
	t.Helper()
	definition := loadTestDefinitions(t, expenseWorkflowYAML)["expense_approval"]
	repo := NewWorkflowRepo(newTestDB(t))
	return NewWorkflow(definition, repo, NewLocalWorkflowLock(), opts...), repo
}
