package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/blingmoon/simple-fsm-workflow/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const documentWorkflowsYAML = `
workflows:
  document_review:
    entity: document
    start_step: draft
    order: 5
    attributes:
      title: {type: string}
      reviewer: {type: string}
    steps:
      draft: {order: 10, allowed_transitions: [submit]}
      in_review: {order: 20, allowed_transitions: [publish]}
      published: {order: 30, is_final: true}
    transitions:
      - name: submit
        step_to: in_review
      - name: publish
        step_to: published
        preconditions:
          "@not_blank": [$reviewer]
  document_archive:
    entity: document
    start_step: pending
    order: 20
    steps:
      pending: {allowed_transitions: [archive]}
      archived: {is_final: true}
    transitions:
      - name: archive
        step_to: archived
  document_legacy:
    entity: document
    start_step: legacy
    order: 1
    active: false
    steps:
      legacy: {}
`

type document struct {
	id string
}

func (d *document) EntityClass() string { return "document" }
func (d *document) EntityID() string    { return d.id }

func newDB(t *testing.T) *gorm.DB {
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
	return db
}

func newRegistry(t *testing.T) *workflow.DefinitionRegistry {
	t.Helper()
	definitions, err := workflow.NewDefaultConfigurationLoader().LoadYAML([]byte(documentWorkflowsYAML))
	require.NoError(t, err)
	registry, err := workflow.NewDefinitionRegistry(definitions...)
	require.NoError(t, err)
	return registry
}

type countingTransactionKey struct{}

// countingRepo 统计最外层事务的数量
type countingRepo struct {
	workflow.WorkflowRepo
	mu           sync.Mutex
	transactions int
}

func (r *countingRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(countingTransactionKey{}) == nil {
		r.mu.Lock()
		r.transactions++
		r.mu.Unlock()
		ctx = context.WithValue(ctx, countingTransactionKey{}, true)
	}
	return r.WorkflowRepo.Transaction(ctx, fn)
}

func (r *countingRepo) Transactions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transactions
}

// eventCounter 按事件名计数
type eventCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newEventCounter() *eventCounter {
	return &eventCounter{counts: make(map[string]int)}
}

func (c *eventCounter) HandleEvent(ctx context.Context, name string, event *workflow.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
	return nil
}

func (c *eventCounter) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}
