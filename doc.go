// Package workflow 提供声明式的有限状态机工作流。
//
// 工作流用 YAML 配置声明步骤、迁移和属性，迁移的条件和动作用 @name 表达式描述，
// 实例（WorkflowItem）保存在数据库里，每次迁移在一个事务里完成并追加一条迁移记录。
//
// 主要特性：
//   - 表达式：@and/@or 短路求值的条件，@assign_value 等内置函数，可以注册自定义动作
//   - 数据持久化：支持 GORM，可使用 MySQL、PostgreSQL、SQLite 等数据库
//   - 并发安全：同一个实例同时只有一个迁移，支持本地锁和分布式锁（Redis）
//   - 事件：迁移前后派发事件，提交之后可以发布到 watermill，统计 prometheus 指标
//   - 迁移 pipeline：transition 包把一次迁移请求拆成有序的 processor，支持表单
//
// 基础使用示例:
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/blingmoon/simple-fsm-workflow/workflow"
//	    "gorm.io/driver/sqlite"
//	    "gorm.io/gorm"
//	)
//
//	type Expense struct{ ID string }
//
//	func (e *Expense) EntityClass() string { return "expense" }
//	func (e *Expense) EntityID() string    { return e.ID }
//
//	func main() {
//	    // 1. 初始化数据库
//	    db, _ := gorm.Open(sqlite.Open("workflow.db"), &gorm.Config{})
//	    _ = workflow.AutoMigrate(db)
//
//	    // 2. 加载工作流配置
//	    definitions, _ := workflow.NewDefaultConfigurationLoader().LoadYAML([]byte(`
//	expense_approval:
//	  entity: expense
//	  start_step: draft
//	  steps:
//	    draft: {allowed_transitions: [submit]}
//	    submitted: {is_final: true}
//	  transitions:
//	    submit:
//	      step_to: submitted
//	      conditions:
//	        "@gt":
//	          parameters: [$amount, 0]
//	          message: 金额必须大于0
//	`))
//	    registry, _ := workflow.NewDefinitionRegistry(definitions...)
//
//	    // 3. 创建工作流服务
//	    service := workflow.NewWorkflowService(registry, workflow.NewWorkflowRepo(db), workflow.NewLocalWorkflowLock())
//
//	    // 4. 实体创建之后自动启动, 然后迁移
//	    ctx := context.Background()
//	    items, _ := service.HandleEntitiesCreated(ctx, &Expense{ID: "E-001"})
//	    _, _ = service.TransitWorkflowItem(ctx, &workflow.TransitWorkflowItemReq{
//	        WorkflowItemID: items[0].ID,
//	        TransitionName: "submit",
//	        Data:           map[string]any{"amount": 100},
//	    })
//	}
//
// 表达式上下文：
//
// 条件和动作在 WorkflowItem 上求值，$x 是 $.data.x 的简写：
//
//   - $.data: 工作流数据，属性声明的字段
//   - $.entity: 业务实体，按字段名、snake_case 或 json tag 访问
//   - $.result: 动作执行的临时结果，不持久化
//   - $.current_step, $.workflow_name, $.id: 实例信息
//
// 更多示例请参考 examples/with-sqlite。
package workflow
