// Package tests 是 simple-fsm-workflow 的集成测试。
//
// 此包位于 internal/ 目录下，外部项目无法导入。
//
// 测试内容：
//   - 实体创建之后自动启动工作流（激活和未激活）
//   - 批量启动在一个事务里面完成
//   - 迁移 pipeline 端到端
//   - 并发迁移同一个实例
//
// 所有测试使用 sqlite 内存数据库，在项目根目录执行：
//
//	go test ./internal/tests/...
package tests
