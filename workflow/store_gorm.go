package workflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WorkflowItemPo struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkflowName string         `gorm:"column:workflow_name;uniqueIndex:uk_workflow_entity,priority:1" json:"workflow_name"`
	EntityClass  string         `gorm:"column:entity_class;uniqueIndex:uk_workflow_entity,priority:2;index:idx_entity,priority:1" json:"entity_class"`
	EntityID     string         `gorm:"column:entity_id;uniqueIndex:uk_workflow_entity,priority:3;index:idx_entity,priority:2" json:"entity_id"`
	CurrentStep  string         `gorm:"column:current_step" json:"current_step"`
	Data         datatypes.JSON `gorm:"column:data" json:"data"` // 工作流数据
	CreatedAt    int64          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    int64          `gorm:"column:updated_at" json:"updated_at"`
	Version      int64          `gorm:"column:version;not null;default:0" json:"version"` // 每次更新加一, 乐观锁
}

func (WorkflowItemPo) TableName() string {
	return "workflow_item"
}

type WorkflowTransitionRecordPo struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkflowItemID int64  `gorm:"column:workflow_item_id;index" json:"workflow_item_id"`
	TransitionName string `gorm:"column:transition_name" json:"transition_name"`
	StepFrom       string `gorm:"column:step_from" json:"step_from"`
	StepTo         string `gorm:"column:step_to" json:"step_to"`
	TransitionDate int64  `gorm:"column:transition_date" json:"transition_date"` // 毫秒
	CreatedAt      int64  `gorm:"column:created_at" json:"created_at"`
}

func (WorkflowTransitionRecordPo) TableName() string {
	return "workflow_transition_record"
}

type QueryWorkflowItemParams struct {
	WorkflowItemID *int64   `json:"workflow_item_id"`
	WorkflowNameIn []string `json:"workflow_name_in"`
	EntityClass    *string  `json:"entity_class"`
	EntityIDIn     []string `json:"entity_id_in"`
	CurrentStepIn  []string `json:"current_step_in"`
	IDGreaterThan  *int64   `json:"id_greater_than"`
	OrderbyIDAsc   *bool    `json:"orderby_id_asc"`
	Page           *Pager   `json:"page"`
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
}

type QueryTransitionRecordParams struct {
	WorkflowItemIDIn []int64 `json:"workflow_item_id_in" validate:"required,min=1"`
	TransitionName   *string `json:"transition_name"`
	OrderbyIDAsc     *bool   `json:"orderby_id_asc"`
	Page             *Pager  `json:"page"`
}

type UpdateWorkflowItemParams struct {
	Where    *UpdateWorkflowItemWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowItemField `json:"field" validate:"required"`
	LimitMax int                      `json:"limit_max" validate:"required"`
}

type UpdateWorkflowItemWhere struct {
	IDIn          []int64  `json:"id_in"`
	CurrentStepIn []string `json:"current_step_in"`
	Version       *int64   `json:"version"`
}

type UpdateWorkflowItemField struct {
	CurrentStep *string       `json:"current_step"`
	Data        *WorkflowData `json:"data"`
}

type workflowRepo struct {
	db *gorm.DB
}

func NewWorkflowRepo(db *gorm.DB) WorkflowRepo {
	return &workflowRepo{
		db: db,
	}
}

// AutoMigrate 创建工作流需要的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&WorkflowItemPo{}, &WorkflowTransitionRecordPo{})
}

func (r *workflowRepo) CreateWorkflowItem(ctx context.Context, item *WorkflowItemPo) (*WorkflowItemPo, error) {
	if item == nil {
		return nil, errors.New("nil WorkflowItemPo")
	}
	now := time.Now().Unix()
	item.CreatedAt = now
	item.UpdatedAt = now
	if len(item.Data) == 0 {
		item.Data = datatypes.JSON("{}")
	}
	if err := r.GetDBWithContext(ctx).Create(item).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowItem failed")
	}
	return item, nil
}

func (r *workflowRepo) CreateTransitionRecord(ctx context.Context, record *WorkflowTransitionRecordPo) (*WorkflowTransitionRecordPo, error) {
	if record == nil {
		return nil, errors.New("nil WorkflowTransitionRecordPo")
	}
	record.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(record).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateTransitionRecord failed")
	}
	return record, nil
}

func applyPager(db *gorm.DB, page *Pager) (*gorm.DB, error) {
	if page == nil {
		return nil, errors.New("page is nil")
	}
	if page.IsNoLimit != nil && *page.IsNoLimit {
		// 不分页显示指定了true
		return db, nil
	}
	if page.Page == 0 {
		page.Page = 1
	}
	if page.Size == 0 {
		page.Size = 10
	}
	return db.Offset(int(page.Page-1) * int(page.Size)).Limit(int(page.Size)), nil
}

func applyOrder(db *gorm.DB, asc *bool) *gorm.DB {
	if asc == nil {
		return db
	}
	if *asc {
		return db.Order("id asc")
	}
	return db.Order("id desc")
}

func buildQueryWorkflowItemParams(db *gorm.DB, isCount bool, param *QueryWorkflowItemParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowItemParams")
	}
	if param.WorkflowItemID != nil {
		db = db.Where("id = ?", *param.WorkflowItemID)
	}
	if len(param.WorkflowNameIn) != 0 {
		db = db.Where("workflow_name IN ?", param.WorkflowNameIn)
	}
	if param.EntityClass != nil {
		db = db.Where("entity_class = ?", *param.EntityClass)
	}
	if len(param.EntityIDIn) != 0 {
		db = db.Where("entity_id IN ?", param.EntityIDIn)
	}
	if len(param.CurrentStepIn) != 0 {
		db = db.Where("current_step IN ?", param.CurrentStepIn)
	}
	if param.IDGreaterThan != nil {
		db = db.Where("id > ?", *param.IDGreaterThan)
	}
	if isCount {
		return db, nil
	}
	db = applyOrder(db, param.OrderbyIDAsc)
	return applyPager(db, param.Page)
}

func (r *workflowRepo) QueryWorkflowItem(ctx context.Context, param *QueryWorkflowItemParams) ([]*WorkflowItemPo, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowItemParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowItemPo{})
	db, err := buildQueryWorkflowItemParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowItemParams failed")
	}
	pos := make([]*WorkflowItemPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowItem failed")
	}
	return pos, nil
}

func (r *workflowRepo) CountWorkflowItem(ctx context.Context, param *QueryWorkflowItemParams) (int64, error) {
	if param == nil {
		return 0, errors.New("nil QueryWorkflowItemParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowItemPo{})
	db, err := buildQueryWorkflowItemParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryWorkflowItemParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.WithMessage(err, "CountWorkflowItem failed")
	}
	return count, nil
}

func buildQueryTransitionRecordParams(db *gorm.DB, isCount bool, param *QueryTransitionRecordParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryTransitionRecordParams")
	}
	if len(param.WorkflowItemIDIn) != 0 {
		db = db.Where("workflow_item_id IN ?", param.WorkflowItemIDIn)
	}
	if param.TransitionName != nil {
		db = db.Where("transition_name = ?", *param.TransitionName)
	}
	if isCount {
		return db, nil
	}
	db = applyOrder(db, param.OrderbyIDAsc)
	return applyPager(db, param.Page)
}

func (r *workflowRepo) QueryTransitionRecord(ctx context.Context, param *QueryTransitionRecordParams) ([]*WorkflowTransitionRecordPo, error) {
	if param == nil {
		return nil, errors.New("nil QueryTransitionRecordParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowTransitionRecordPo{})
	db, err := buildQueryTransitionRecordParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryTransitionRecordParams failed")
	}
	pos := make([]*WorkflowTransitionRecordPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryTransitionRecord failed")
	}
	return pos, nil
}

func (r *workflowRepo) CountTransitionRecord(ctx context.Context, param *QueryTransitionRecordParams) (int64, error) {
	if param == nil {
		return 0, errors.New("nil QueryTransitionRecordParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowTransitionRecordPo{})
	db, err := buildQueryTransitionRecordParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryTransitionRecordParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.WithMessage(err, "CountTransitionRecord failed")
	}
	return count, nil
}

func buildUpdateWorkflowItemParams(db *gorm.DB, param *UpdateWorkflowItemParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil UpdateWorkflowItemParams")
	}
	if param.Where == nil {
		return nil, errors.New("where is nil")
	}
	if param.Fields == nil {
		return nil, errors.New("fields is nil")
	}
	if len(param.Where.IDIn) == 0 {
		return nil, errors.Errorf("update workflow item need id condition, params is %+v", param.Where)
	}
	db = db.Where("id IN ?", param.Where.IDIn)
	if len(param.Where.CurrentStepIn) > 0 {
		db = db.Where("current_step IN ?", param.Where.CurrentStepIn)
	}
	if param.Where.Version != nil {
		db = db.Where("version = ?", *param.Where.Version)
	}
	return db, nil
}

func buildUpdateWorkflowItemFields(fields *UpdateWorkflowItemField) (map[string]any, error) {
	updateFields := make(map[string]any)
	if fields.CurrentStep != nil {
		updateFields["current_step"] = *fields.CurrentStep
	}
	if fields.Data != nil {
		jsonData, err := fields.Data.MarshalJSON()
		if err != nil {
			return nil, errors.WithMessage(err, "Marshal fields.Data failed")
		}
		updateFields["data"] = datatypes.JSON(jsonData)
	}
	if len(updateFields) == 0 {
		return nil, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	// version 每次都变, mysql 只统计值变化的行时影响行数也只取决于 where 条件
	updateFields["version"] = gorm.Expr("version + 1")
	return updateFields, nil
}

func (r *workflowRepo) UpdateWorkflowItem(ctx context.Context, param *UpdateWorkflowItemParams) error {
	if param == nil {
		return errors.New("nil UpdateWorkflowItemParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowItemPo{})
	db, err := buildUpdateWorkflowItemParams(db, param)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateWorkflowItemParams failed")
	}
	updateFields, err := buildUpdateWorkflowItemFields(param.Fields)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateWorkflowItemFields failed")
	}
	result := db.Limit(param.LimitMax).Updates(updateFields)
	if result.Error != nil {
		return errors.WithMessage(result.Error, "UpdateWorkflowItem failed")
	}
	if result.RowsAffected == 0 {
		return errors.WithMessagef(ErrWorkflowItemNotFound, "UpdateWorkflowItem affected no rows, where: %+v", param.Where)
	}
	return nil
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *workflowRepo) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务，直接返回db即可
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

func (r *workflowRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(transactionContextKey) != nil {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, transactionContextKey, tx))
	})
}
