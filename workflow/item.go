package workflow

import (
	"time"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/pkg/errors"
)

// Entity 工作流挂载的业务实体
type Entity interface {
	EntityClass() string
	EntityID() string
}

// 表达式上下文中 WorkflowItem 暴露的 key, $x 等价于 $.data.x
const (
	ItemKeyData         = "data"
	ItemKeyEntity       = "entity"
	ItemKeyResult       = "result"
	ItemKeyCurrentStep  = "current_step"
	ItemKeyWorkflowName = "workflow_name"
	ItemKeyID           = "id"
	ItemKeyEntityClass  = "entity_class"
	ItemKeyEntityID     = "entity_id"
)

// WorkflowData 工作流数据, 有序的 key-value, key 对应属性名
type WorkflowData struct {
	ctx *JSONContext
}

func NewWorkflowData(values map[string]any) *WorkflowData {
	return &WorkflowData{ctx: NewJSONContextFromMap(values)}
}

func newWorkflowDataFromBytes(b []byte) (*WorkflowData, error) {
	ctx, err := NewJSONContext(b)
	if err != nil {
		return nil, err
	}
	return &WorkflowData{ctx: ctx}, nil
}

func (d *WorkflowData) Get(key string) (any, bool) {
	return d.ctx.Get(key)
}

func (d *WorkflowData) Set(key string, value any) {
	_ = d.ctx.Set([]string{key}, value)
}

func (d *WorkflowData) Remove(key string) {
	d.ctx.Delete(key)
}

func (d *WorkflowData) Has(key string) bool {
	_, ok := d.ctx.Get(key)
	return ok
}

// Keys 按写入顺序
func (d *WorkflowData) Keys() []string {
	return d.ctx.Keys()
}

func (d *WorkflowData) Len() int {
	return d.ctx.Len()
}

// Add 批量写入, 已存在的 key 会被覆盖
func (d *WorkflowData) Add(values map[string]any) {
	for _, key := range sortedKeys(values) {
		d.Set(key, values[key])
	}
}

// ToMap 返回拷贝
func (d *WorkflowData) ToMap() map[string]any {
	return d.ctx.Clone().ToMap()
}

func (d *WorkflowData) Clone() *WorkflowData {
	return &WorkflowData{ctx: d.ctx.Clone()}
}

func (d *WorkflowData) MarshalJSON() ([]byte, error) {
	return d.ctx.MarshalJSON()
}

func (d *WorkflowData) UnmarshalJSON(b []byte) error {
	if d.ctx == nil {
		d.ctx = &JSONContext{data: make(map[string]any)}
	}
	return d.ctx.UnmarshalJSON(b)
}

func (d *WorkflowData) GetPathValue(key string) (any, bool) {
	return d.Get(key)
}

func (d *WorkflowData) SetPathValue(key string, value any) error {
	d.Set(key, value)
	return nil
}

// WorkflowItem 工作流实例, 一个实体在一个工作流中只有一个
type WorkflowItem struct {
	ID           int64
	WorkflowName string
	CurrentStep  string // 为空表示还没有开始
	Data         *WorkflowData
	EntityClass  string
	EntityID     string
	Entity       Entity // 不持久化
	// EntityAttribute 表达式中 $<EntityAttribute> 指向 Entity, 为空时是 entity, 不持久化
	EntityAttribute string
	Result          map[string]any // 不持久化, 动作执行的临时结果
	CreatedAt       int64
	UpdatedAt       int64
	Version         int64 // 存储中的版本, 更新时校验

	TransitionRecords []*WorkflowTransitionRecord // 本次加载之后产生的迁移记录
}

// WorkflowTransitionRecord 迁移记录, 只追加不修改
type WorkflowTransitionRecord struct {
	ID             int64
	WorkflowItemID int64
	TransitionName string
	StepFrom       string
	StepTo         string
	TransitionDate time.Time
}

func NewWorkflowItem(workflowName string, entity Entity, data map[string]any) *WorkflowItem {
	item := &WorkflowItem{
		WorkflowName: workflowName,
		Data:         NewWorkflowData(data),
		Entity:       entity,
		Result:       make(map[string]any),
	}
	if entity != nil {
		item.EntityClass = entity.EntityClass()
		item.EntityID = entity.EntityID()
	}
	return item
}

// IsNew 还没有持久化
func (i *WorkflowItem) IsNew() bool {
	return i.ID == 0
}

// SetEntity 实体必须和实例记录的实体一致
func (i *WorkflowItem) SetEntity(entity Entity) error {
	if entity == nil {
		return nil
	}
	if i.EntityClass != "" && (entity.EntityClass() != i.EntityClass || entity.EntityID() != i.EntityID) {
		return errors.Wrapf(ErrWorkflowParamInvalid, "entity %s#%s does not belong to workflow item %d", entity.EntityClass(), entity.EntityID(), i.ID)
	}
	i.Entity = entity
	i.EntityClass = entity.EntityClass()
	i.EntityID = entity.EntityID()
	return nil
}

func (i *WorkflowItem) entityKey() string {
	if i.EntityAttribute != "" {
		return i.EntityAttribute
	}
	return ItemKeyEntity
}

func (i *WorkflowItem) GetPathValue(key string) (any, bool) {
	switch key {
	case ItemKeyData:
		if i.Data == nil {
			return nil, false
		}
		return &itemDataView{item: i}, true
	case ItemKeyEntity:
		if i.Entity == nil {
			return nil, false
		}
		return i.Entity, true
	case ItemKeyResult:
		return i.Result, i.Result != nil
	case ItemKeyCurrentStep:
		return i.CurrentStep, true
	case ItemKeyWorkflowName:
		return i.WorkflowName, true
	case ItemKeyID:
		return i.ID, true
	case ItemKeyEntityClass:
		return i.EntityClass, true
	case ItemKeyEntityID:
		return i.EntityID, true
	}
	return nil, false
}

// SetPathValue 只有 data 和 result 可以整体替换
func (i *WorkflowItem) SetPathValue(key string, value any) error {
	switch key {
	case ItemKeyData:
		switch v := value.(type) {
		case *WorkflowData:
			i.Data = v
			return nil
		case map[string]any:
			i.Data = NewWorkflowData(v)
			return nil
		}
	case ItemKeyResult:
		if v, ok := value.(map[string]any); ok {
			i.Result = v
			return nil
		}
	}
	return errors.WithMessagef(configexpression.ErrPropertyNotWritable, "workflow item key %s", key)
}

// itemDataView 表达式看到的 data, 实体挂在 data[EntityAttribute] 上, 不落库
type itemDataView struct {
	item *WorkflowItem
}

func (v *itemDataView) GetPathValue(key string) (any, bool) {
	if key == v.item.entityKey() && v.item.Entity != nil {
		return v.item.Entity, true
	}
	return v.item.Data.GetPathValue(key)
}

func (v *itemDataView) SetPathValue(key string, value any) error {
	if key == v.item.entityKey() && v.item.Entity != nil {
		return errors.WithMessagef(configexpression.ErrPropertyNotWritable, "entity attribute %s cannot be replaced", key)
	}
	return v.item.Data.SetPathValue(key, value)
}

// itemSnapshot 迁移失败时恢复内存中的状态
type itemSnapshot struct {
	id          int64
	currentStep string
	data        *WorkflowData
	result      map[string]any
	records     int
	createdAt   int64
	updatedAt   int64
	version     int64
}

func (i *WorkflowItem) snapshot() *itemSnapshot {
	s := &itemSnapshot{
		id:          i.ID,
		currentStep: i.CurrentStep,
		result:      make(map[string]any, len(i.Result)),
		records:     len(i.TransitionRecords),
		createdAt:   i.CreatedAt,
		updatedAt:   i.UpdatedAt,
		version:     i.Version,
	}
	if i.Data != nil {
		s.data = i.Data.Clone()
	}
	for k, v := range i.Result {
		s.result[k] = v
	}
	return s
}

func (i *WorkflowItem) restore(s *itemSnapshot) {
	i.ID = s.id
	i.CurrentStep = s.currentStep
	i.Data = s.data
	i.Result = s.result
	i.TransitionRecords = i.TransitionRecords[:s.records]
	i.CreatedAt = s.createdAt
	i.UpdatedAt = s.updatedAt
	i.Version = s.version
}
