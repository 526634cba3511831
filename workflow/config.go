package workflow

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// workflowConfig 单个工作流的配置, 由原始配置规范化之后解码得到
type workflowConfig struct {
	Name                  string                                 `yaml:"name" validate:"required"`
	Label                 string                                 `yaml:"label"`
	Entity                string                                 `yaml:"entity" validate:"required"`
	EntityAttribute       string                                 `yaml:"entity_attribute"`
	StartStep             string                                 `yaml:"start_step"`
	Active                *bool                                  `yaml:"active"`
	Order                 *int                                   `yaml:"order"`
	Priority              *int                                   `yaml:"priority"`
	Steps                 []*stepConfig                          `yaml:"steps" validate:"required,min=1,dive"`
	Attributes            []*attributeConfig                     `yaml:"attributes" validate:"dive"`
	Transitions           []*transitionConfig                    `yaml:"transitions" validate:"dive"`
	TransitionDefinitions map[string]*transitionDefinitionConfig `yaml:"transition_definitions"`
	Restrictions          []*restrictionConfig                   `yaml:"entity_restrictions" validate:"dive"`
}

type stepConfig struct {
	Name               string   `yaml:"name" validate:"required"`
	Label              string   `yaml:"label"`
	Order              int      `yaml:"order"`
	IsFinal            bool     `yaml:"is_final"`
	AllowedTransitions []string `yaml:"allowed_transitions"`
}

type attributeConfig struct {
	Name    string         `yaml:"name" validate:"required"`
	Label   string         `yaml:"label"`
	Type    string         `yaml:"type" validate:"required,oneof=string bool boolean int integer float array object entity"`
	Options map[string]any `yaml:"options"`
}

type transitionDefinitionConfig struct {
	PreConditions any `yaml:"preconditions"`
	Conditions    any `yaml:"conditions"`
	PreActions    any `yaml:"preactions"`
	Actions       any `yaml:"actions"`
}

type transitionConfig struct {
	transitionDefinitionConfig `yaml:",inline"`

	Name                 string         `yaml:"name" validate:"required"`
	Label                string         `yaml:"label"`
	StepTo               string         `yaml:"step_to" validate:"required"`
	IsStart              bool           `yaml:"is_start"`
	TransitionDefinition string         `yaml:"transition_definition"`
	FormType             string         `yaml:"form_type"`
	FormOptions          map[string]any `yaml:"form_options"`
	FrontendOptions      map[string]any `yaml:"frontend_options"`
	DisplayType          string         `yaml:"display_type" validate:"omitempty,oneof=dialog page"`
	DialogTemplate       string         `yaml:"dialog_template"`
	PageTemplate         string         `yaml:"page_template"`
	Message              string         `yaml:"message"`
}

type restrictionConfig struct {
	Attribute string `yaml:"attribute"`
	Field     string `yaml:"field" validate:"required"`
	Step      string `yaml:"step"`
	Mode      string `yaml:"mode" validate:"required,oneof=full allow disallow"`
	Values    []any  `yaml:"values"`
}

// ConfigurationLoader 把 YAML 等价的嵌套 map 构建成工作流定义, 任何错误都会终止加载
type ConfigurationLoader struct {
	assembler *configexpression.Assembler
}

func NewConfigurationLoader(assembler *configexpression.Assembler) *ConfigurationLoader {
	return &ConfigurationLoader{assembler: assembler}
}

// NewDefaultConfigurationLoader $x 解析为 data.x
func NewDefaultConfigurationLoader() *ConfigurationLoader {
	factory := configexpression.NewDefaultFactory(configexpression.NewContextAccessor())
	return NewConfigurationLoader(configexpression.NewAssembler(factory, configexpression.NewReplacePropertyPathPass(ItemKeyData)))
}

func (l *ConfigurationLoader) Assembler() *configexpression.Assembler {
	return l.assembler
}

// ParseYAML 解析 YAML/JSON 配置
func ParseYAML(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.WithMessage(ErrConfiguration, "workflow: configuration payload is empty")
	}
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WithMessagef(ErrConfiguration, "workflow: decode configuration: %v", err)
	}
	return raw, nil
}

func (l *ConfigurationLoader) LoadYAML(data []byte) ([]*WorkflowDefinition, error) {
	raw, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return l.Build(raw)
}

func (l *ConfigurationLoader) LoadFile(path string) ([]*WorkflowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "workflow: read %s", path)
	}
	definitions, err := l.LoadYAML(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "workflow: %s", path)
	}
	return definitions, nil
}

// Build 顶层可以是 {workflows: {name: {...}}} 或者直接 {name: {...}}
func (l *ConfigurationLoader) Build(raw map[string]any) ([]*WorkflowDefinition, error) {
	workflows := raw
	if nested, ok := raw["workflows"]; ok {
		m, ok := nested.(map[string]any)
		if !ok {
			return nil, errors.WithMessage(ErrConfiguration, "workflows must be a map")
		}
		workflows = m
	}
	names := sortedKeys(workflows)
	definitions := make([]*WorkflowDefinition, 0, len(names))
	for _, name := range names {
		config, ok := workflows[name].(map[string]any)
		if !ok {
			return nil, errors.WithMessagef(ErrConfiguration, "workflow %s must be a map", name)
		}
		definition, err := l.buildDefinition(name, config)
		if err != nil {
			return nil, errors.WithMessagef(err, "workflow %s", name)
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

func (l *ConfigurationLoader) buildDefinition(name string, raw map[string]any) (*WorkflowDefinition, error) {
	config, err := decodeWorkflowConfig(name, raw)
	if err != nil {
		return nil, err
	}
	if err := validatorUtil.Struct(config); err != nil {
		return nil, errors.WithMessagef(ErrConfiguration, "validate: %v", err)
	}

	definition := &WorkflowDefinition{
		Name:            config.Name,
		Label:           config.Label,
		EntityClass:     config.Entity,
		EntityAttribute: config.EntityAttribute,
		StartStepName:   config.StartStep,
		Active:          config.Active == nil || *config.Active,
		Configuration:   raw,
		Steps:           make(map[string]*WorkflowStep, len(config.Steps)),
		Transitions:     make(map[string]*Transition, len(config.Transitions)),
		Attributes:      make(map[string]*Attribute, len(config.Attributes)),
		Restrictions:    make([]*EntityRestriction, 0, len(config.Restrictions)),
	}
	if config.Order != nil {
		definition.Order = *config.Order
	} else if config.Priority != nil {
		definition.Order = *config.Priority
	}
	if definition.Label == "" {
		definition.Label = definition.Name
	}

	for _, attribute := range config.Attributes {
		if (attribute.Type == "entity" || attribute.Type == "object") && attribute.Options["class"] == nil {
			return nil, errors.WithMessagef(ErrConfiguration, "attribute %s of type %s requires options.class", attribute.Name, attribute.Type)
		}
		definition.Attributes[attribute.Name] = &Attribute{
			Name:    attribute.Name,
			Label:   defaultString(attribute.Label, attribute.Name),
			Type:    attribute.Type,
			Options: attribute.Options,
		}
	}

	for _, step := range config.Steps {
		definition.Steps[step.Name] = &WorkflowStep{
			Name:               step.Name,
			Label:              defaultString(step.Label, step.Name),
			Order:              step.Order,
			IsFinal:            step.IsFinal,
			AllowedTransitions: step.AllowedTransitions,
		}
	}
	if definition.StartStepName != "" {
		if _, ok := definition.Steps[definition.StartStepName]; !ok {
			return nil, errors.WithMessagef(ErrConfiguration, "start step %s is not defined", definition.StartStepName)
		}
	}

	transitions := config.Transitions
	if definition.StartStepName != "" && !hasTransition(transitions, DefaultStartTransitionName) {
		// 配置了开始步骤时生成默认的开始迁移
		transitions = append(transitions, &transitionConfig{
			Name:    DefaultStartTransitionName,
			StepTo:  definition.StartStepName,
			IsStart: true,
		})
	}
	for _, transitionCfg := range transitions {
		transition, err := l.buildTransition(definition, config, transitionCfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "transition %s", transitionCfg.Name)
		}
		definition.Transitions[transition.Name] = transition
		definition.transitionNames = append(definition.transitionNames, transition.Name)
	}

	for _, step := range definition.Steps {
		for _, allowed := range step.AllowedTransitions {
			if _, ok := definition.Transitions[allowed]; !ok {
				return nil, errors.WithMessagef(ErrConfiguration, "step %s allows undefined transition %s", step.Name, allowed)
			}
		}
	}
	if len(definition.GetStartTransitions()) == 0 {
		return nil, errors.WithMessage(ErrConfiguration, "workflow has neither start_step nor start transition")
	}

	for _, restriction := range config.Restrictions {
		if restriction.Step != "" {
			if _, ok := definition.Steps[restriction.Step]; !ok {
				return nil, errors.WithMessagef(ErrConfiguration, "restriction on field %s references undefined step %s", restriction.Field, restriction.Step)
			}
		}
		if restriction.Mode != RestrictionModeFull && len(restriction.Values) == 0 {
			return nil, errors.WithMessagef(ErrConfiguration, "restriction on field %s with mode %s requires values", restriction.Field, restriction.Mode)
		}
		definition.Restrictions = append(definition.Restrictions, &EntityRestriction{
			WorkflowName: definition.Name,
			Attribute:    defaultString(restriction.Attribute, definition.EntityAttribute),
			Field:        restriction.Field,
			Step:         restriction.Step,
			Mode:         restriction.Mode,
			Values:       restriction.Values,
		})
	}
	return definition, nil
}

func (l *ConfigurationLoader) buildTransition(definition *WorkflowDefinition, config *workflowConfig, cfg *transitionConfig) (*Transition, error) {
	if _, ok := definition.Steps[cfg.StepTo]; !ok {
		return nil, errors.WithMessagef(ErrConfiguration, "step_to %s is not defined", cfg.StepTo)
	}
	expressions := cfg.transitionDefinitionConfig
	if cfg.TransitionDefinition != "" {
		referenced, ok := config.TransitionDefinitions[cfg.TransitionDefinition]
		if !ok || referenced == nil {
			return nil, errors.WithMessagef(ErrConfiguration, "transition_definition %s is not defined", cfg.TransitionDefinition)
		}
		// 迁移上直接配置的优先
		expressions = mergeTransitionDefinition(expressions, *referenced)
	}

	transition := &Transition{
		Name:            cfg.Name,
		Label:           defaultString(cfg.Label, cfg.Name),
		StepTo:          cfg.StepTo,
		IsStart:         cfg.IsStart,
		FormType:        cfg.FormType,
		FormOptions:     cfg.FormOptions,
		FrontendOptions: cfg.FrontendOptions,
		DisplayType:     defaultString(cfg.DisplayType, DisplayTypeDialog),
		DialogTemplate:  cfg.DialogTemplate,
		PageTemplate:    cfg.PageTemplate,
		Message:         cfg.Message,
	}
	var err error
	if transition.PreConditions, err = l.assembleCondition(expressions.PreConditions); err != nil {
		return nil, errors.WithMessage(err, "preconditions")
	}
	if transition.Conditions, err = l.assembleCondition(expressions.Conditions); err != nil {
		return nil, errors.WithMessage(err, "conditions")
	}
	if transition.PreActions, err = l.assembleAction(expressions.PreActions); err != nil {
		return nil, errors.WithMessage(err, "preactions")
	}
	if transition.Actions, err = l.assembleAction(expressions.Actions); err != nil {
		return nil, errors.WithMessage(err, "actions")
	}
	if err := l.applyFormOptions(definition, transition); err != nil {
		return nil, err
	}
	return transition, nil
}

// applyFormOptions 解析 form_options 中的 attribute_fields, form_init, form_data_provider
func (l *ConfigurationLoader) applyFormOptions(definition *WorkflowDefinition, transition *Transition) error {
	options := transition.FormOptions
	if len(options) == 0 {
		return nil
	}
	if provider, ok := options["form_data_provider"]; ok {
		name, ok := provider.(string)
		if !ok {
			return errors.WithMessage(ErrConfiguration, "form_data_provider must be a string")
		}
		transition.FormDataProvider = name
	}
	formInit, err := l.assembleAction(options["form_init"])
	if err != nil {
		return errors.WithMessage(err, "form_init")
	}
	transition.FormInit = formInit

	rawFields, ok := options["attribute_fields"]
	if !ok || rawFields == nil {
		return nil
	}
	fields, ok := rawFields.(map[string]any)
	if !ok {
		return errors.WithMessage(ErrConfiguration, "attribute_fields must be a map")
	}
	for _, name := range sortedKeys(fields) {
		attribute, ok := definition.Attributes[name]
		if !ok {
			return errors.WithMessagef(ErrConfiguration, "attribute_fields references undefined attribute %s", name)
		}
		field := &AttributeField{Attribute: name, Label: attribute.Label, Options: map[string]any{}}
		if fieldCfg, ok := fields[name].(map[string]any); ok {
			if formType, ok := fieldCfg["form_type"].(string); ok {
				field.FormType = formType
			}
			if label, ok := fieldCfg["label"].(string); ok {
				field.Label = label
			}
			if fieldOptions, ok := fieldCfg["options"].(map[string]any); ok {
				field.Options = fieldOptions
				if required, ok := fieldOptions["required"].(bool); ok {
					field.Required = required
				}
			}
		}
		transition.AttributeFields = append(transition.AttributeFields, field)
	}
	return nil
}

// assembleCondition 列表写法等价于 @and
func (l *ConfigurationLoader) assembleCondition(config any) (configexpression.Expression, error) {
	if list, ok := config.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		config = map[string]any{"@and": list}
	}
	expr, err := l.assembler.Assemble(config)
	if err != nil {
		return nil, err
	}
	if expr != nil && expr.Kind() != configexpression.KindCondition {
		return nil, errors.WithMessagef(ErrConfiguration, "@%s is not a condition", expr.Name())
	}
	return expr, nil
}

// assembleAction 列表写法等价于 @tree
func (l *ConfigurationLoader) assembleAction(config any) (configexpression.Expression, error) {
	if list, ok := config.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		config = map[string]any{"@tree": list}
	}
	expr, err := l.assembler.Assemble(config)
	if err != nil {
		return nil, err
	}
	if expr != nil && expr.Kind() != configexpression.KindFunction {
		return nil, errors.WithMessagef(ErrConfiguration, "@%s is not an action", expr.Name())
	}
	return expr, nil
}

func mergeTransitionDefinition(own, referenced transitionDefinitionConfig) transitionDefinitionConfig {
	if own.PreConditions == nil {
		own.PreConditions = referenced.PreConditions
	}
	if own.Conditions == nil {
		own.Conditions = referenced.Conditions
	}
	if own.PreActions == nil {
		own.PreActions = referenced.PreActions
	}
	if own.Actions == nil {
		own.Actions = referenced.Actions
	}
	return own
}

// decodeWorkflowConfig 规范化集合写法后解码成结构体, 未知字段视为配置错误
func decodeWorkflowConfig(name string, raw map[string]any) (*workflowConfig, error) {
	normalized := make(map[string]any, len(raw)+1)
	for key, value := range raw {
		normalized[key] = value
	}
	normalized["name"] = name
	for _, collection := range []struct {
		key  string
		kind string
	}{
		{"steps", "step"},
		{"transitions", "transition"},
		{"attributes", "attribute"},
	} {
		entries, err := normalizeCollection(collection.kind, raw[collection.key])
		if err != nil {
			return nil, errors.WithMessage(err, collection.key)
		}
		if entries != nil {
			normalized[collection.key] = entries
		}
	}

	content, err := yaml.Marshal(normalized)
	if err != nil {
		return nil, errors.WithMessagef(ErrConfiguration, "encode: %v", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	config := &workflowConfig{}
	if err := decoder.Decode(config); err != nil {
		return nil, errors.WithMessagef(ErrConfiguration, "decode: %v", err)
	}
	return config, nil
}

// normalizeCollection 列表或者以名字为 key 的 map 统一成带 name 的列表
// 匿名条目命名为 <kind>_auto_<n>, 重名条目命名为 <name>_auto_<n>, n 按基础名字从 1 开始递增
func normalizeCollection(kind string, raw any) ([]any, error) {
	switch collection := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		ret := make([]any, 0, len(collection))
		for _, key := range sortedKeys(collection) {
			entry, err := copyEntry(collection[key])
			if err != nil {
				return nil, errors.WithMessagef(err, "%s %s", kind, key)
			}
			entry["name"] = key
			ret = append(ret, entry)
		}
		return ret, nil
	case []any:
		ret := make([]any, 0, len(collection))
		used := make(map[string]bool, len(collection))
		for _, item := range collection {
			entry, err := copyEntry(item)
			if err != nil {
				return nil, errors.WithMessage(err, kind)
			}
			if name, _ := entry["name"].(string); name != "" {
				used[name] = true
			}
		}
		counters := make(map[string]int)
		seen := make(map[string]bool, len(collection))
		for _, item := range collection {
			entry, _ := copyEntry(item)
			name, _ := entry["name"].(string)
			switch {
			case name == "":
				name = generateName(kind, counters, used)
			case seen[name]:
				name = generateName(name, counters, used)
			}
			seen[name] = true
			entry["name"] = name
			ret = append(ret, entry)
		}
		return ret, nil
	}
	return nil, errors.WithMessagef(ErrConfiguration, "%s collection must be a list or a map, got %T", kind, raw)
}

func generateName(base string, counters map[string]int, used map[string]bool) string {
	for {
		counters[base]++
		name := fmt.Sprintf("%s_auto_%d", base, counters[base])
		if !used[name] {
			used[name] = true
			return name
		}
	}
}

func copyEntry(item any) (map[string]any, error) {
	if item == nil {
		return map[string]any{}, nil
	}
	m, ok := item.(map[string]any)
	if !ok {
		return nil, errors.WithMessagef(ErrConfiguration, "entry must be a map, got %T", item)
	}
	ret := make(map[string]any, len(m)+1)
	for key, value := range m {
		ret[key] = value
	}
	return ret, nil
}

func hasTransition(transitions []*transitionConfig, name string) bool {
	for _, transition := range transitions {
		if transition.Name == name {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
