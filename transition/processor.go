package transition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Processor 迁移请求的一个处理步骤
type Processor interface {
	Name() string
	// Applicable 只看上下文, 不能有副作用
	Applicable(tc *Context) bool
	Process(ctx context.Context, tc *Context) error
}

// Pipeline 按顺序执行 processor, 上下文被标记为已处理之后停止
type Pipeline struct {
	processors []Processor
}

func NewPipeline(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Add 追加到末尾
func (p *Pipeline) Add(processors ...Processor) {
	p.processors = append(p.processors, processors...)
}

func (p *Pipeline) Processors() []Processor {
	ret := make([]Processor, len(p.processors))
	copy(ret, p.processors)
	return ret
}

/**
 * @description: 执行 pipeline
 *				 ErrProcessorMisconfigured 直接返回, 其他错误写入 tc.Error 交给后面的 processor 处理
 *				 所有 processor 执行完还没有结果也视为配置错误
 * @param ctx context.Context
 * @param tc *Context
 * @return error
 */
func (p *Pipeline) Process(ctx context.Context, tc *Context) error {
	if tc == nil {
		return errors.WithMessage(ErrProcessorMisconfigured, "transition context is nil")
	}
	for _, processor := range p.processors {
		if tc.IsProcessed() {
			return nil
		}
		if !processor.Applicable(tc) {
			continue
		}
		if err := processor.Process(ctx, tc); err != nil {
			if IsMisconfigured(err) {
				return errors.WithMessagef(err, "processor %s", processor.Name())
			}
			slog.WarnContext(ctx, fmt.Sprintf("transition processor %s failed, err: %v", processor.Name(), err),
				slog.String("transition", tc.TransitionName))
			tc.Error = err
		}
	}
	if !tc.IsProcessed() {
		return errors.WithMessagef(ErrProcessorMisconfigured, "no processor produced a result for transition %s", tc.TransitionName)
	}
	return nil
}

// ProcessorFunc 用函数实现 Processor
type ProcessorFunc struct {
	ProcessorName string
	ApplicableFn  func(tc *Context) bool
	ProcessFn     func(ctx context.Context, tc *Context) error
}

func (p *ProcessorFunc) Name() string {
	return p.ProcessorName
}

func (p *ProcessorFunc) Applicable(tc *Context) bool {
	if p.ApplicableFn == nil {
		return true
	}
	return p.ApplicableFn(tc)
}

func (p *ProcessorFunc) Process(ctx context.Context, tc *Context) error {
	if p.ProcessFn == nil {
		return nil
	}
	return p.ProcessFn(ctx, tc)
}
