package transition

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// FormDataProvider 自定义表单的数据来源
type FormDataProvider interface {
	GetData(ctx context.Context, tc *Context) (map[string]any, error)
}

type FormDataProviderFunc func(ctx context.Context, tc *Context) (map[string]any, error)

func (f FormDataProviderFunc) GetData(ctx context.Context, tc *Context) (map[string]any, error) {
	return f(ctx, tc)
}

// FormDataProviderRegistry 按名字注册 provider
type FormDataProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]FormDataProvider
}

func NewFormDataProviderRegistry() *FormDataProviderRegistry {
	return &FormDataProviderRegistry{providers: make(map[string]FormDataProvider)}
}

func (r *FormDataProviderRegistry) Register(name string, provider FormDataProvider) error {
	if name == "" || provider == nil {
		return errors.WithMessage(ErrProcessorMisconfigured, "form data provider name and provider are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		return errors.WithMessagef(ErrProcessorMisconfigured, "form data provider %s already registered", name)
	}
	r.providers[name] = provider
	return nil
}

func (r *FormDataProviderRegistry) Get(name string) (FormDataProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(ErrFormDataProviderNotFound, "provider %s", name)
	}
	return provider, nil
}
