package transition

import (
	"github.com/pkg/errors"
)

var (
	// ErrProcessorMisconfigured 开发人员的配置错误, pipeline 直接中止
	ErrProcessorMisconfigured   = errors.New("transition processor misconfigured")
	ErrFormDataProviderNotFound = errors.New("form data provider not found")
	ErrFormInvalid              = errors.New("transition form invalid")
)

func IsMisconfigured(err error) bool {
	return errors.Is(err, ErrProcessorMisconfigured)
}
