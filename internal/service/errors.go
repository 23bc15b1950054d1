package service

import (
	"errors"
	"fmt"
)

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// ErrEmptyCompletion 表示模型返回了空文本。
var ErrEmptyCompletion = errors.New("empty completion")

// ValidationError 表示请求体格式不合法，调用方应返回 400。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError 构造 ValidationError。
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError 表示某个日期的写入失败，只影响该日期。
type StorageError struct {
	Date string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Date, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
