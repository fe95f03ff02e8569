package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound 会话不存在（或已过期被回收）
	ErrSessionNotFound = errors.New("构建器会话不存在")

	// ErrUnauthorized 调用者不是会话的所有者
	ErrUnauthorized = errors.New("无权访问该构建器会话")

	// ErrResumeNotFound 简历记录不存在
	ErrResumeNotFound = errors.New("简历不存在")
)

// ValidationError 请求参数校验失败，携带具体字段信息
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: 字段 %s %s", e.Field, e.Message)
}

// NewValidationError 创建一个字段级校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError 持久化写入失败。会话以持久存储为准，
// 该错误出现时调用方必须放弃本次状态变更。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("持久化操作 %s 失败: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
