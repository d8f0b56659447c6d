package chat

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("chat: invalid request")
	ErrNotFound   = errors.New("chat: thread not found")
	ErrTransient  = errors.New("chat: temporary failure")
	ErrConflict   = errors.New("chat: conflicting thread")
)

// ValidationError 入参不合法，调用方可修正后重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chat: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError 会话不存在或当前身份无权查看，两种情况对外不做区分
type NotFoundError struct {
	ThreadID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chat: thread %d not found", e.ThreadID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransientIOError 存储或推送通道暂时不可用
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Is(target error) bool { return target == ErrTransient }

func (e *TransientIOError) Unwrap() error { return e.Err }

// ConflictError 唯一键冲突，由目录层重新查询后消化
type ConflictError struct {
	Key string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("chat: pair %s already exists", e.Key)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// transient 包装存储层错误，已分类的错误原样返回
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrTransient) {
		return err
	}
	return &TransientIOError{Op: op, Err: err}
}
