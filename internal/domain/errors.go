package domain

import (
	"errors"
	"fmt"
)

// 错误分类（errors.Is 按 Kind 判断）
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthenticated")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Msg: msg} }

func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Msg: msg} }

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

// ConflictFrom 保留底层错误（通常是唯一索引冲突）
func ConflictFrom(err error, msg string) error {
	return &Error{Kind: ErrConflict, Msg: msg, Err: err}
}
