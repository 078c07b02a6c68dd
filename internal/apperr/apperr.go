// Package apperr 定义积分系统对调用方暴露的错误分类。
//
// 所有业务错误都可以通过 errors.Is 归类到以下几种之一：
//
//	ErrNotFound          钱包、活动、会员关系、俱乐部不存在
//	ErrInvalidState      重复结算、重算已锁定的月度快照、操作已停用的钱包
//	ErrInsufficientFunds 扣减后余额会变成负数
//	ErrConflict          并发创建重复记录
//	ErrInvalidArgument   参数不合法
//
// 策略匹配不到（PolicyGap）不是错误，解析器返回默认倍率 1.0。
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Error 带分类的业务错误，Error() 只返回业务描述
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// New 创建归属于 kind 的错误
func New(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf 同 New，支持格式化
func Newf(kind error, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf 返回 err 所属的分类，无法归类时返回 nil
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalidState, ErrInsufficientFunds, ErrConflict, ErrInvalidArgument} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
