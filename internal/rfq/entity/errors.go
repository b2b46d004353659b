package entity

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Transient failures, retried by the sync client.
	ErrTimeout = errors.New("远端请求超时")
	ErrNetwork = errors.New("网络异常")

	// ErrCancelled marks a request superseded by a newer one. It is never
	// surfaced to the user.
	ErrCancelled = errors.New("请求已被取代")

	ErrRetriesExhausted = errors.New("重试次数已用尽")
	ErrPermissionDenied = errors.New("无权限")
	ErrNotFound         = errors.New("询价单不存在")

	ErrValidation           = errors.New("参数校验失败")
	ErrEmptySelection       = fmt.Errorf("%w: 未选择询价单", ErrValidation)
	ErrNoPricedLineItem     = fmt.Errorf("%w: 至少需要为一个行项报价", ErrValidation)
	ErrConfirmationRequired = fmt.Errorf("%w: 确认后才能批准", ErrValidation)
	ErrUnknownLineItem      = fmt.Errorf("%w: 行项不存在", ErrValidation)

	ErrInvalidTransition = errors.New("不允许的状态流转")
	ErrHistoryRewrite    = errors.New("议价记录只能追加")
	// ErrStaleWrite rejects a write computed from an outdated copy of the quote.
	ErrStaleWrite = errors.New("询价单已被修改")
)

// IsCancelled reports whether err means the request was superseded or its
// caller went away.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsTransient reports whether err is a timeout or network failure rather than
// an answer from the store.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded)
}
