package service

import (
	"Atelier/internal/chat"
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	TooManyRequests     = 429
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	ErrParamInvalid   = errors.New("参数错误")
	ErrRateLimited    = errors.New("发送过于频繁")
	UnauthorizedError = errors.New("权限不足")
	UnExpectedError   = errors.New("系统异常，请稍后重试")
)

// ErrorMap 错误到业务码，chat 包的类型化错误通过哨兵匹配
var ErrorMap = map[error]int{
	ErrParamInvalid:    BadRequest,
	ErrRateLimited:     TooManyRequests,
	UnauthorizedError:  Unauthorized,
	UnExpectedError:    InternalServerError,
	chat.ErrValidation: BadRequest,
	chat.ErrNotFound:   NotFound,
	chat.ErrConflict:   Conflict,
	chat.ErrTransient:  ServiceUnavailable,
}

// CodeOf 按 errors.Is 查找业务码
func CodeOf(err error) (int, bool) {
	if code, ok := ErrorMap[err]; ok {
		return code, true
	}
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code, true
		}
	}
	return 0, false
}
