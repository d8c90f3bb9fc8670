package errorutil

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindUnknown           Kind = "Unknown"
	KindMissingField      Kind = "MissingField"
	KindParse             Kind = "ParseError"
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindTransport         Kind = "TransportError"
	KindDecode            Kind = "DecodeError"
	KindBusiness          Kind = "BusinessError"
	KindDatabase          Kind = "DatabaseError"
	KindProgrammer        Kind = "ProgrammerError"
)

// Kinded 可以报告自身类别的错误
type Kinded interface {
	error
	Kind() Kind
}

// Error 通用错误结构
type Error struct {
	Kind       Kind   `json:"kind"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	DevDetails string `json:"dev_details,omitempty"`
	Err        error  `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建指定类别的错误
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    codeOf(kind),
		Message: message,
	}
}

// Wrap 包装错误并标记类别
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Code:       codeOf(kind),
		Message:    message,
		DevDetails: fmt.Sprintf("%+v", err),
		Err:        err,
	}
}

// KindOf 识别错误类别（沿 Unwrap 链查找第一个带类别的错误）
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok {
			return e.Kind
		}
		if k, ok := cur.(Kinded); ok {
			return k.Kind()
		}
	}
	return KindUnknown
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(err error) int {
	return codeOf(KindOf(err))
}

func codeOf(kind Kind) int {
	switch kind {
	case KindMissingField, KindParse, KindUnsupportedFormat:
		return 400
	case KindBusiness:
		return 422
	case KindTransport, KindDecode:
		return 502
	default:
		return 500
	}
}
