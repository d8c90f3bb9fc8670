package gateway

import (
	"fmt"

	"etcapply/pkg/errorutil"
)

// TransportError 网络失败或非 2xx 响应
type TransportError struct {
	Path   string
	Body   []byte // 请求体
	Status int
	Text   string // 响应文本
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error on %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("transport error on %s: http %d: %s", e.Path, e.Status, truncate(e.Text, 200))
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind 错误类别
func (e *TransportError) Kind() errorutil.Kind { return errorutil.KindTransport }

// DecodeError 响应不是合法的 {code, msg, data}
type DecodeError struct {
	Path string
	Raw  []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error on %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind 错误类别
func (e *DecodeError) Kind() errorutil.Kind { return errorutil.KindDecode }

// BusinessError code != 200
type BusinessError struct {
	Path    string
	Code    int
	Message string
	Raw     []byte
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("business error on %s: code=%d msg=%s", e.Path, e.Code, e.Message)
}

// Kind 错误类别
func (e *BusinessError) Kind() errorutil.Kind { return errorutil.KindBusiness }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
