package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"etcapply/pkg/logger"
)

// 固定请求头
const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "application/json, text/plain, */*"
	defaultTimeout = 30 * time.Second
	successCode    = 200
)

// Options 客户端参数
type Options struct {
	BaseURL string
	Cookies map[string]string // 带外下发的会话 cookie
	Timeout time.Duration
	Logger  logger.Logger
}

// Client 后台接口客户端，持有一份 cookie 会话，不在申请之间共享
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// Result 解码后的响应 {code, msg, data}
type Result struct {
	Code int
	Msg  string
	Data json.RawMessage
	Raw  []byte
}

// New 创建客户端，cookie 写入 base URL 对应的 cookie jar
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar failed: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(opts.Cookies))
	for name, value := range opts.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(base, cookies)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		baseURL: base.String(),
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		logger: log,
	}, nil
}

// Post 发送 JSON POST，code==200 视为成功
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Result, error) {
	start := time.Now()

	// 1. 序列化请求体
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body failed: %w", err)
	}

	// 2. 构造请求
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	// 3. 发起请求
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnf(ctx, "[Gateway] POST %s failed: %v cost=%s", path, err, time.Since(start))
		return nil, &TransportError{Path: path, Body: payload, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Path: path, Body: payload, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warnf(ctx, "[Gateway] POST %s status=%d cost=%s", path, resp.StatusCode, time.Since(start))
		return nil, &TransportError{Path: path, Body: payload, Status: resp.StatusCode, Text: string(raw)}
	}

	// 4. 解码 {code, msg, data}
	result, err := decodeResult(path, raw)
	if err != nil {
		c.logger.Warnf(ctx, "[Gateway] POST %s decode failed: %v", path, err)
		return nil, err
	}

	c.logger.Infof(ctx, "[Gateway] POST %s code=%d cost=%s", path, result.Code, time.Since(start))

	// 5. 业务错误
	if result.Code != successCode {
		return nil, &BusinessError{Path: path, Code: result.Code, Message: result.Msg, Raw: raw}
	}
	return result, nil
}

func decodeResult(path string, raw []byte) (*Result, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &DecodeError{Path: path, Raw: raw, Err: err}
	}

	codeRaw, ok := envelope["code"]
	if !ok {
		return nil, &DecodeError{Path: path, Raw: raw, Err: errors.New("missing code")}
	}
	var code float64
	if err := json.Unmarshal(codeRaw, &code); err != nil {
		return nil, &DecodeError{Path: path, Raw: raw, Err: fmt.Errorf("code is not a number: %s", codeRaw)}
	}
	if code != math.Trunc(code) || math.Abs(code) > math.MaxInt32 {
		return nil, &DecodeError{Path: path, Raw: raw, Err: fmt.Errorf("code is not an integer: %s", codeRaw)}
	}

	result := &Result{
		Code: int(code),
		Data: envelope["data"],
		Raw:  raw,
	}
	for _, key := range []string{"msg", "message"} {
		var msg string
		if v, ok := envelope[key]; ok && json.Unmarshal(v, &msg) == nil && msg != "" {
			result.Msg = msg
			break
		}
	}
	return result, nil
}

// decodeData 把 data 解到 out，data 为空时不报错
func decodeData(path string, res *Result, out interface{}) error {
	if len(res.Data) == 0 || string(res.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return &DecodeError{Path: path, Raw: res.Raw, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}
