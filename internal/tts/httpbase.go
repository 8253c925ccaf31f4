package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// maxErrorBody 限制错误响应体读取长度，避免把整段 HTML 错误页写进日志。
const maxErrorBody = 2048

// httpBackend 封装远端推理服务的通用 HTTP 调用：
// 健康探测、POST 请求、错误响应解析。
type httpBackend struct {
	name         string
	baseURL      string
	probePath    string
	probeTimeout time.Duration
	client       *http.Client
	header       http.Header
}

func newHTTPBackend(name, baseURL, probePath string, timeout time.Duration) httpBackend {
	return httpBackend{
		name:      name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		probePath: probePath,
		client:    &http.Client{Timeout: timeout},
		header:    make(http.Header),
	}
}

// Probe 请求健康检查地址，返回 200 视为可用。
func (h *httpBackend) Probe(ctx context.Context) error {
	if h.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.probeTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+h.probePath, http.NoBody)
	if err != nil {
		return fmt.Errorf("创建健康检查请求失败: %w", err)
	}
	for k, v := range h.header {
		req.Header[k] = v
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s 服务 %s 无法访问: %w", h.name, h.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s 健康检查返回状态 %s", h.name, resp.Status)
	}
	return nil
}

// post 发送请求体并返回响应内容与 Content-Type。非 200 状态交给 onError 生成错误。
func (h *httpBackend) post(ctx context.Context, path, contentType string, body []byte,
	onError func(status int, body []byte) error) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range h.header {
		req.Header[k] = v
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("请求 %s 服务 %s 失败: %w", h.name, h.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", onError(resp.StatusCode, errBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("读取音频数据失败: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyAudio
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// serviceError 生成通用的服务错误。结构化 JSON 错误体中的 detail / message / error
// 字段优先，否则使用原始响应体。
func (h *httpBackend) serviceError(status int, body []byte) error {
	return fmt.Errorf("%s service error: %d - %s", h.name, status, errorDetail(body))
}

// errorDetail 从 JSON 错误体中提取可读信息。
func errorDetail(body []byte) string {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			field := v.Get(key)
			if field == nil {
				continue
			}
			if field.Type() == fastjson.TypeString {
				return string(field.GetStringBytes())
			}
			// {"error": {"message": "..."}} 形式
			if msg := field.GetStringBytes("message"); len(msg) > 0 {
				return string(msg)
			}
			return field.String()
		}
	}
	return strings.TrimSpace(string(body))
}
