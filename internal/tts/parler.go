package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iabetor/jatts/internal/logger"
)

// ParlerEngine 调用 Parler TTS 推理服务。
// 服务端持有 japanese-parler-tts 模型与两个分词器，接受音色描述与已注音文本，返回 WAV。
type ParlerEngine struct {
	httpBackend
}

// parlerRequest 是推理服务 /v1/generate 的请求体。
type parlerRequest struct {
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// NewParlerEngine 创建 Parler 引擎。
func NewParlerEngine(baseURL string, timeout time.Duration) *ParlerEngine {
	return &ParlerEngine{httpBackend: newHTTPBackend("parler", baseURL, "/health", timeout)}
}

// Synthesize 实现 Engine 接口。
func (p *ParlerEngine) Synthesize(ctx context.Context, text, description string) (*Audio, error) {
	logger.Debugf("[tts] parler: 正在合成 %d 个字符", len([]rune(text)))

	body, err := json.Marshal(parlerRequest{Description: description, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("[tts] parler 序列化请求失败: %w", err)
	}

	data, _, err := p.post(ctx, "/v1/generate", "application/json", body, p.serviceError)
	if err != nil {
		return nil, fmt.Errorf("[tts] parler: %w", err)
	}

	out, err := ToWAV(data)
	if err != nil {
		return nil, fmt.Errorf("[tts] parler: %w", err)
	}

	logger.Debugf("[tts] parler: 收到 %d 字节 WAV，采样率 %d Hz", len(out.Data), out.SampleRate)
	return out, nil
}
