package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/jatts/internal/logger"
)

// CanaryEngine 调用 Canary TTS 推理服务。
// 服务端用 chat 模板生成音频 token 并经 XCodec2 解码；
// 返回 WAV，或 16-bit LE 单声道原始 PCM（由本端封装为 WAV）。
type CanaryEngine struct {
	httpBackend
	params     CanaryParams
	sampleRate int
}

// CanaryParams 是固定的采样参数。
type CanaryParams struct {
	MaxNewTokens      int
	TopP              float64
	Temperature       float64
	RepetitionPenalty float64
}

// ChatMessage 是 chat 模板中的一条消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type canaryRequest struct {
	Messages          []ChatMessage `json:"messages"`
	MaxNewTokens      int           `json:"max_new_tokens"`
	TopP              float64       `json:"top_p"`
	Temperature       float64       `json:"temperature"`
	RepetitionPenalty float64       `json:"repetition_penalty"`
}

// NewCanaryEngine 创建 Canary 引擎。sampleRate 为原始 PCM 响应的采样率（XCodec2 为 16000）。
func NewCanaryEngine(baseURL string, timeout time.Duration, params CanaryParams, sampleRate int) *CanaryEngine {
	return &CanaryEngine{
		httpBackend: newHTTPBackend("canary", baseURL, "/health", timeout),
		params:      params,
		sampleRate:  sampleRate,
	}
}

// Messages 构造 chat 消息：音色描述作为 system，文本作为 user。
func (c *CanaryEngine) Messages(text, description string) []ChatMessage {
	return []ChatMessage{
		{Role: "system", Content: description},
		{Role: "user", Content: text},
	}
}

// Synthesize 实现 Engine 接口。
func (c *CanaryEngine) Synthesize(ctx context.Context, text, description string) (*Audio, error) {
	logger.Debugf("[tts] canary: 正在合成 %d 个字符", len([]rune(text)))

	body, err := json.Marshal(canaryRequest{
		Messages:          c.Messages(text, description),
		MaxNewTokens:      c.params.MaxNewTokens,
		TopP:              c.params.TopP,
		Temperature:       c.params.Temperature,
		RepetitionPenalty: c.params.RepetitionPenalty,
	})
	if err != nil {
		return nil, fmt.Errorf("[tts] canary 序列化请求失败: %w", err)
	}

	data, contentType, err := c.post(ctx, "/v1/generate", "application/json", body, c.serviceError)
	if err != nil {
		return nil, fmt.Errorf("[tts] canary: %w", err)
	}

	if rate, ok := c.rawPCMRate(contentType); ok && Sniff(data) != FormatWAV {
		logger.Debugf("[tts] canary: 收到 %d 字节原始 PCM，按 %d Hz 封装", len(data), rate)
		if data, err = EncodePCM16(data, rate); err != nil {
			return nil, fmt.Errorf("[tts] canary: %w", err)
		}
	}

	out, err := ToWAV(data)
	if err != nil {
		return nil, fmt.Errorf("[tts] canary: %w", err)
	}
	return out, nil
}

// rawPCMRate 判断响应是否为原始 PCM，并返回采样率。
// audio/L16;rate=24000 形式可覆盖默认采样率。
func (c *CanaryEngine) rawPCMRate(contentType string) (int, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(mediaType) {
	case "audio/l16", "audio/pcm", "application/octet-stream":
	default:
		return 0, false
	}
	rate := c.sampleRate
	if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
		rate = r
	}
	return rate, true
}
