package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/iabetor/jatts/internal/logger"
)

// OpenAIEngine 调用 OpenAI 兼容的 /audio/speech 接口。
type OpenAIEngine struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	speed  float64
}

// NewOpenAIEngine 创建 OpenAI 语音合成引擎。baseURL 为空时使用官方地址。
func NewOpenAIEngine(apiKey, baseURL, model, voice string, speed float64) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("[tts] OpenAI TTS 需要 api_key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
		speed:  speed,
	}, nil
}

// Synthesize 实现 Engine 接口。
func (o *OpenAIEngine) Synthesize(ctx context.Context, text, _ string) (*Audio, error) {
	logger.Debugf("[tts] openai: 正在合成 %d 个字符，模型=%s 语音=%s", len([]rune(text)), o.model, o.voice)

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Voice:          o.voice,
		Speed:          o.speed,
		ResponseFormat: openai.SpeechResponseFormatWav,
		Input:          text,
	})
	if err != nil {
		return nil, fmt.Errorf("[tts] openai 合成失败: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("[tts] openai 读取音频失败: %w", err)
	}
	return ToWAV(data)
}
