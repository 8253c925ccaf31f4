package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/iabetor/jatts/internal/logger"
)

// FishEngine 调用 Fish Speech API 服务（/v1/tts）。
type FishEngine struct {
	httpBackend
	cfg FishOptions
}

// FishOptions Fish Speech 请求参数。
type FishOptions struct {
	Encoding          string // msgpack 或 json
	Format            string // wav 或 mp3
	MaxNewTokens      int
	TopP              float64
	Temperature       float64
	RepetitionPenalty float64
}

// FishReference 是声音克隆用的参考音频。
type FishReference struct {
	Audio []byte `msgpack:"audio" json:"audio"`
	Text  string `msgpack:"text" json:"text"`
}

// FishRequest 是 Fish Speech /v1/tts 的请求体。
type FishRequest struct {
	Text              string          `msgpack:"text" json:"text"`
	ReferenceText     string          `msgpack:"reference_text" json:"reference_text"`
	ReferenceAudio    []byte          `msgpack:"reference_audio" json:"reference_audio"`
	References        []FishReference `msgpack:"references" json:"references"`
	Format            string          `msgpack:"format" json:"format"`
	MaxNewTokens      int             `msgpack:"max_new_tokens" json:"max_new_tokens"`
	TopP              float64         `msgpack:"top_p" json:"top_p"`
	Temperature       float64         `msgpack:"temperature" json:"temperature"`
	RepetitionPenalty float64         `msgpack:"repetition_penalty" json:"repetition_penalty"`
	Streaming         bool            `msgpack:"streaming" json:"streaming"`
}

// NewFishEngine 创建 Fish Speech 引擎。探测使用独立的短超时 probeTimeout。
func NewFishEngine(baseURL, apiKey string, timeout, probeTimeout time.Duration, opts FishOptions) *FishEngine {
	f := &FishEngine{
		httpBackend: newHTTPBackend("fish", baseURL, "/", timeout),
		cfg:         opts,
	}
	f.probeTimeout = probeTimeout
	if apiKey != "" {
		f.header.Set("Authorization", "Bearer "+apiKey)
	}
	return f
}

// Request 构造请求体：音色描述作为参考文本。
func (f *FishEngine) Request(text, description string) FishRequest {
	return FishRequest{
		Text:              text,
		ReferenceText:     description,
		References:        []FishReference{},
		Format:            f.cfg.Format,
		MaxNewTokens:      f.cfg.MaxNewTokens,
		TopP:              f.cfg.TopP,
		Temperature:       f.cfg.Temperature,
		RepetitionPenalty: f.cfg.RepetitionPenalty,
	}
}

// Synthesize 实现 Engine 接口。
func (f *FishEngine) Synthesize(ctx context.Context, text, description string) (*Audio, error) {
	logger.Debugf("[tts] fish: 正在合成 %d 个字符（%s）", len([]rune(text)), f.cfg.Encoding)

	req := f.Request(text, description)

	var (
		body        []byte
		contentType string
		err         error
	)
	switch strings.ToLower(f.cfg.Encoding) {
	case "json":
		body, err = json.Marshal(req)
		contentType = "application/json"
	default:
		body, err = msgpack.Marshal(req)
		contentType = "application/msgpack"
	}
	if err != nil {
		return nil, fmt.Errorf("[tts] fish 序列化请求失败: %w", err)
	}

	data, _, err := f.post(ctx, "/v1/tts", contentType, body, func(status int, errBody []byte) error {
		return fmt.Errorf("Fish Speech API error: %d - %s", status, strings.TrimSpace(string(errBody)))
	})
	if err != nil {
		return nil, err
	}

	out, err := ToWAV(data)
	if err != nil {
		return nil, fmt.Errorf("[tts] fish: %w", err)
	}

	logger.Debugf("[tts] fish: 收到 %d 字节音频，采样率 %d Hz", len(out.Data), out.SampleRate)
	return out, nil
}
