package tts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable 表示请求的后端不存在或当前不可用。
	ErrUnavailable = errors.New("backend not available")
	// ErrEmptyAudio 表示后端返回了空音频。
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Audio 是一次合成的结果，Data 始终为完整的 WAV 文件内容。
type Audio struct {
	Data       []byte
	SampleRate int
	Duration   time.Duration
}

// Engine 定义语音合成后端接口。
type Engine interface {
	// Synthesize 将（已注音的）文本按 description 描述的音色合成为 WAV。
	// 不支持音色描述的后端忽略 description。
	Synthesize(ctx context.Context, text, description string) (*Audio, error)
}

// Prober 由需要探测远端服务可用性的后端实现。
type Prober interface {
	Probe(ctx context.Context) error
}

// Closer 由持有本地资源（模型、客户端连接）的后端实现。
type Closer interface {
	Close() error
}
