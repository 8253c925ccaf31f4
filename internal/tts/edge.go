package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/jatts/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 合成日语，
// 通过 edge-tts-go 获取 MP3 音频，再转为 WAV。
type EdgeEngine struct {
	voice string
}

// NewEdgeEngine 创建指定语音的 Edge TTS 引擎，如 ja-JP-NanamiNeural。
func NewEdgeEngine(voice string) *EdgeEngine {
	return &EdgeEngine{voice: voice}
}

// Synthesize 实现 Engine 接口。Edge TTS 只按语音名选择音色，忽略描述。
func (e *EdgeEngine) Synthesize(ctx context.Context, text, _ string) (*Audio, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), e.voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(e.voice))
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}
	if mp3Buf.Len() == 0 {
		return nil, fmt.Errorf("[tts] edge-tts: %w", ErrEmptyAudio)
	}

	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())

	wavData, _, err := MP3ToWAV(mp3Buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts: %w", err)
	}
	return ToWAV(wavData)
}
