package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/iabetor/jatts/internal/logger"
)

// GoogleEngine 使用 Google Cloud Text-to-Speech，请求 LINEAR16（带 WAV 头）。
type GoogleEngine struct {
	client       *texttospeech.Client
	voice        string
	language     string
	speakingRate float64
	sampleRate   int32
}

// NewGoogleEngine 创建 Google TTS 引擎。credentialsFile 为空时使用默认凭据。
func NewGoogleEngine(ctx context.Context, credentialsFile, voice string, speakingRate float64, sampleRate int) (*GoogleEngine, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建 Google TTS 客户端失败: %w", err)
	}

	return &GoogleEngine{
		client:       client,
		voice:        voice,
		language:     languageOfVoice(voice),
		speakingRate: speakingRate,
		sampleRate:   int32(sampleRate),
	}, nil
}

// languageOfVoice 从语音名（如 ja-JP-Neural2-B）提取语言代码。
func languageOfVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 2 {
		return "ja-JP"
	}
	return parts[0] + "-" + parts[1]
}

// Synthesize 实现 Engine 接口。
func (g *GoogleEngine) Synthesize(ctx context.Context, text, _ string) (*Audio, error) {
	logger.Debugf("[tts] google: 正在合成 %d 个字符，语音=%s", len([]rune(text)), g.voice)

	req := texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SpeakingRate:    g.speakingRate,
			SampleRateHertz: g.sampleRate,
		},
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("[tts] google 合成失败: %w", err)
	}
	return ToWAV(resp.AudioContent)
}

// Close 关闭 gRPC 连接。
func (g *GoogleEngine) Close() error {
	return g.client.Close()
}
