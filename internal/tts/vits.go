package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/jatts/internal/logger"
)

// VitsEngine 使用 sherpa-onnx 离线 VITS 模型在本地合成，不依赖推理服务。
// 模型目录需包含 model.onnx 与 tokens.txt，可选 lexicon.txt 与 espeak-ng-data/。
type VitsEngine struct {
	mu        sync.Mutex
	tts       *sherpa.OfflineTts
	speakerID int
	speed     float32
}

// NewVitsEngine 加载 VITS 模型。
func NewVitsEngine(modelDir string, numThreads, speakerID int, speed float32) (*VitsEngine, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("[tts] vits 模型文件不存在: %w", err)
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = modelPath
	config.Model.Vits.Tokens = filepath.Join(modelDir, "tokens.txt")
	if p := filepath.Join(modelDir, "lexicon.txt"); fileExists(p) {
		config.Model.Vits.Lexicon = p
	}
	if p := filepath.Join(modelDir, "espeak-ng-data"); fileExists(p) {
		config.Model.Vits.DataDir = p
	}
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = numThreads
	config.Model.Provider = "cpu"
	config.MaxNumSentences = 1

	t := sherpa.NewOfflineTts(&config)
	if t == nil {
		return nil, fmt.Errorf("[tts] 创建离线 TTS 失败，模型路径: %s", modelDir)
	}

	if speed <= 0 {
		speed = 1.0
	}

	logger.Infof("[tts] vits 引擎已初始化 (model=%s, threads=%d, sid=%d)", modelDir, numThreads, speakerID)
	return &VitsEngine{tts: t, speakerID: speakerID, speed: speed}, nil
}

// Synthesize 实现 Engine 接口。VITS 不使用音色描述。
func (v *VitsEngine) Synthesize(ctx context.Context, text, _ string) (*Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tts == nil {
		return nil, fmt.Errorf("[tts] vits 引擎已关闭")
	}

	logger.Debugf("[tts] vits: 正在合成 %d 个字符", len([]rune(text)))
	generated := v.tts.Generate(text, v.speakerID, v.speed)
	if generated == nil || len(generated.Samples) == 0 {
		return nil, ErrEmptyAudio
	}

	data, err := EncodeFloat32(generated.Samples, generated.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("[tts] vits: %w", err)
	}
	return ToWAV(data)
}

// Close 释放底层 sherpa-onnx 资源。
func (v *VitsEngine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tts != nil {
		sherpa.DeleteOfflineTts(v.tts)
		v.tts = nil
		logger.Info("[tts] vits 引擎已关闭")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
