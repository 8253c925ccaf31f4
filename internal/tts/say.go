package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/iabetor/jatts/internal/logger"
)

// SayEngine 使用 macOS 内置 say 命令合成，作为离线备用方案。仅在 macOS 上可用。
type SayEngine struct {
	voice string // macOS 语音名称，如 "Kyoko"（日语）
}

// NewSayEngine 创建 macOS say 引擎。voice 为空时使用系统默认语音。
func NewSayEngine(voice string) *SayEngine {
	return &SayEngine{voice: voice}
}

// Probe 检查 say 与 afconvert 是否存在。
func (s *SayEngine) Probe(context.Context) error {
	if runtime.GOOS != "darwin" {
		return errors.New("say 仅在 macOS 上可用")
	}
	for _, bin := range []string{"say", "afconvert"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("未找到 %s: %w", bin, err)
		}
	}
	return nil
}

// command 构造 say 命令。文本经 stdin 传入（-f -），以 "-" 开头的文本不会被当作选项解析。
func (s *SayEngine) command(ctx context.Context, aiffPath, text string) *exec.Cmd {
	args := []string{"-o", aiffPath}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, "-f", "-")

	cmd := exec.CommandContext(ctx, "say", args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd
}

// Synthesize 实现 Engine 接口。say 先输出 AIFF，再用 afconvert 转为 16-bit LE WAV。
func (s *SayEngine) Synthesize(ctx context.Context, text, _ string) (*Audio, error) {
	logger.Debugf("[tts] say: 正在合成 %d 个字符", len([]rune(text)))

	tmpFile, err := os.CreateTemp("", "jatts-say-*.aiff")
	if err != nil {
		return nil, fmt.Errorf("[tts] say: 创建临时文件失败: %w", err)
	}
	aiffPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(aiffPath)

	wavPath := aiffPath + ".wav"
	defer os.Remove(wavPath)

	cmd := s.command(ctx, aiffPath, text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("[tts] say 执行失败: %w, stderr: %s", err, stderr.String())
	}

	convertCmd := exec.CommandContext(ctx, "afconvert",
		"-f", "WAVE",
		"-d", "LEI16@22050",
		"-c", "1",
		aiffPath, wavPath,
	)
	var convertStderr bytes.Buffer
	convertCmd.Stderr = &convertStderr
	if err := convertCmd.Run(); err != nil {
		return nil, fmt.Errorf("[tts] afconvert 执行失败: %w, stderr: %s", err, convertStderr.String())
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("[tts] say: 读取输出文件失败: %w", err)
	}

	logger.Debugf("[tts] say: 收到 %d 字节 WAV", len(data))
	return ToWAV(data)
}
