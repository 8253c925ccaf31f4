package tts

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/iabetor/jatts/internal/audio"
)

// Format 是根据文件头识别出的音频格式。
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = "unknown"
)

// Sniff 根据文件头判断音频格式。
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG 帧同步字
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// EncodePCM16 把 signed 16-bit LE 单声道 PCM 封装为 WAV。
func EncodePCM16(pcm []byte, sampleRate int) ([]byte, error) {
	return encodeInts(audio.PCM16ToInts(pcm), sampleRate, 1)
}

// EncodeFloat32 把 [-1.0, 1.0] 范围的单声道 float32 样本编码为 16-bit WAV。
func EncodeFloat32(samples []float32, sampleRate int) ([]byte, error) {
	return encodeInts(audio.Float32ToInts(samples), sampleRate, 1)
}

func encodeInts(data []int, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("无效的采样率: %d", sampleRate)
	}
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	return ws.buf, nil
}

// MP3ToWAV 将 MP3 解码并重新封装为 16-bit 单声道 WAV。
// go-mp3 始终输出 signed 16-bit LE 双声道 PCM，左右声道取平均。
func MP3ToWAV(mp3Data []byte) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Data))
	if err != nil {
		return nil, 0, fmt.Errorf("MP3 解码失败: %w", err)
	}
	sampleRate := decoder.SampleRate()

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}

	const bytesPerFrame = 4
	if len(pcm)%bytesPerFrame != 0 {
		pcm = pcm[:len(pcm)/bytesPerFrame*bytesPerFrame]
	}
	if len(pcm) == 0 {
		return nil, 0, ErrEmptyAudio
	}

	mono := audio.DownmixStereo(audio.PCM16ToInts(pcm))
	out, err := encodeInts(mono, sampleRate, 1)
	if err != nil {
		return nil, 0, err
	}
	return out, sampleRate, nil
}

// ToWAV 将后端返回的音频统一转换为 WAV，并解析采样率与时长。
func ToWAV(data []byte) (*Audio, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	switch Sniff(data) {
	case FormatWAV:
		return inspectWAV(data)
	case FormatMP3:
		out, _, err := MP3ToWAV(data)
		if err != nil {
			return nil, err
		}
		return inspectWAV(out)
	default:
		return nil, errors.New("无法识别的音频格式")
	}
}

// inspectWAV 读取 WAV 头中的采样率与时长。
func inspectWAV(data []byte) (*Audio, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, errors.New("无效的 WAV 文件")
	}
	a := &Audio{Data: data, SampleRate: int(d.SampleRate)}
	if dur, err := d.Duration(); err == nil {
		a.Duration = dur
	}
	return a, nil
}

// memWriteSeeker 是 wav.Encoder 需要的内存 io.WriteSeeker。
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, end*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("无效的 whence")
	}
	if abs < 0 {
		return 0, errors.New("负的偏移量")
	}
	m.pos = int(abs)
	return abs, nil
}
