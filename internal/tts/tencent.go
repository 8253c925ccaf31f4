package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tcvoice "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/jatts/internal/logger"
)

const (
	// tencentLanguageJapanese 是 PrimaryLanguage 中日语的取值。
	tencentLanguageJapanese = 3
	tencentSampleRate       = 16000
)

// TencentEngine 使用腾讯云 TTS 合成日语，直接请求 WAV 编码。
type TencentEngine struct {
	client    *tcvoice.Client
	voiceType int64
}

// TencentOptions 腾讯云 TTS 配置。
type TencentOptions struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(opts TencentOptions) (*TencentEngine, error) {
	if opts.SecretID == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	if opts.Region == "" {
		opts.Region = "ap-guangzhou"
	}

	credential := common.NewCredential(opts.SecretID, opts.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tcvoice.NewClient(credential, opts.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建腾讯云 TTS 客户端失败: %w", err)
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (voice=%d, region=%s)", opts.VoiceType, opts.Region)
	return &TencentEngine{client: client, voiceType: opts.VoiceType}, nil
}

// Synthesize 实现 Engine 接口。
func (e *TencentEngine) Synthesize(ctx context.Context, text, _ string) (*Audio, error) {
	logger.Debugf("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d", len([]rune(text)), e.voiceType)

	request := tcvoice.NewTextToVoiceRequest()
	request.Text = common.StringPtr(text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(e.voiceType)
	request.PrimaryLanguage = common.Int64Ptr(tencentLanguageJapanese)
	request.Codec = common.StringPtr("wav")
	request.SampleRate = common.Uint64Ptr(tencentSampleRate)
	request.Speed = common.Float64Ptr(0)
	request.Volume = common.Float64Ptr(0)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 合成失败: %w", err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS: %w", ErrEmptyAudio)
	}

	data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, fmt.Errorf("[tts] Base64 解码失败: %w", err)
	}

	logger.Debugf("[tts] 腾讯云 TTS: 收到 %d 字节 WAV 数据", len(data))
	return ToWAV(data)
}
