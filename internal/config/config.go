package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// envPrefix 是环境变量覆盖的统一前缀，如 JATTS_SERVER_LISTEN。
const envPrefix = "JATTS_"

// Config 是 jatts 的顶层配置结构。
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Audio    AudioConfig    `yaml:"audio" toml:"audio" envPrefix:"AUDIO_"`
	Text     TextConfig     `yaml:"text" toml:"text"`
	Backends BackendsConfig `yaml:"backends" toml:"backends" envPrefix:"BACKENDS_"`
	History  HistoryConfig  `yaml:"history" toml:"history" envPrefix:"HISTORY_"`
	NATS     NATSConfig     `yaml:"nats" toml:"nats" envPrefix:"NATS_"`
	Log      LogConfig      `yaml:"log" toml:"log" envPrefix:"LOG_"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Listen string `yaml:"listen" toml:"listen" env:"LISTEN"`
	// ReadTimeout / WriteTimeout 单位为秒。
	// 合成可能耗时较长，WriteTimeout 需大于最慢后端的超时。
	ReadTimeout  int `yaml:"read_timeout" toml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout int `yaml:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT"`

	// RateLimit 为 /generate 每秒允许的请求数，0 表示不限流。
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst" env:"RATE_BURST"`

	// MaxPromptChars 单次合成允许的最大字符数（按 rune 计）。0 取默认值 1000，负数表示不限长度。
	MaxPromptChars int `yaml:"max_prompt_chars" toml:"max_prompt_chars" env:"MAX_PROMPT_CHARS"`
}

// AudioConfig 生成音频文件的存放配置。
type AudioConfig struct {
	// Dir 为空时使用系统临时目录。
	Dir string `yaml:"dir" toml:"dir" env:"DIR"`
	// Retention 音频保留时长（分钟），0 表示永不清理。
	Retention int `yaml:"retention" toml:"retention" env:"RETENTION"`
	// SweepInterval 清理间隔（分钟）。
	SweepInterval int `yaml:"sweep_interval" toml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// TextConfig 文本预处理配置。
type TextConfig struct {
	// Ruby 是否为汉字插入振假名注音，未设置时默认开启。
	Ruby *bool `yaml:"ruby" toml:"ruby"`
}

// RubyEnabled 返回是否启用振假名注音。
func (t TextConfig) RubyEnabled() bool {
	return t.Ruby == nil || *t.Ruby
}

// BackendsConfig 各 TTS 后端配置。
type BackendsConfig struct {
	// Default 是表单未指定 model 时使用的后端。
	Default string `yaml:"default" toml:"default" env:"DEFAULT"`

	Parler  ParlerConfig  `yaml:"parler" toml:"parler" envPrefix:"PARLER_"`
	Canary  CanaryConfig  `yaml:"canary" toml:"canary" envPrefix:"CANARY_"`
	Fish    FishConfig    `yaml:"fish" toml:"fish" envPrefix:"FISH_"`
	Vits    VitsConfig    `yaml:"vits" toml:"vits" envPrefix:"VITS_"`
	Edge    EdgeConfig    `yaml:"edge" toml:"edge" envPrefix:"EDGE_"`
	Tencent TencentConfig `yaml:"tencent" toml:"tencent" envPrefix:"TENCENT_"`
	OpenAI  OpenAIConfig  `yaml:"openai" toml:"openai" envPrefix:"OPENAI_"`
	Google  GoogleConfig  `yaml:"google" toml:"google" envPrefix:"GOOGLE_"`
	Say     SayConfig     `yaml:"say" toml:"say" envPrefix:"SAY_"`
}

// ParlerConfig Parler TTS 推理服务配置。
// parler、canary、fish 默认始终注册，可通过 disabled 关闭。
type ParlerConfig struct {
	Disabled bool   `yaml:"disabled" toml:"disabled" env:"DISABLED"`
	URL      string `yaml:"url" toml:"url" env:"URL"`
	Timeout  int    `yaml:"timeout" toml:"timeout" env:"TIMEOUT"` // 秒
}

// CanaryConfig Canary TTS 推理服务配置。
type CanaryConfig struct {
	Disabled          bool    `yaml:"disabled" toml:"disabled" env:"DISABLED"`
	URL               string  `yaml:"url" toml:"url" env:"URL"`
	Timeout           int     `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	MaxNewTokens      int     `yaml:"max_new_tokens" toml:"max_new_tokens"`
	TopP              float64 `yaml:"top_p" toml:"top_p"`
	Temperature       float64 `yaml:"temperature" toml:"temperature"`
	RepetitionPenalty float64 `yaml:"repetition_penalty" toml:"repetition_penalty"`
	SampleRate        int     `yaml:"sample_rate" toml:"sample_rate"`
}

// FishConfig Fish Speech API 服务配置。
type FishConfig struct {
	Disabled          bool    `yaml:"disabled" toml:"disabled" env:"DISABLED"`
	URL               string  `yaml:"url" toml:"url" env:"URL"`
	APIKey            string  `yaml:"api_key" toml:"api_key" env:"API_KEY"`
	Timeout           int     `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	ProbeTimeout      int     `yaml:"probe_timeout" toml:"probe_timeout"`
	Encoding          string  `yaml:"encoding" toml:"encoding"` // msgpack 或 json
	Format            string  `yaml:"format" toml:"format"`     // wav 或 mp3
	MaxNewTokens      int     `yaml:"max_new_tokens" toml:"max_new_tokens"`
	TopP              float64 `yaml:"top_p" toml:"top_p"`
	Temperature       float64 `yaml:"temperature" toml:"temperature"`
	RepetitionPenalty float64 `yaml:"repetition_penalty" toml:"repetition_penalty"`
}

// VitsConfig 本地 sherpa-onnx VITS 模型配置。
type VitsConfig struct {
	Enabled    bool    `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	ModelDir   string  `yaml:"model_dir" toml:"model_dir" env:"MODEL_DIR"`
	NumThreads int     `yaml:"num_threads" toml:"num_threads"`
	SpeakerID  int     `yaml:"speaker_id" toml:"speaker_id"`
	Speed      float32 `yaml:"speed" toml:"speed"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Voice   string `yaml:"voice" toml:"voice" env:"VOICE"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	SecretID  string `yaml:"secret_id" toml:"secret_id" env:"SECRET_ID"`
	SecretKey string `yaml:"secret_key" toml:"secret_key" env:"SECRET_KEY"`
	VoiceType int64  `yaml:"voice_type" toml:"voice_type"`
	Region    string `yaml:"region" toml:"region"`
}

// OpenAIConfig OpenAI 语音合成配置。
type OpenAIConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	APIKey  string  `yaml:"api_key" toml:"api_key" env:"API_KEY"`
	BaseURL string  `yaml:"base_url" toml:"base_url" env:"BASE_URL"`
	Model   string  `yaml:"model" toml:"model"`
	Voice   string  `yaml:"voice" toml:"voice"`
	Speed   float64 `yaml:"speed" toml:"speed"`
}

// GoogleConfig Google Cloud Text-to-Speech 配置。
type GoogleConfig struct {
	Enabled         bool    `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	CredentialsFile string  `yaml:"credentials_file" toml:"credentials_file" env:"CREDENTIALS_FILE"`
	Voice           string  `yaml:"voice" toml:"voice"`
	SpeakingRate    float64 `yaml:"speaking_rate" toml:"speaking_rate"`
	SampleRate      int     `yaml:"sample_rate" toml:"sample_rate"`
}

// SayConfig macOS say 命令配置，仅 macOS 可用。
type SayConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Voice   string `yaml:"voice" toml:"voice" env:"VOICE"`
}

// HistoryConfig 合成历史（SQLite）配置，Path 为空则不记录。
type HistoryConfig struct {
	Path  string `yaml:"path" toml:"path" env:"PATH"`
	Limit int    `yaml:"limit" toml:"limit"`
}

// NATSConfig 合成完成事件推送配置，URL 为空则不推送。
type NATSConfig struct {
	URL     string `yaml:"url" toml:"url" env:"URL"`
	Subject string `yaml:"subject" toml:"subject" env:"SUBJECT"`
	// Bucket 不为空时同时把音频上传到 JetStream 对象存储。
	Bucket string `yaml:"bucket" toml:"bucket" env:"BUCKET"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
	File   string `yaml:"file" toml:"file" env:"FILE"`
}

// Load 读取配置文件并返回 Config。
// 根据扩展名选择 YAML 或 TOML 解析，支持 ${VAR_NAME} 形式的环境变量展开，
// 随后应用 JATTS_* 环境变量覆盖。path 为空或文件不存在时使用默认配置。
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
			// 允许无配置文件启动，全部使用默认值
		default:
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// decode 展开环境变量后按文件扩展名解析配置。
func decode(path string, data []byte, cfg *Config) error {
	expanded := []byte(os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	}))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(expanded, cfg); err != nil {
			return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s", path)
	}
	return nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 180
	}
	if cfg.Server.RateBurst == 0 && cfg.Server.RateLimit > 0 {
		cfg.Server.RateBurst = 1
	}
	if cfg.Server.MaxPromptChars == 0 {
		cfg.Server.MaxPromptChars = 1000
	}

	if cfg.Audio.Dir == "" {
		cfg.Audio.Dir = os.TempDir()
	}
	cfg.Audio.Dir = expandHome(cfg.Audio.Dir)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Backends.Vits.ModelDir = expandHome(cfg.Backends.Vits.ModelDir)
	cfg.Backends.Google.CredentialsFile = expandHome(cfg.Backends.Google.CredentialsFile)
	if cfg.Audio.SweepInterval == 0 {
		cfg.Audio.SweepInterval = 10
	}

	b := &cfg.Backends
	if b.Default == "" {
		b.Default = "parler"
	}
	if b.Parler.URL == "" {
		b.Parler.URL = "http://localhost:8001"
	}
	if b.Parler.Timeout == 0 {
		b.Parler.Timeout = 120
	}

	if b.Canary.URL == "" {
		b.Canary.URL = "http://localhost:8002"
	}
	if b.Canary.Timeout == 0 {
		b.Canary.Timeout = 120
	}
	if b.Canary.MaxNewTokens == 0 {
		b.Canary.MaxNewTokens = 256
	}
	if b.Canary.TopP == 0 {
		b.Canary.TopP = 0.95
	}
	if b.Canary.Temperature == 0 {
		b.Canary.Temperature = 0.7
	}
	if b.Canary.RepetitionPenalty == 0 {
		b.Canary.RepetitionPenalty = 1.05
	}
	if b.Canary.SampleRate == 0 {
		b.Canary.SampleRate = 16000
	}

	if b.Fish.URL == "" {
		b.Fish.URL = "http://localhost:8080"
	}
	if b.Fish.Timeout == 0 {
		b.Fish.Timeout = 60
	}
	if b.Fish.ProbeTimeout == 0 {
		b.Fish.ProbeTimeout = 2
	}
	if b.Fish.Encoding == "" {
		b.Fish.Encoding = "msgpack"
	}
	if b.Fish.Format == "" {
		b.Fish.Format = "wav"
	}
	if b.Fish.MaxNewTokens == 0 {
		b.Fish.MaxNewTokens = 256
	}
	if b.Fish.TopP == 0 {
		b.Fish.TopP = 0.95
	}
	if b.Fish.Temperature == 0 {
		b.Fish.Temperature = 0.7
	}
	if b.Fish.RepetitionPenalty == 0 {
		b.Fish.RepetitionPenalty = 1.05
	}

	if b.Vits.NumThreads == 0 {
		b.Vits.NumThreads = 2
	}
	if b.Vits.Speed == 0 {
		b.Vits.Speed = 1.0
	}
	if b.Edge.Voice == "" {
		b.Edge.Voice = "ja-JP-NanamiNeural"
	}
	if b.Tencent.Region == "" {
		b.Tencent.Region = "ap-guangzhou"
	}
	if b.OpenAI.Model == "" {
		b.OpenAI.Model = "tts-1"
	}
	if b.OpenAI.Voice == "" {
		b.OpenAI.Voice = "nova"
	}
	if b.OpenAI.Speed == 0 {
		b.OpenAI.Speed = 1.0
	}
	if b.Google.Voice == "" {
		b.Google.Voice = "ja-JP-Neural2-B"
	}
	if b.Google.SpeakingRate == 0 {
		b.Google.SpeakingRate = 1.0
	}
	if b.Google.SampleRate == 0 {
		b.Google.SampleRate = 24000
	}
	if b.Say.Voice == "" {
		b.Say.Voice = "Kyoko"
	}

	if cfg.History.Limit == 0 {
		cfg.History.Limit = 50
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "jatts.speech.generated"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 去除密钥两端可能的空白（环境变量展开后常见）
	b.OpenAI.APIKey = strings.TrimSpace(b.OpenAI.APIKey)
	b.Fish.APIKey = strings.TrimSpace(b.Fish.APIKey)
	b.Tencent.SecretID = strings.TrimSpace(b.Tencent.SecretID)
	b.Tencent.SecretKey = strings.TrimSpace(b.Tencent.SecretKey)
}

// expandHome 把开头的 ~/ 替换为用户主目录，Go 不会自动展开。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, path[2:])
}
