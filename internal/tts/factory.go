package tts

import (
	"context"
	"time"

	"github.com/iabetor/jatts/internal/config"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// NewFromConfig 按配置创建所有后端并注册，显示顺序固定为
// parler、canary、fish，随后是启用的附加后端。
// 初始化失败的后端以不可用状态注册，不影响服务启动。
func NewFromConfig(ctx context.Context, cfg config.BackendsConfig) *Registry {
	r := NewRegistry()

	if !cfg.Parler.Disabled {
		r.Register(Backend{
			Name:   "parler",
			Engine: NewParlerEngine(cfg.Parler.URL, seconds(cfg.Parler.Timeout)),
		})
	}

	if !cfg.Canary.Disabled {
		r.Register(Backend{
			Name: "canary",
			Engine: NewCanaryEngine(cfg.Canary.URL, seconds(cfg.Canary.Timeout), CanaryParams{
				MaxNewTokens:      cfg.Canary.MaxNewTokens,
				TopP:              cfg.Canary.TopP,
				Temperature:       cfg.Canary.Temperature,
				RepetitionPenalty: cfg.Canary.RepetitionPenalty,
			}, cfg.Canary.SampleRate),
		})
	}

	if !cfg.Fish.Disabled {
		r.Register(Backend{
			Name: "fish",
			Engine: NewFishEngine(cfg.Fish.URL, cfg.Fish.APIKey,
				seconds(cfg.Fish.Timeout), seconds(cfg.Fish.ProbeTimeout), FishOptions{
					Encoding:          cfg.Fish.Encoding,
					Format:            cfg.Fish.Format,
					MaxNewTokens:      cfg.Fish.MaxNewTokens,
					TopP:              cfg.Fish.TopP,
					Temperature:       cfg.Fish.Temperature,
					RepetitionPenalty: cfg.Fish.RepetitionPenalty,
				}),
		})
	}

	if cfg.Vits.Enabled {
		engine, err := NewVitsEngine(cfg.Vits.ModelDir, cfg.Vits.NumThreads, cfg.Vits.SpeakerID, cfg.Vits.Speed)
		register(r, "vits", engine, err)
	}

	if cfg.Edge.Enabled {
		r.Register(Backend{Name: "edge", Engine: NewEdgeEngine(cfg.Edge.Voice)})
	}

	if cfg.Tencent.Enabled {
		engine, err := NewTencentEngine(TencentOptions{
			SecretID:  cfg.Tencent.SecretID,
			SecretKey: cfg.Tencent.SecretKey,
			VoiceType: cfg.Tencent.VoiceType,
			Region:    cfg.Tencent.Region,
		})
		register(r, "tencent", engine, err)
	}

	if cfg.OpenAI.Enabled {
		engine, err := NewOpenAIEngine(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL,
			cfg.OpenAI.Model, cfg.OpenAI.Voice, cfg.OpenAI.Speed)
		register(r, "openai", engine, err)
	}

	if cfg.Google.Enabled {
		engine, err := NewGoogleEngine(ctx, cfg.Google.CredentialsFile, cfg.Google.Voice,
			cfg.Google.SpeakingRate, cfg.Google.SampleRate)
		register(r, "google", engine, err)
	}

	if cfg.Say.Enabled {
		r.Register(Backend{Name: "say", Engine: NewSayEngine(cfg.Say.Voice)})
	}

	return r
}

// register 注册构造结果；构造失败时注册为不可用。
// engine 参数使用具体指针类型，需避免把 nil 指针包装成非 nil 接口。
func register[E Engine](r *Registry, name string, engine E, err error) {
	if err != nil {
		r.RegisterUnavailable(Backend{Name: name}, err.Error())
		return
	}
	r.Register(Backend{Name: name, Engine: engine})
}
