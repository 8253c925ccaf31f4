package main

import (
	"context"
	"errors"
	"time"

	"github.com/iabetor/jatts/internal/audio"
	"github.com/iabetor/jatts/internal/config"
	"github.com/iabetor/jatts/internal/events"
	"github.com/iabetor/jatts/internal/history"
	"github.com/iabetor/jatts/internal/logger"
	"github.com/iabetor/jatts/internal/ruby"
	"github.com/iabetor/jatts/internal/synth"
	"github.com/iabetor/jatts/internal/tts"
)

// startupProbeTimeout 是启动时探测全部远端后端的总超时。
const startupProbeTimeout = 5 * time.Second

// app 持有进程内所有长生命周期组件。
type app struct {
	cfg       *config.Config
	store     *audio.Store
	registry  *tts.Registry
	history   *history.Store
	publisher *events.Publisher
	synth     *synth.Service
}

// newApp 按配置组装组件。withSideEffects 为 false 时不打开历史库与 NATS，供命令行单次合成使用。
// 可选组件初始化失败只记日志，服务照常启动。
func newApp(ctx context.Context, cfg *config.Config, withSideEffects bool) (*app, error) {
	a := &app{cfg: cfg}

	store, err := audio.NewStore(cfg.Audio.Dir, time.Duration(cfg.Audio.Retention)*time.Minute)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.registry = tts.NewFromConfig(ctx, cfg.Backends)
	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	a.registry.ProbeAll(probeCtx)
	cancel()

	sc := synth.Config{
		Backends:       a.registry,
		Store:          store,
		DefaultModel:   cfg.Backends.Default,
		MaxPromptChars: cfg.Server.MaxPromptChars,
	}

	if cfg.Text.RubyEnabled() {
		annotator, err := ruby.NewAnnotator()
		if err != nil {
			logger.Warnf("[main] 振假名注音不可用，将直接使用原文: %v", err)
		} else {
			sc.Annotator = annotator
		}
	}

	if withSideEffects {
		if cfg.History.Path != "" {
			hist, err := history.Open(cfg.History.Path)
			if err != nil {
				logger.Warnf("[main] 打开合成记录失败，将不记录历史: %v", err)
			} else {
				a.history = hist
				sc.History = hist
			}
		}

		if cfg.NATS.URL != "" {
			pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, cfg.NATS.Bucket)
			if err != nil {
				logger.Warnf("[main] NATS 不可用，将不发布合成事件: %v", err)
			} else {
				a.publisher = pub
				sc.Notifier = pub
			}
		}
	}

	a.synth = synth.New(sc)
	return a, nil
}

// sweepHooks 返回随音频清理一起执行的任务。
func (a *app) sweepHooks() []audio.SweepHook {
	if a.history == nil {
		return nil
	}
	return []audio.SweepHook{
		func(ctx context.Context, cutoff time.Time) {
			n, err := a.history.Prune(ctx, cutoff)
			if err != nil {
				logger.Warnf("[main] 清理合成记录失败: %v", err)
				return
			}
			if n > 0 {
				logger.Infof("[main] 已清理 %d 条过期合成记录", n)
			}
		},
	}
}

func (a *app) Close() error {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	return errors.Join(errs...)
}
