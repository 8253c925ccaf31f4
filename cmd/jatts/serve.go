package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iabetor/jatts/internal/logger"
	"github.com/iabetor/jatts/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务（默认命令）",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Infof("[main] jatts 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("[main] 释放资源失败: %v", err)
		}
	}()

	for _, b := range a.registry.Backends() {
		if b.Available {
			logger.Infof("[main] 后端 %s 可用", b.Name)
		} else {
			logger.Infof("[main] 后端 %s 不可用: %s", b.Name, b.Reason)
		}
	}

	srvCfg := server.Config{
		Synth:          a.synth,
		Backends:       a.registry,
		Store:          a.store,
		Listen:         cfg.Server.Listen,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		HistoryLimit:   cfg.History.Limit,
		MaxPromptChars: cfg.Server.MaxPromptChars,
	}
	if a.history != nil {
		srvCfg.History = a.history
	}
	if a.publisher != nil && cfg.NATS.Bucket != "" {
		srvCfg.Archive = a.publisher
	}
	srv := server.New(srvCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return a.store.Run(gctx, time.Duration(cfg.Audio.SweepInterval)*time.Minute, a.sweepHooks()...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("[main] jatts 已停止")
	return nil
}
