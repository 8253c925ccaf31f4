package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iabetor/jatts/internal/config"
	"github.com/iabetor/jatts/internal/logger"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "jatts",
		Short:         "Japanese text-to-speech web service",
		Long:          "jatts 接收日语文本与音色描述，调用所选 TTS 后端合成 WAV，并通过网页返回。",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/jatts.yaml", "配置文件路径（.yaml 或 .toml）")
	rootCmd.AddCommand(serveCmd, synthCmd, backendsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并初始化全局 logger。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}
