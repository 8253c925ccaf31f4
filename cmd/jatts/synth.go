package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iabetor/jatts/internal/logger"
	"github.com/iabetor/jatts/internal/synth"
)

var (
	synthModel       string
	synthDescription string
	synthOutput      string

	synthCmd = &cobra.Command{
		Use:   "synth [flags] TEXT",
		Short: "在命令行合成一段文本",
		Example: `  jatts synth -m fish -o out.wav "こんにちは"
  jatts synth -d "A calm female voice" 今日はいい天気ですね`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSynth,
	}

	backendsCmd = &cobra.Command{
		Use:   "backends",
		Short: "探测并列出所有后端的可用状态",
		Args:  cobra.NoArgs,
		RunE:  runBackends,
	}
)

func init() {
	synthCmd.Flags().StringVarP(&synthModel, "model", "m", "", "后端名称，默认使用配置中的 backends.default")
	synthCmd.Flags().StringVarP(&synthDescription, "description", "d", "", "音色描述")
	synthCmd.Flags().StringVarP(&synthOutput, "output", "o", "", "输出 WAV 路径，默认保存到音频目录")
}

func runSynth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.synth.Generate(cmd.Context(), synth.Request{
		Prompt:      strings.Join(args, " "),
		Description: synthDescription,
		Model:       synthModel,
	})
	if err != nil {
		return err
	}

	path, err := a.store.Path(res.Filename)
	if err != nil {
		return err
	}
	if synthOutput != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取合成结果失败: %w", err)
		}
		if err := os.WriteFile(synthOutput, data, 0644); err != nil {
			return fmt.Errorf("写入 %s 失败: %w", synthOutput, err)
		}
		if err := a.store.Remove(res.Filename); err != nil {
			logger.Warnf("[main] 删除临时文件失败: %v", err)
		}
		path = synthOutput
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (model=%s, %.1fs, %d Hz)\n",
		path, res.Model, res.Duration.Seconds(), res.SampleRate)
	return nil
}

func runBackends(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLABEL\tAVAILABLE\tREASON")
	for _, b := range a.registry.Backends() {
		def := ""
		if b.Name == a.synth.DefaultModel() {
			def = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%v\t%s\n", b.Name, def, b.Label, b.Available, b.Reason)
	}
	return w.Flush()
}
