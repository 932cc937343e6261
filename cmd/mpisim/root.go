package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/mpi-simulator/internal/config"
	"yqhp/mpi-simulator/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是版本信息中显示的 ASCII 艺术
	Banner = `
   ___      rank 0 ──► 1..N-1
  | 0 |──►  mpisim %s
   ‾‾‾
`
)

// globalOptions 保存全局 flags
type globalOptions struct {
	cfgFile string
	debug   bool
	quiet   bool
}

// newRootCmd 创建根命令
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "mpisim",
		Short: "协调者/工作者并行计算模拟器",
		Long: `mpisim 模拟消息传递并行计算：rank 0 将整数分发给 rank 1..N-1，
工作者计算 Collatz 序列长度并回传结果，协调者收集后写入 CSV 等输出。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "静默模式")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载配置
func (o *globalOptions) loadConfig(overrides map[string]string) (*config.Config, error) {
	loader := config.NewLoader().WithCmdArgs(overrides)
	if o.cfgFile != "" {
		loader = loader.WithConfigPath(o.cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if o.debug {
		cfg.Logging.Level = "debug"
	}
	if o.quiet {
		cfg.Logging.Level = "error"
		cfg.Output.Console = false
	}
	return cfg, nil
}

// initLogger 初始化全局日志
func initLogger(cfg *config.Config) {
	logger.Init(cfg.Logging.Logger())
}

// Execute 执行根命令
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
