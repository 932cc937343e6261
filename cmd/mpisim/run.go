package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yqhp/mpi-simulator/internal/config"
	"yqhp/mpi-simulator/internal/simulator"
	"yqhp/mpi-simulator/pkg/logger"
)

// runOptions 保存 run 命令的 flags
type runOptions struct {
	processes  int
	inputCount int
	seed       uint64
	min        uint64
	max        uint64
	values     string
	output     string
	jsonOutput string
	maxDelay   time.Duration
	noConsole  bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一次模拟",
		Long: `启动 N 个参与者（1 个协调者 + N-1 个工作者），分发输入并收集结果。

协调者将下一项工作交给刚刚返回结果的工作者，队列清空后向每个工作者
发送终止令牌。结果按到达顺序写入 CSV。`,
		Example: `  # 默认 4 个进程，20 个 [1, 1000] 内的随机输入
  mpisim run

  # 8 个进程，固定随机种子
  mpisim run -n 8 --inputs 100 --seed 42

  # 指定输入列表并额外输出 JSON
  mpisim run -n 3 --values 27,97,871 --json results.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.processes, "processes", "n", 4, "参与者数量（含协调者），至少为 2")
	f.IntVar(&opts.inputCount, "inputs", 20, "随机输入数量")
	f.Uint64Var(&opts.seed, "seed", 0, "随机种子，0 表示随机选择")
	f.Uint64Var(&opts.min, "min", 1, "随机输入下限（含）")
	f.Uint64Var(&opts.max, "max", 1000, "随机输入上限（含）")
	f.StringVar(&opts.values, "values", "", "逗号分隔的输入列表，设置后不再随机生成")
	f.StringVarP(&opts.output, "output", "o", "output.csv", "CSV 输出路径，为空则不写文件")
	f.StringVar(&opts.jsonOutput, "json", "", "额外输出 JSON 结果到文件")
	f.DurationVar(&opts.maxDelay, "max-delay", 0, "工作者每次回复前的最大随机延迟")
	f.BoolVar(&opts.noConsole, "no-console", false, "不打印收集到的结果")

	return cmd
}

// overrides 将显式设置的 flags 转换为配置路径覆盖
func (o *runOptions) overrides(cmd *cobra.Command) map[string]string {
	flags := cmd.Flags()
	out := make(map[string]string)
	set := func(flag, path, value string) {
		if flags.Changed(flag) {
			out[path] = value
		}
	}

	set("processes", "simulation.processes", strconv.Itoa(o.processes))
	set("inputs", "simulation.input_count", strconv.Itoa(o.inputCount))
	set("seed", "simulation.seed", strconv.FormatUint(o.seed, 10))
	set("min", "simulation.input_min", strconv.FormatUint(o.min, 10))
	set("max", "simulation.input_max", strconv.FormatUint(o.max, 10))
	set("values", "simulation.inputs", o.values)
	set("output", "output.file", o.output)
	set("max-delay", "simulation.max_delay", o.maxDelay.String())
	set("no-console", "output.console", strconv.FormatBool(!o.noConsole))
	return out
}

func runSimulation(cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	cfg, err := global.loadConfig(opts.overrides(cmd))
	if err != nil {
		return err
	}
	if opts.jsonOutput != "" {
		cfg.Output.Sinks = append(cfg.Output.Sinks, config.SinkConfig{
			Type:    "json",
			Enabled: true,
			Config:  map[string]any{"file_path": opts.jsonOutput},
		})
	}

	initLogger(cfg)
	log := logger.Named("mpisim")

	sim, err := simulator.New(cfg,
		simulator.WithLogger(log),
		simulator.WithConsoleWriter(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := sim.Run(ctx)
	if err != nil {
		return fmt.Errorf("模拟执行失败: %w", err)
	}

	if !global.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nrun %s: %d results from %d workers in %s (p99 turnaround %s)\n",
			report.RunID, len(report.Results), report.Processes-1,
			report.Elapsed.Round(time.Millisecond), report.Metrics.P99)
		if cfg.Output.File != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "results written to %s\n", cfg.Output.File)
		}
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
