package main

import (
	"github.com/spf13/cobra"
)

// newConfigCmd 打印合并后的有效配置
func newConfigCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "打印合并后的有效配置（YAML）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig(nil)
			if err != nil {
				return err
			}
			data, err := cfg.Serialize()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
