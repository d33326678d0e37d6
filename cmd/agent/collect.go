package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/handler"
	"github.com/status-agent/pkg/logger"
	"github.com/status-agent/pkg/metrics"
	"github.com/status-agent/pkg/registers"
)

// newCollectCmd 执行一次采集，按归档格式输出到 stdout
func newCollectCmd() *cobra.Command {
	var archive bool
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run every enabled collector once and print the metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigWithCli(cmd)
			if err != nil {
				return err
			}
			log := logger.NewStderr(cfg.Log.Level)
			defer func() { _ = log.Sync() }()

			return collectOnce(cmd.Context(), cmd, cfg, log, archive)
		},
	}
	cmd.Flags().BoolVar(&archive, "archive", false, "同时写入配置的归档处理器")
	return cmd
}

func collectOnce(ctx context.Context, cmd *cobra.Command, cfg *config.Config, log *zap.Logger, archive bool) error {
	am := metrics.Discard()
	modules := []registers.HandlerModule{{
		Enabled: true,
		Name:    "stdout",
		NewFunc: func() (registers.Handler, error) {
			return handler.NewWriterHandler("stdout", cmd.OutOrStdout(), log, am), nil
		},
	}}
	if archive {
		modules = append(modules, registers.HandlerModules(cfg, log, am)...)
	}

	agent, err := registers.NewAgentFromConfig(cfg, log, am, modules)
	if err != nil {
		return err
	}
	collectErr := agent.CollectAll(ctx)
	return errors.Join(collectErr, agent.Shutdown(context.Background()))
}

// newConfigCmd 输出合并 flag/文件/环境变量并校验后的最终配置
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigWithCli(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", projectName, Version)
		},
	}
}
