package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/logger"
	"github.com/status-agent/pkg/registers"
	"github.com/status-agent/pkg/server"
	"github.com/status-agent/pkg/signal"
	"github.com/status-agent/pkg/util"
)

// Version 构建时通过 -ldflags "-X github.com/status-agent/cmd/agent.Version=..." 注入
var Version = "dev"

const projectName = "status-agent"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           projectName,
	Short:         "Collects VPN server status reports into a day-rotated local metric archive",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("%w (check the config file path or pass -c)", err)
		}
		return runAgent(cmd.Context(), cfg)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "配置文件路径")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initCollectorFlags(rootCmd)
	initHandlerFlags(rootCmd)
	initLogFlags(rootCmd)

	rootCmd.AddCommand(newCollectCmd(), newConfigCmd(), newVersionCmd())
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	util.PrintBanner(os.Stdout, projectName, "blue", Version)
	log.Info("log initialization successful",
		zap.String("path", cfg.Log.Path),
		zap.String("level", cfg.Log.Level),
		zap.String("format", cfg.Log.Format))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	const enableProcess = true
	registry, agent, err := registers.InitPromRegistry(ctx, enableProcess, cfg, log.Named("agent"))
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}

	httpServer := server.NewHTTPServer(cfg.Server, registry, log)
	if err := httpServer.Start(); err != nil {
		_ = agent.Shutdown(context.Background())
		return fmt.Errorf("start HTTP server: %w", err)
	}

	// 关闭顺序：HTTP 服务 → 采集器 → 处理器
	return signal.WaitForShutdown(ctx, log, signal.DefaultTimeout, func(ctx context.Context) error {
		return errors.Join(httpServer.Shutdown(ctx), agent.Shutdown(ctx))
	})
}
