package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backtest-api/internal/app"
	"backtest-api/internal/config"
	"backtest-api/internal/log"
	"backtest-api/internal/store"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "backtest-api",
		Short:         "K线回测服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")

	root.AddCommand(newServeCmd(&configPath), newRunCmd(&configPath))
	return root
}

// services 为一次进程运行所需的公共依赖。
type services struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	app    *app.App
}

func bootstrap(configPath string) (*services, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	backtestApp, err := app.New(cfg, logger, sqliteStore)
	if err != nil {
		_ = sqliteStore.Close()
		_ = logger.Sync()
		return nil, err
	}

	return &services{cfg: cfg, logger: logger, store: sqliteStore, app: backtestApp}, nil
}

func (r *services) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("关闭数据库失败", zap.Error(err))
	}
	_ = r.logger.Sync()
}
