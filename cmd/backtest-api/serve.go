package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 回测服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	rt, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.app.Run(ctx); err != nil {
		rt.logger.Error("系统运行异常", zap.Error(err))
		return err
	}

	rt.logger.Info("系统已安全退出")
	return nil
}
