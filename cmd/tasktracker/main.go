// タスクトラッカーAPIのエントリポイント。
// ユーザー登録・ログインとユーザーごとのタスク管理をHTTPで提供する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/tasktracker/internal/config"
	"github.com/nao1215/tasktracker/internal/server"
	"github.com/nao1215/tasktracker/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tasktracker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}
	return srv.Run(ctx)
}
