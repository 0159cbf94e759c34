// ストアフロントゲートウェイのエントリポイント。
// 管理画面へのアクセスを共有シークレットで制限し、それ以外のリクエストを
// ストアフロントのレンダラーへ転送する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/internal/gateway"
	"github.com/nao1215/storefront/pkg/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// ビルド時に -ldflags で埋め込む。
var (
	version = "dev"
	commit  = "unknown"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ最大時間。
const shutdownTimeout = 15 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}

// newApp はコマンドラインアプリケーションを生成する。
func newApp() *cli.App {
	return &cli.App{
		Name:    "storefront-gateway",
		Usage:   "ストアフロントの前段で管理画面へのアクセスを制限するゲートウェイ",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML設定ファイルのパス",
				EnvVars: []string{"STOREFRONT_CONFIG_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String("config"))
		},
	}
}

// run は設定を読み込んでゲートウェイを起動し、シグナルを受けたら停止する。
func run(ctx context.Context, configFile string) error {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("ゲートウェイの初期化に失敗: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		_ = server.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("停止シグナルを受信しました。ゲートウェイを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("ゲートウェイの停止に失敗", zap.Error(err))
		return err
	}
	log.Info("ゲートウェイを停止しました")
	return nil
}
