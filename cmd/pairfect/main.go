// Pairfect APIのエントリポイント。
// 設定とプロバイダの認証情報を検証してから待ち受けを開始する。
// 初期化に失敗した場合はリクエストを受け付けずに終了する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nao1215/pairfect/internal/api"
	"github.com/nao1215/pairfect/internal/config"
	"github.com/nao1215/pairfect/internal/identity"
	"github.com/nao1215/pairfect/internal/search"
	"github.com/nao1215/pairfect/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("Pairfect APIが異常終了しました", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	provider, err := newIdentityProvider(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("IDプロバイダの初期化に失敗: %w", err)
	}

	searcher, err := search.NewClient(search.Config{
		BaseURL:  cfg.Search.BaseURL,
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
		Timeout:  cfg.UpstreamTimeout,
	}, zl)
	if err != nil {
		return fmt.Errorf("検索クライアントの初期化に失敗: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := api.NewServer(api.Config{
		Port:            cfg.Port,
		Identity:        provider,
		Search:          searcher,
		Logger:          zl,
		Registry:        registry,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	return server.Run(ctx)
}

// newIdentityProvider は設定されたバックエンドのIDプロバイダを生成する。
func newIdentityProvider(ctx context.Context, cfg *config.Config, zl *zap.Logger) (identity.Provider, error) {
	switch cfg.IdentityBackend {
	case config.BackendLocal:
		zl.Warn("開発用のローカルIDプロバイダを使用します。ユーザーは再起動で消えます")
		return identity.NewLocal(cfg.LocalJWTSecret)
	default:
		return identity.NewFirebase(ctx, identity.FirebaseOptions{
			CredentialsJSON: cfg.Firebase.Credentials,
			ProjectID:       cfg.Firebase.Client.ProjectID,
			APIKey:          cfg.Firebase.Client.APIKey,
			ToolkitURL:      cfg.IdentityToolkitURL,
			Timeout:         cfg.UpstreamTimeout,
		}, zl.Named("firebase"))
	}
}
