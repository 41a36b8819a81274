package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nao1215/pairfect/internal/identity"
	"github.com/nao1215/pairfect/internal/search"
	"github.com/nao1215/pairfect/pkg/middleware"
)

// APIのメタ情報。
const (
	apiTitle   = "Pairfect API"
	apiVersion = "1.0.0"
)

// defaultShutdownTimeout はShutdownTimeoutが指定されない場合の待ち時間。
const defaultShutdownTimeout = 10 * time.Second

// Config はServerの生成に必要な依存と設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// Identity はIDプロバイダのクライアント。
	Identity identity.Provider
	// Search は画像検索プロバイダのクライアント。
	Search search.Searcher
	// Logger はアプリケーションロガー。nilの場合は出力しない。
	Logger *zap.Logger
	// Registry はメトリクスの登録先。nilの場合は新しいレジストリを作る。
	Registry *prometheus.Registry
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration
}

// Server はPairfect APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// identity はIDプロバイダのクライアント。
	identity identity.Provider
	// search は画像検索プロバイダのクライアント。
	search search.Searcher
	logger *zap.Logger
	// registry は/metricsで公開するレジストリ。
	registry        *prometheus.Registry
	shutdownTimeout time.Duration
}

// NewServer は新しいAPIサーバーを生成する。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Identity == nil {
		return nil, errors.New("IDプロバイダのクライアントが指定されていません")
	}
	if cfg.Search == nil {
		return nil, errors.New("検索プロバイダのクライアントが指定されていません")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.Metrics(registry))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:          router,
		port:            cfg.Port,
		identity:        cfg.Identity,
		search:          cfg.Search,
		logger:          logger,
		registry:        registry,
		shutdownTimeout: shutdownTimeout,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待ち受ける。
// キャンセル後は処理中のリクエストの完了を待ってから戻る。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Pairfect APIを起動します", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
		}
		s.logger.Info("Pairfect APIを停止しました")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("", s.handleRoot())

		// 認証不要
		api.POST("/signup", s.handleSignup())
		api.POST("/login", s.handleLogin())

		// トークン確認（認証ゲートと同じ検証をハンドラ内で行う）
		api.POST("/ping", s.handlePing())

		// 認証必須
		api.POST("/pair", middleware.BearerAuth(s.identity, s.logger), s.handlePair())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pairfect"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// handleRoot はAPIの案内メッセージを返すハンドラを返す。
func (s *Server) handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome to the pairfect API",
			"title":   apiTitle,
			"version": apiVersion,
		})
	}
}
