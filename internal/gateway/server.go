package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/internal/metrics"
	"github.com/nao1215/storefront/internal/preferences"
	"github.com/nao1215/storefront/pkg/admingate"
	"github.com/nao1215/storefront/pkg/httpclient"
	"github.com/nao1215/storefront/pkg/middleware"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// serviceName はヘルスチェックで返すサービス名。
const serviceName = "storefront-gateway"

// Server はストアフロントの前段に立つゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はrouterを公開するHTTPサーバー。
	httpServer *http.Server
	// cfg は起動時に読み込んだ設定。
	cfg config.Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// db はSQLiteデータベース接続。
	db *sql.DB
	// upstream は転送先へのHTTPクライアント。
	upstream *httpclient.Client
	// gate は管理画面ゲート。
	gate *admingate.Gate
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	// preferences は訪問者設定のハンドラ。
	preferences *preferences.Handler
}

// NewServer は新しいゲートウェイサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションを行う。
func NewServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := openDB(cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	if err := preferences.Migrate(ctx, sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	upstream, err := httpclient.New(cfg.Upstream.URL, httpclient.WithTimeout(cfg.Upstream.Timeout))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("転送先クライアントの生成に失敗: %w", err)
	}

	gate := admingate.New(admingate.Config{
		Prefix: cfg.Admin.Prefix,
		Param:  cfg.Admin.Param,
		Secret: cfg.Admin.Secret,
	})
	if !gate.Configured() {
		logger.Warn("管理シークレットが未設定のため、管理画面へのリクエストはすべてトップページへリダイレクトされます",
			zap.String("prefix", gate.Prefix()),
		)
	}

	if cfg.UsesDevSessionSecret() {
		logger.Warn("セッション署名鍵が開発用のデフォルト値です。本番環境では STOREFRONT_SESSION_SECRET を設定してください",
			zap.String("cookie", cfg.Session.Cookie),
		)
	}

	m := metrics.New()

	router := gin.New()
	// 転送先のURLをそのまま届けるため、末尾スラッシュの補正は行わない
	router.RedirectTrailingSlash = false
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger, gate.Param()))
	router.Use(middleware.Metrics(m))
	router.Use(middleware.AdminGate(gate))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	s := &Server{
		router:      router,
		cfg:         cfg,
		logger:      logger,
		db:          sqlDB,
		upstream:    upstream,
		gate:        gate,
		metrics:     m,
		preferences: preferences.NewHandler(preferences.NewStore(sqlDB), m, logger),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// openDB はSQLiteデータベースを開く。
// SQLiteは書き込みが直列化されるため、接続は1本に制限する。
func openDB(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	return sqlDB, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。Shutdownで停止した場合はnilを返す。
func (s *Server) Run() error {
	s.logger.Info("ゲートウェイを起動します",
		zap.String("addr", s.httpServer.Addr),
		zap.String("upstream", s.upstream.BaseURL()),
		zap.String("admin_prefix", s.gate.Prefix()),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	}
	return nil
}

// Shutdown は処理中のリクエストの完了を待ってサーバーを停止し、データベースを閉じる。
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownErr := s.httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		shutdownErr = fmt.Errorf("HTTPサーバーの停止に失敗: %w", shutdownErr)
	}
	return errors.Join(shutdownErr, s.Close())
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("データベースのクローズに失敗: %w", err)
	}
	return nil
}

// setupRoutes はルーティングを設定する。
// ここに定義のないリクエストはすべて転送先へ送る。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
	// Prometheusメトリクス
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api/v1")
	api.Use(middleware.RateLimit(s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst))
	api.Use(middleware.VisitorSession(middleware.SessionConfig{
		Secret: s.cfg.Session.Secret,
		Cookie: s.cfg.Session.Cookie,
		TTL:    s.cfg.Session.TTL,
		Secure: s.cfg.Session.Secure,
	}))
	s.preferences.RegisterRoutes(api)

	// ストアフロント本体（管理画面を含む）への転送
	s.router.NoRoute(s.handleProxy())
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	}
}

// handleProxy はリクエストを転送先へ中継するハンドラを返す。
// 転送先のステータス、ヘッダー、ボディをそのままクライアントへ返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		resp, err := s.upstream.Forward(req.Context(), httpclient.Request{
			Method:        req.Method,
			Path:          req.URL.Path,
			RawQuery:      req.URL.RawQuery,
			Header:        req.Header,
			Body:          req.Body,
			ContentLength: req.ContentLength,
			ClientIP:      c.ClientIP(),
			Host:          forwardedHost(req),
			Proto:         forwardedProto(req),
			RequestID:     middleware.GetRequestID(c),
		})
		if err != nil {
			s.metrics.IncUpstreamErrors()
			s.logger.Error("転送先との通信に失敗",
				zap.Error(err),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", middleware.GetRequestID(c)),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "ストアフロントとの通信に失敗しました"})
			return
		}
		defer resp.Body.Close()

		header := resp.Header.Clone()
		httpclient.RemoveHopByHopHeaders(header)
		for key, values := range header {
			for _, v := range values {
				c.Writer.Header().Add(key, v)
			}
		}
		c.Status(resp.StatusCode)
		c.Writer.WriteHeaderNow()

		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			s.logger.Warn("レスポンスの中継が中断されました",
				zap.Error(err),
				zap.String("path", req.URL.Path),
				zap.String("request_id", middleware.GetRequestID(c)),
			)
		}
	}
}

// forwardedHost は元のリクエストのホスト名を返す。
// 前段のプロキシが設定したX-Forwarded-Hostがあればそれを引き継ぐ。
func forwardedHost(r *http.Request) string {
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		return h
	}
	return r.Host
}

// forwardedProto は元のリクエストのスキームを返す。
func forwardedProto(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
