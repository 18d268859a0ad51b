// Package server はタスクトラッカーAPIのHTTPサーバーを組み立てる。
//
// 設定からストア・トークンサービス・メール送信を生成し、
// ユーザーとタスクのコントローラーをルーターにマウントする。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/tasktracker/internal/config"
	"github.com/nao1215/tasktracker/internal/notification"
	"github.com/nao1215/tasktracker/internal/store"
	"github.com/nao1215/tasktracker/internal/task"
	"github.com/nao1215/tasktracker/internal/user"
	"github.com/nao1215/tasktracker/pkg/middleware"
	"github.com/nao1215/tasktracker/pkg/password"
	"github.com/nao1215/tasktracker/pkg/route"
	"github.com/nao1215/tasktracker/pkg/token"
)

// serviceName はヘルスチェックで返すサービス名。
const serviceName = "tasktracker"

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Server はタスクトラッカーAPIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はユーザー・セッション・タスクのストア。
	store *store.Store
	// notifier はアカウントイベントのメール送信者。
	notifier *notification.Notifier
	logger   *slog.Logger
}

// NewServer は設定からサーバーを生成する。
// データベースに接続してマイグレーションを適用するため、ctxは起動処理の期限として使われる。
func NewServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.UsesDefaultSecret() {
		logger.Warn("JWT_SECRET が未設定のため開発用シークレットを使用します。本番環境では必ず設定してください")
	}

	st, err := store.Open(ctx, store.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}, logger)
	if err != nil {
		return nil, fmt.Errorf("ストアの初期化に失敗: %w", err)
	}

	tokens, err := token.New(token.Config{
		Secret:        []byte(cfg.Token.Secret),
		TTL:           cfg.Token.TTL,
		DisableExpiry: cfg.Token.DisableExpiry,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("トークンサービスの初期化に失敗: %w", err)
	}
	if cfg.Token.DisableExpiry {
		logger.Warn("トークンの有効期限が無効化されています")
	}

	var mailer notification.Mailer = notification.NewLogMailer(logger)
	if cfg.Mail.Enabled() {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		})
	}
	notifier := notification.NewNotifier(mailer, cfg.Mail.Sender, logger)

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.Deadline(cfg.RequestTimeout))

	s := &Server{
		router:   router,
		port:     cfg.Port,
		store:    st,
		notifier: notifier,
		logger:   logger,
	}

	auth := middleware.Authenticate(tokens, st, logger)
	users := user.NewController(user.Config{
		Store:    st,
		Hasher:   password.NewHasher(cfg.BcryptCost),
		Tokens:   tokens,
		Notifier: notifier,
		Auth:     auth,
		Logger:   logger,
	})
	tasks := task.NewController(st, auth, logger)

	if err := s.setupRoutes(users, tasks); err != nil {
		_ = st.Close()
		return nil, err
	}
	return s, nil
}

// Handler はサーバーのHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(controllers ...route.Controller) error {
	if err := route.Mount(s.router, s.logger, controllers...); err != nil {
		return fmt.Errorf("ルーティングの設定に失敗: %w", err)
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.logger.Error("ヘルスチェックでデータベースに接続できません", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": serviceName})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
	})
	return nil
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
// キャンセル後は処理中のリクエストと送信中のメールを待ってからストアを閉じる。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("サーバーを起動します", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("サーバーを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("シャットダウンに失敗: %w", err)
		}
	}

	return errors.Join(runErr, s.Close())
}

// Close は送信中のメールを待ってからストアを閉じる。
func (s *Server) Close() error {
	s.notifier.Wait()
	return s.store.Close()
}
