package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/tasktracker/internal/avatar"
	"github.com/nao1215/tasktracker/internal/store"
	"github.com/nao1215/tasktracker/pkg/controller"
	"github.com/nao1215/tasktracker/pkg/middleware"
	"github.com/nao1215/tasktracker/pkg/route"
)

// Prefix はユーザーコントローラーのマウント先。
const Prefix = "/users"

// uploadLimit はアバターアップロードのリクエストボディ上限。
// multipartのヘッダー分として画像上限に1MiBを加える。
const uploadLimit = avatar.MaxBytes + 1<<20

// Store はユーザーコントローラーが使用する永続化層。
type Store interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	ListUsers(ctx context.Context) ([]*store.User, error)
	UpdateUser(ctx context.Context, u *store.User) error
	DeleteUser(ctx context.Context, id string) error
	SetAvatar(ctx context.Context, userID string, image []byte) error
	GetAvatar(ctx context.Context, userID string) ([]byte, error)
	AddSession(ctx context.Context, userID, token string) error
	DeleteSession(ctx context.Context, userID, token string) error
	DeleteSessions(ctx context.Context, userID string) (int64, error)
}

// Hasher はパスワードダイジェストの計算と照合を行う。
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) (bool, error)
}

// TokenIssuer はユーザーIDに紐づくセッショントークンを発行する。
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Notifier はアカウントイベントのメールを送信する。送信結果は返さない。
type Notifier interface {
	Welcome(ctx context.Context, email, name string)
	Cancellation(ctx context.Context, email, name string)
}

// Config はユーザーコントローラーの依存関係。
type Config struct {
	Store    Store
	Hasher   Hasher
	Tokens   TokenIssuer
	Notifier Notifier
	// Auth は認証ゲート。
	Auth   gin.HandlerFunc
	Logger *slog.Logger
}

// Controller はユーザーリソースのコントローラー。
type Controller struct {
	controller.Base
	store    Store
	hasher   Hasher
	tokens   TokenIssuer
	notifier Notifier
	// dummyDigest は未登録のメールアドレスでのログイン時に照合するダイジェスト。
	// 登録の有無で応答時間が変わらないようにする。
	dummyDigest func() (string, error)
}

var _ route.Controller = (*Controller)(nil)

// NewController はユーザーコントローラーを生成する。
func NewController(cfg Config) *Controller {
	c := &Controller{
		store:    cfg.Store,
		hasher:   cfg.Hasher,
		tokens:   cfg.Tokens,
		notifier: cfg.Notifier,
	}
	c.dummyDigest = sync.OnceValues(func() (string, error) {
		return cfg.Hasher.Hash(uuid.NewString())
	})

	// "/me" は "/:id" より先に宣言する
	table := route.NewTable(
		route.Route{Method: http.MethodGet, Path: "", Handler: c.handleList()},
		route.Route{Method: http.MethodGet, Path: "/me", Handler: c.handleMe()},
		route.Route{Method: http.MethodPost, Path: "/login", Handler: c.handleLogin()},
		route.Route{Method: http.MethodPost, Path: "/logout", Handler: c.handleLogout()},
		route.Route{Method: http.MethodPost, Path: "/logoutAll", Handler: c.handleLogoutAll()},
		route.Route{Method: http.MethodGet, Path: "/:id", Handler: c.handleGet()},
		route.Route{Method: http.MethodPatch, Path: "/me", Handler: c.handleUpdate()},
		route.Route{Method: http.MethodDelete, Path: "/me", Handler: c.handleDelete()},
		route.Route{Method: http.MethodPost, Path: "", Handler: c.handleCreate()},
		route.Route{
			Method:  http.MethodPost,
			Path:    "/me/avatar",
			Handler: c.handleSetAvatar(),
			Gates:   []gin.HandlerFunc{middleware.BodyLimit(uploadLimit)},
		},
		route.Route{Method: http.MethodDelete, Path: "/me/avatar", Handler: c.handleDeleteAvatar()},
		route.Route{Method: http.MethodGet, Path: "/:id/avatar", Handler: c.handleGetAvatar()},
	).
		Require("/me", cfg.Auth).
		Require("/logout", cfg.Auth).
		Require("/logoutAll", cfg.Auth)

	c.Base = controller.NewBase(cfg.Logger, table)
	return c
}

// Prefix はコントローラーのマウント先を返す。
func (c *Controller) Prefix() string {
	return Prefix
}

// userResponse はユーザーのJSONレスポンス構造。
// パスワードダイジェスト・トークン・アバター画像は含めない。
type userResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// sessionResponse は登録・ログイン時のレスポンス構造。
type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

// messageResponse はメッセージのみのレスポンス構造。
type messageResponse struct {
	Message string `json:"message"`
}

// classify はストアのエラーをコントローラーのエラー分類に変換する。
func classify(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return controller.NotFound(err.Error())
	case errors.Is(err, store.ErrDuplicateEmail):
		return controller.Validation("Email is already in use")
	default:
		return err
	}
}

// currentUser は認証ゲートが解決したユーザーを取得する。
// 認証後に削除されていた場合は認証エラーとする。
func (c *Controller) currentUser(ctx *gin.Context) (*store.User, error) {
	u, err := c.store.GetUser(ctx.Request.Context(), middleware.GetUserID(ctx))
	if errors.Is(err, store.ErrNotFound) {
		return nil, controller.Authentication("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// startSession はトークンを発行してユーザーのセッションに追加する。
func (c *Controller) startSession(ctx context.Context, userID string) (string, error) {
	tokenString, err := c.tokens.Issue(userID)
	if err != nil {
		return "", err
	}
	if err := c.store.AddSession(ctx, userID, tokenString); err != nil {
		return "", err
	}
	return tokenString, nil
}
