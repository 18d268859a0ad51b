package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// 認証ゲートがコンテキストに設定するキー。
const (
	contextKeyUserID = "user_id"
	contextKeyToken  = "token"
)

// authErrorMessage は認証失敗時に返す唯一のメッセージ。
// どの検証で失敗したかを応答から推測できないよう、全ての失敗で共通にする。
const authErrorMessage = "Please authenticate."

var (
	// ErrMissingCredential はAuthorizationヘッダーが無い、または形式が不正であることを表す。
	ErrMissingCredential = errors.New("missing bearer credential")
	// ErrRevoked はトークンの署名は正しいがセッションが失効済みであることを表す。
	ErrRevoked = errors.New("session revoked")
	// errSessionLookup はセッションストアの参照自体が失敗したことを表す。
	errSessionLookup = errors.New("session lookup failed")
)

// TokenVerifier はトークンの署名と有効期限を検証し、ユーザーIDを返す。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// SessionLookup はユーザーの有効なセッション集合にトークンが含まれるかを判定する。
// ユーザーが存在しない場合も false を返す。
type SessionLookup interface {
	SessionExists(ctx context.Context, userID, token string) (bool, error)
}

// BearerToken はAuthorizationヘッダーから "Bearer <token>" 形式のトークンを取り出す。
func BearerToken(header string) (string, error) {
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", ErrMissingCredential
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrMissingCredential
	}
	return tokenString, nil
}

// Authenticate はBearerトークンを検証するGinミドルウェアを返す。
// 署名・有効期限の検証に加えて、トークンがユーザーの有効なセッション集合に
// 残っていることを確認する。成功時はコンテキストにユーザーIDと生のトークンを設定する。
// 失敗時は理由によらず401と共通メッセージを返す。
func Authenticate(tokens TokenVerifier, sessions SessionLookup, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tokenString, err := authenticate(c.Request.Context(), c.GetHeader("Authorization"), tokens, sessions)
		if err != nil {
			level := slog.LevelDebug
			if errors.Is(err, errSessionLookup) {
				level = slog.LevelError
			}
			logger.Log(c.Request.Context(), level, "認証に失敗",
				"method", c.Request.Method, "path", c.Request.URL.Path, "reason", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authErrorMessage})
			return
		}

		c.Set(contextKeyUserID, userID)
		c.Set(contextKeyToken, tokenString)
		c.Next()
	}
}

// authenticate は認証の各段階を順に実行する。
func authenticate(ctx context.Context, header string, tokens TokenVerifier, sessions SessionLookup) (string, string, error) {
	tokenString, err := BearerToken(header)
	if err != nil {
		return "", "", err
	}

	userID, err := tokens.Verify(tokenString)
	if err != nil {
		return "", "", err
	}

	ok, err := sessions.SessionExists(ctx, userID, tokenString)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errSessionLookup, err)
	}
	if !ok {
		return "", "", ErrRevoked
	}
	return userID, tokenString, nil
}

// GetUserID はGinコンテキストから認証済みユーザーIDを取得する。
// Authenticateミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetToken はGinコンテキストから認証に使用された生のトークンを取得する。
// ログアウト時に該当セッションのみを削除するために使用する。
func GetToken(c *gin.Context) string {
	return c.GetString(contextKeyToken)
}
