package user

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/tasktracker/internal/avatar"
	"github.com/nao1215/tasktracker/internal/store"
	"github.com/nao1215/tasktracker/pkg/controller"
	"github.com/nao1215/tasktracker/pkg/middleware"
	"github.com/nao1215/tasktracker/pkg/password"
)

// loginFailedMessage はログイン失敗時のメッセージ。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
const loginFailedMessage = "Unable to login"

// createRequest はユーザー登録リクエスト。
type createRequest struct {
	Name     string `json:"name" binding:"max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=7"`
	Age      int    `json:"age" binding:"gte=0"`
}

// loginRequest はログインリクエスト。
type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// patchRequest はユーザー更新リクエスト。ここにないフィールドを含むリクエストは拒否する。
type patchRequest struct {
	Name     *string `json:"name" binding:"omitnil,max=100"`
	Age      *int    `json:"age" binding:"omitnil,gte=0"`
	Email    *string `json:"email" binding:"omitnil,email"`
	Password *string `json:"password" binding:"omitnil,min=7"`
}

// normalizeEmail はメールアドレスを比較用に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPassword はパスワードの長さと、"password" という語が含まれていないかを検証する。
func checkPassword(plain string) error {
	if len(plain) > password.MaxBytes {
		return controller.Validation(fmt.Sprintf("Password must be at most %d bytes", password.MaxBytes))
	}
	if strings.Contains(strings.ToLower(plain), "password") {
		return controller.Validation(`Password cannot contain "password"`)
	}
	return nil
}

// handleList は全ユーザーの一覧を返すハンドラ。
func (c *Controller) handleList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		users, err := c.store.ListUsers(ctx.Request.Context())
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		resp := make([]userResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, toUserResponse(u))
		}
		c.OK(ctx, resp)
	}
}

// handleGet は指定IDのユーザーを返すハンドラ。
func (c *Controller) handleGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, err := c.store.GetUser(ctx.Request.Context(), ctx.Param("id"))
		if err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, toUserResponse(u))
	}
}

// handleMe は認証済みユーザー自身のプロフィールを返すハンドラ。
func (c *Controller) handleMe() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, err := c.currentUser(ctx)
		if err != nil {
			c.Fail(ctx, err)
			return
		}
		c.OK(ctx, toUserResponse(u))
	}
}

// handleCreate はユーザーを登録し、最初のセッショントークンを発行するハンドラ。
func (c *Controller) handleCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req createRequest
		if err := controller.BindJSON(ctx, &req); err != nil {
			c.Fail(ctx, err)
			return
		}
		if err := checkPassword(req.Password); err != nil {
			c.Fail(ctx, err)
			return
		}

		digest, err := c.hasher.Hash(req.Password)
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		u := &store.User{
			ID:             uuid.New().String(),
			Name:           strings.TrimSpace(req.Name),
			Email:          normalizeEmail(req.Email),
			Age:            req.Age,
			PasswordDigest: digest,
		}
		if err := c.store.CreateUser(ctx.Request.Context(), u); err != nil {
			c.Fail(ctx, classify(err))
			return
		}

		tokenString, err := c.startSession(ctx.Request.Context(), u.ID)
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		c.notifier.Welcome(ctx.Request.Context(), u.Email, u.Name)
		c.Logger().Info("ユーザーを登録", "user_id", u.ID)
		c.Created(ctx, sessionResponse{User: toUserResponse(u), Token: tokenString})
	}
}

// handleLogin はメールアドレスとパスワードを照合し、新しいセッショントークンを発行するハンドラ。
// 既存のセッションは維持される。
func (c *Controller) handleLogin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req loginRequest
		if err := controller.BindJSON(ctx, &req); err != nil {
			c.Fail(ctx, controller.Validation(loginFailedMessage))
			return
		}

		u, err := c.store.GetUserByEmail(ctx.Request.Context(), normalizeEmail(req.Email))
		if errors.Is(err, store.ErrNotFound) {
			if digest, err := c.dummyDigest(); err == nil {
				_, _ = c.hasher.Verify(req.Password, digest)
			}
			c.Fail(ctx, controller.Validation(loginFailedMessage))
			return
		}
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		ok, err := c.hasher.Verify(req.Password, u.PasswordDigest)
		if err != nil {
			c.Fail(ctx, err)
			return
		}
		if !ok {
			c.Fail(ctx, controller.Validation(loginFailedMessage))
			return
		}

		tokenString, err := c.startSession(ctx.Request.Context(), u.ID)
		if err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.Created(ctx, sessionResponse{User: toUserResponse(u), Token: tokenString})
	}
}

// handleLogout はリクエストに使われたトークンだけを失効させるハンドラ。
func (c *Controller) handleLogout() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		err := c.store.DeleteSession(ctx.Request.Context(), middleware.GetUserID(ctx), middleware.GetToken(ctx))
		// 並行したログアウトで既に削除済みの場合も成功とする
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.Fail(ctx, err)
			return
		}
		c.OK(ctx, messageResponse{Message: "Logout successful"})
	}
}

// handleLogoutAll はユーザーの全トークンを失効させるハンドラ。
func (c *Controller) handleLogoutAll() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		n, err := c.store.DeleteSessions(ctx.Request.Context(), middleware.GetUserID(ctx))
		if err != nil {
			c.Fail(ctx, err)
			return
		}
		c.Logger().Info("全セッションを失効", "user_id", middleware.GetUserID(ctx), "sessions", n)
		c.OK(ctx, messageResponse{Message: "Logout successful"})
	}
}

// handleUpdate は許可されたフィールドだけを更新するハンドラ。
func (c *Controller) handleUpdate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req patchRequest
		if err := controller.BindPatch(ctx, &req); err != nil {
			c.Fail(ctx, err)
			return
		}

		u, err := c.currentUser(ctx)
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		if req.Name != nil {
			u.Name = strings.TrimSpace(*req.Name)
		}
		if req.Age != nil {
			u.Age = *req.Age
		}
		if req.Email != nil {
			u.Email = normalizeEmail(*req.Email)
		}
		if req.Password != nil {
			if err := checkPassword(*req.Password); err != nil {
				c.Fail(ctx, err)
				return
			}
			digest, err := c.hasher.Hash(*req.Password)
			if err != nil {
				c.Fail(ctx, err)
				return
			}
			u.PasswordDigest = digest
		}

		if err := c.store.UpdateUser(ctx.Request.Context(), u); err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, toUserResponse(u))
	}
}

// handleDelete は退会処理を行うハンドラ。所有するタスクとセッションも削除される。
func (c *Controller) handleDelete() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, err := c.currentUser(ctx)
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		if err := c.store.DeleteUser(ctx.Request.Context(), u.ID); err != nil {
			c.Fail(ctx, classify(err))
			return
		}

		c.notifier.Cancellation(ctx.Request.Context(), u.Email, u.Name)
		c.Logger().Info("ユーザーを削除", "user_id", u.ID)
		c.OK(ctx, toUserResponse(u))
	}
}

// handleSetAvatar はアップロードされた画像を250x250のPNGに変換して保存するハンドラ。
func (c *Controller) handleSetAvatar() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fh, err := ctx.FormFile("avatar")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.Fail(ctx, controller.Validation(avatar.ErrTooLarge.Error()))
				return
			}
			c.Fail(ctx, controller.Validation("Please upload an image in the avatar field"))
			return
		}
		if err := avatar.CheckFilename(fh.Filename); err != nil {
			c.Fail(ctx, controller.Validation(err.Error()))
			return
		}
		if fh.Size > avatar.MaxBytes {
			c.Fail(ctx, controller.Validation(avatar.ErrTooLarge.Error()))
			return
		}

		f, err := fh.Open()
		if err != nil {
			c.Fail(ctx, err)
			return
		}
		defer f.Close()

		image, err := avatar.Transcode(f)
		switch {
		case errors.Is(err, avatar.ErrTooManyPixels):
			c.Fail(ctx, controller.Validation(avatar.ErrTooManyPixels.Error()))
			return
		case errors.Is(err, avatar.ErrTooLarge), errors.Is(err, avatar.ErrUndecodable):
			c.Fail(ctx, controller.Validation(err.Error()))
			return
		case err != nil:
			c.Fail(ctx, err)
			return
		}

		if err := c.store.SetAvatar(ctx.Request.Context(), middleware.GetUserID(ctx), image); err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, messageResponse{Message: "Avatar set"})
	}
}

// handleDeleteAvatar はアバター画像を削除するハンドラ。
func (c *Controller) handleDeleteAvatar() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, err := c.currentUser(ctx)
		if err != nil {
			c.Fail(ctx, err)
			return
		}
		if !u.HasAvatar {
			c.Error(ctx, http.StatusBadRequest, "No avatar")
			return
		}

		if err := c.store.SetAvatar(ctx.Request.Context(), u.ID, nil); err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, messageResponse{Message: "Avatar successfully deleted"})
	}
}

// handleGetAvatar は指定ユーザーのアバター画像をPNGで返すハンドラ。
func (c *Controller) handleGetAvatar() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		image, err := c.store.GetAvatar(ctx.Request.Context(), ctx.Param("id"))
		if err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		ctx.Data(http.StatusOK, "image/png", image)
	}
}
