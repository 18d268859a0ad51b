package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/tasktracker/pkg/route"
)

// authErrorMessage は認証エラー時の共通メッセージ。
const authErrorMessage = "Please authenticate."

// Base はリソースコントローラーに埋め込む共通部分。
// ロガーとルートテーブルを保持し、応答ヘルパーを提供する。
type Base struct {
	logger *slog.Logger
	table  *route.Table
}

// NewBase はBaseを生成する。
func NewBase(logger *slog.Logger, table *route.Table) Base {
	return Base{logger: logger, table: table}
}

// Table はコントローラーのルートテーブルを返す。
func (b *Base) Table() *route.Table {
	return b.table
}

// Logger はコントローラーのロガーを返す。
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// OK は200とbodyを返す。
func (b *Base) OK(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// Created は201とbodyを返す。
func (b *Base) Created(c *gin.Context, body any) {
	c.JSON(http.StatusCreated, body)
}

// Error は指定ステータスと {"error": msg} を返す。
func (b *Base) Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// NotFound は本文なしの404を返す。
func (b *Base) NotFound(c *gin.Context) {
	c.Status(http.StatusNotFound)
}

// Fail はエラー分類に応じた応答を返す。
// 分類されないエラーはストア障害とみなして500を返し、ログに記録する。
func (b *Base) Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		b.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAuthentication):
		b.Error(c, http.StatusUnauthorized, authErrorMessage)
	case errors.Is(err, ErrNotFound):
		b.NotFound(c)
	default:
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		b.logger.Log(c.Request.Context(), level, "リクエストの処理に失敗",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		b.Error(c, http.StatusInternalServerError, err.Error())
	}
}
