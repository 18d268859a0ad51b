package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Deadline はリクエストのコンテキストにタイムアウトを設定するGinミドルウェアを返す。
// ストア呼び出しはこのコンテキストを引き継ぐため、timeoutを超えた処理はキャンセルされる。
// timeoutが0以下の場合は何もしない。
func Deadline(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
