package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit はリクエストボディの読み取りをlimitバイトまでに制限するミドルウェアを返す。
// 上限を超えた読み取りは *http.MaxBytesError を返すため、ハンドラー側で400に変換する。
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
