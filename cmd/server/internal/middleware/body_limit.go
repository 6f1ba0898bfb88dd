package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit 限制请求体大小。
// Content-Length 已超限时直接返回 413；否则用 http.MaxBytesReader 包装请求体，
// 读取越界时由处理函数把 *http.MaxBytesError 转换为 413。
func BodyLimit(maxBytes int64, onTooLarge func(c *gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			onTooLarge(c)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
