package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
)

// errorResponse 返回错误响应
func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

// writeError 将 orchestrator 错误转换为 {"error": ...} 响应
func writeError(c *gin.Context, err error) {
	errorResponse(c, orchestrator.HTTPStatus(err), orchestrator.PublicMessage(err))
}

// PayloadTooLarge 返回 413 处理函数，供 BodyLimit 中间件和请求体读取失败时使用
func PayloadTooLarge(limitMB int64) func(c *gin.Context) {
	return func(c *gin.Context) {
		writeError(c, orchestrator.NewPayloadTooLargeError(limitMB))
	}
}

// isBodyTooLarge 判断读取请求体失败是否因为超过 MaxBytesReader 上限
func isBodyTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart 解析有时只保留错误文本
	return strings.Contains(err.Error(), "request body too large")
}

// formBool 解析表单布尔值，仅 "true"（不区分大小写）为真，缺省取 def
func formBool(c *gin.Context, key string, def bool) bool {
	v, ok := c.GetPostForm(key)
	if !ok {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
