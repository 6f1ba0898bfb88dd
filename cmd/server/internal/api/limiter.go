package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/houzhh15/whisper-gateway/pkg/logger"
)

// msgBusy 等待名额期间客户端断开时的响应
const msgBusy = "Service occupé, réessayez plus tard"

// Limiter 限制同时进行的转写数量。
// 等待没有超时，只在请求上下文结束（客户端断开）时放弃。
type Limiter struct {
	sem  *semaphore.Weighted
	size int64
}

// NewLimiter 创建并发上限为 n 的限流器，n < 1 时按 1 处理
func NewLimiter(n int64) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(n), size: n}
}

// Size 返回并发上限
func (l *Limiter) Size() int64 {
	return l.size
}

// Acquire 获取一个名额，阻塞直到可用或 ctx 结束
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire transcription slot: %w", err)
	}
	return nil
}

// Release 释放一个名额，必须与 Acquire 成对调用
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Middleware 在处理函数外层获取名额，处理结束后释放
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.Acquire(c.Request.Context()); err != nil {
			logger.L().Warn("transcription slot not acquired", "path", c.Request.URL.Path, "error", err)
			errorResponse(c, http.StatusServiceUnavailable, msgBusy)
			c.Abort()
			return
		}
		defer l.Release()
		c.Next()
	}
}
