package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iabetor/jatts/internal/logger"
)

// accessLog 以结构化字段记录每个请求的方法、路径、状态码与耗时。
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start).Round(time.Millisecond)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Z.Warn("[server] 请求", fields...)
		case path == "/healthz":
			logger.Z.Debug("[server] 请求", fields...)
		default:
			logger.Z.Info("[server] 请求", fields...)
		}
	}
}

func recoverPanic(c *gin.Context, err any) {
	logger.Errorf("[server] 处理 %s %s 时 panic: %v\n%s", c.Request.Method, c.Request.URL.Path, err, debug.Stack())
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// rateLimit 对合成请求做令牌桶限流，未配置时直接放行。
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || s.limiter.Allow() {
			c.Next()
			return
		}
		logger.Warnf("[server] 请求过于频繁，已拒绝: %s", c.ClientIP())
		s.renderError(c, http.StatusTooManyRequests, "Too many requests, please wait a moment and try again.")
		c.Abort()
	}
}
