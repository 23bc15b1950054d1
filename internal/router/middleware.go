package router

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"

	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Content-Type, Authorization, x-api-key, x-api-secret"
)

// RequestID 为每个请求分配 ID，沿用客户端传入的 X-Request-ID。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDContextKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// RequestLogger 输出访问日志。
func RequestLogger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := l.Info()
		if status >= http.StatusInternalServerError {
			event = l.Error()
		}
		event.
			Str("request_id", c.GetString(requestIDContextKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// CORS 允许扩展从任意来源调用接口，OPTIONS 预检直接返回 204。
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", allowMethods)
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ConfigGuard 在必需配置缺失时拒绝请求，不做任何读写。
func ConfigGuard(configErr error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if configErr == nil {
			c.Next()
			return
		}

		body := gin.H{"error": "Server Configuration Error"}
		var cfgErr *config.Error
		if errors.As(configErr, &cfgErr) {
			if len(cfgErr.Missing) > 0 {
				body["missing"] = cfgErr.Missing
			}
			if len(cfgErr.Invalid) > 0 {
				body["invalid"] = cfgErr.Invalid
			}
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	}
}

// APISecretAuth 校验 x-api-key 或 x-api-secret 请求头，失败时不透露任何关于密钥的信息。
func APISecretAuth(secret string, metrics *observability.Metrics) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader("x-api-key"))
		if provided == "" {
			provided = strings.TrimSpace(c.GetHeader("x-api-secret"))
		}

		if len(expected) == 0 || provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			if metrics != nil {
				metrics.AuthFailures.Inc()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
