package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/azhengyongqin/novelhub/internal/logger"
)

const (
	// MaxBodyLogSize 最大记录的请求/响应体大小（字节）
	MaxBodyLogSize = 4096
)

// responseWriter 包装 gin.ResponseWriter，拦截响应数据用于日志记录。
// 只缓存前 4KB，避免大响应体（如文件下载）占用过多内存。
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
	size int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	// 先写入原始 ResponseWriter，确保客户端能正常收到响应
	size, err := w.ResponseWriter.Write(b)

	w.size += size

	// 只在响应体较小时才缓存到内存中
	if w.body.Len()+len(b) <= MaxBodyLogSize {
		w.body.Write(b)
	}

	return size, err
}

// LoggingMiddleware 记录请求日志
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 获取 request_id（由 RequestIDMiddleware 设置）
		requestID, _ := c.Get("request_id")

		// 获取路径（优先使用路由模板）
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		// 读取请求体（仅对 POST/PATCH 且体积较小时记录；multipart 上传不读）
		var requestBody string
		if c.Request.Body != nil &&
			(c.Request.Method == "POST" || c.Request.Method == "PATCH") &&
			c.ContentType() == "application/json" {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err == nil {
				// 恢复请求体，以便后续处理器可以读取
				c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

				if len(bodyBytes) > 0 && len(bodyBytes) <= MaxBodyLogSize {
					requestBody = string(bodyBytes)
				} else if len(bodyBytes) > MaxBodyLogSize {
					requestBody = string(bodyBytes[:MaxBodyLogSize]) + "... (truncated)"
				}
			}
		}

		// 包装 ResponseWriter 以捕获响应
		blw := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBufferString(""),
		}
		c.Writer = blw

		// 处理请求
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		// 按状态码选择日志级别
		var logEvent *zerolog.Event
		switch {
		case status >= 500:
			logEvent = logger.L.Error()
		case status >= 400:
			logEvent = logger.L.Warn()
		default:
			logEvent = logger.L.Info()
		}

		if requestID != nil {
			logEvent = logEvent.Interface("request_id", requestID)
		}
		logEvent = logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration(ms)", duration).
			Int("response_size", blw.size).
			Str("client_ip", c.ClientIP())

		if c.Request.URL.RawQuery != "" {
			logEvent = logEvent.Str("query", c.Request.URL.RawQuery)
		}

		if requestBody != "" {
			logEvent = logEvent.Str("request_body", requestBody)
		}

		if len(c.Errors) > 0 {
			logEvent = logEvent.Str("errors", c.Errors.String())
		}

		// 5xx 错误记录响应体以便排查
		if status >= 500 && blw.body.Len() > 0 {
			logEvent = logEvent.Str("response_body", blw.body.String())
		}

		logEvent.Msg("HTTP 请求")
	}
}

// GetRequestID 从上下文中获取请求 ID
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
