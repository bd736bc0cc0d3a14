// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mcp-knowledge-go/pkg/log"
)

// 超过该长度的请求体和响应体只记录长度。
const maxLoggedBody = 4 << 10

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 文件上传、SSE 与 WebSocket 等流式请求不记录请求体和响应体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		streaming := isStreaming(c)

		var requestBody []byte
		if !streaming && c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		var blw *bodyLogWriter
		if !streaming {
			blw = &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
			c.Writer = blw
		}

		c.Next()

		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if !streaming {
			fields = append(fields,
				"requestBody", truncate(requestBody),
				"responseBody", truncate(blw.body.Bytes()),
			)
		}
		log.Infow("HTTP Request Log", fields...)
	}
}

func isStreaming(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	path := c.Request.URL.Path
	return strings.HasSuffix(path, "/sse") || path == "/metrics"
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}
