// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"regexp"
	"time"

	"invest-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 日志中请求体和响应体的最大长度。
const maxLoggedBody = 2048

// 需要脱敏的 JSON 字段。
var credentialFieldPattern = regexp.MustCompile(`("(?:session_token|recaptchaToken|client_key)"\s*:\s*)"[^"]*"`)

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

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志，凭据字段会被脱敏。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", redactBody(requestBody),
			"responseBody", redactBody(blw.body.Bytes()),
		)
	}
}

// redactBody 先隐藏凭据字段的值再截断，截断点不会落在未隐藏的凭据中间。
func redactBody(body []byte) string {
	out := credentialFieldPattern.ReplaceAllString(string(body), `$1"***"`)
	if len(out) > maxLoggedBody {
		out = out[:maxLoggedBody]
	}
	return out
}
