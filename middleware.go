package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one line per request after it has been served
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			logger.Error("Request served", attrs...)
		case status >= 400:
			logger.Warn("Request served", attrs...)
		default:
			logger.Info("Request served", attrs...)
		}
	}
}

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted so the web UI can parse error responses.
func jsonRecovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered from panic", "panic", r, "path", c.Request.URL.Path)
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// canonicalErrors makes every error response (>=400) a JSON object with an
// "error" key. Bodies that already have one pass through untouched so extra
// keys such as "fields" survive.
func canonicalErrors(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		origWriter := c.Writer
		bcw := &bodyCaptureWriter{ResponseWriter: origWriter}
		c.Writer = bcw

		c.Next()

		c.Writer = origWriter
		status := bcw.Status()
		buf := bcw.body.Bytes()
		ct := bcw.Header().Get("Content-Type")

		if status >= 400 && !hasJSONError(buf, ct) {
			msg := http.StatusText(status)
			if text := bytes.TrimSpace(buf); len(text) > 0 {
				msg = string(text)
			} else if len(c.Errors) > 0 {
				msg = c.Errors.Last().Error()
			}

			out, _ := json.Marshal(gin.H{"error": msg})
			origWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
			origWriter.WriteHeader(status)
			if _, err := origWriter.Write(out); err != nil {
				logger.Error("canonicalErrors: failed to write error response", "error", err)
			}
			return
		}

		if len(buf) > 0 {
			origWriter.WriteHeader(status)
			if _, err := origWriter.Write(buf); err != nil {
				logger.Error("canonicalErrors: failed to write response body", "error", err)
			}
		}
	}
}

func hasJSONError(buf []byte, contentType string) bool {
	if len(buf) == 0 || !strings.Contains(contentType, "application/json") {
		return false
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(buf, &parsed); err != nil {
		return false
	}
	_, ok := parsed["error"].(string)
	return ok
}

// bodyCaptureWriter buffers response body writes so middleware can inspect
// and optionally rewrite the output before sending to the client.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}
