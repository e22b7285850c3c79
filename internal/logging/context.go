package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"

	// RequestIDHeader carries the trace id in and out of the API
	RequestIDHeader = "X-Request-ID"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Default()
	}
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the request trace id, if any
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// KeyContext creates a logger context for activation key operations
func KeyContext(ctx context.Context, keyID int64, code string) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"key_id":   keyID,
		"key_code": code,
	}).WithComponent("license")
}

// UserContext creates a logger context for account operations
func UserContext(ctx context.Context, userID int64) *Logger {
	return FromContext(ctx).WithField("user_id", userID)
}

// DeviceContext creates a logger context for device trial operations
func DeviceContext(ctx context.Context, deviceID, platform string) *Logger {
	return FromContext(ctx).WithFields(map[string]interface{}{
		"device_id": deviceID,
		"platform":  platform,
	}).WithComponent("trial")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// GinMiddleware attaches a request-scoped logger and logs request completion
func GinMiddleware(base *Logger) gin.HandlerFunc {
	if base == nil {
		base = Default()
	}

	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(RequestIDHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}
		c.Header(RequestIDHeader, traceID)

		l := base.WithTraceID(traceID).WithComponent("http")

		ctx := NewContext(c.Request.Context(), l)
		ctx = context.WithValue(ctx, traceIDKey, traceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		entry := l.WithDuration(time.Since(start)).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status_code": c.Writer.Status(),
			"client_ip":   c.ClientIP(),
		})

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Request completed")
		case status >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}
