package logging

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	AuthStatusSuccess       = "success"
	AuthStatusFailed        = "failed"
	AuthStatusNone          = "none"
	RequestIDHeader         = "X-Request-ID"
	AuthStatusContextKey    = "auth_status"
	AuthErrorContextKey     = "auth_error"
	AuthTokenHashContextKey = "auth_token_hash"
)

var quietPaths = map[string]bool{
	"/api/health":      true,
	"/ws/agent/status": true,
}

func RequestLoggingMiddleware(logger *Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			requestID := req.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
				req.Header.Set(RequestIDHeader, requestID)
			}
			c.Response().Header().Set(RequestIDHeader, requestID)

			err := next(c)

			status := c.Response().Status
			authStatus := AuthStatusNone
			if s, ok := c.Get(AuthStatusContextKey).(string); ok {
				authStatus = s
			}

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("source_ip", c.RealIP()),
				zap.String("auth_status", authStatus),
				zap.Int64("response_size", c.Response().Size),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
			}
			if batchID := c.Param("batchId"); batchID != "" {
				fields = append(fields, zap.String("batch_id", batchID))
			}
			if hash, ok := c.Get(AuthTokenHashContextKey).(string); ok {
				fields = append(fields, zap.String("auth_token_hash", hash))
			}
			if authErr, ok := c.Get(AuthErrorContextKey).(string); ok {
				fields = append(fields, zap.String("auth_error", authErr))
			}

			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					if status == 0 || status == 200 {
						status = he.Code
					}
					fields = append(fields, zap.String("error", fmt.Sprintf("%v", he.Message)))
				} else {
					fields = append(fields, zap.Error(err))
				}
			}
			fields = append(fields, zap.Int("status_code", status))

			switch {
			case err != nil || status >= 500:
				logger.Error("request failed", fields...)
			case authStatus == AuthStatusFailed || status >= 400:
				logger.Warn("request rejected", fields...)
			case quietPaths[req.URL.Path]:
				logger.Debug("request handled", fields...)
			default:
				logger.Info("request handled", fields...)
			}

			return err
		}
	}
}

func HashToken(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("sha256:%x", hash[:8])
}

func SetAuthSuccess(c echo.Context, token string) {
	c.Set(AuthStatusContextKey, AuthStatusSuccess)
	if token != "" {
		c.Set(AuthTokenHashContextKey, HashToken(token))
	}
}

func SetAuthFailure(c echo.Context, reason string) {
	c.Set(AuthStatusContextKey, AuthStatusFailed)
	c.Set(AuthErrorContextKey, reason)
}

func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}
