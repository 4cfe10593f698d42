package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TokenQueryParam carries the token for clients that cannot set headers,
// such as browser EventSource and WebSocket connections.
const TokenQueryParam = "access_token"

func TokenMiddleware(accessToken string, logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sourceIP := c.RealIP()

			if accessToken == "" {
				logging.SetAuthFailure(c, "access token not configured")
				logger.Warn("authentication failed, token not configured",
					zap.String("source_ip", sourceIP))
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "Access token not configured",
				})
			}

			token := requestToken(c)
			if token == "" {
				logging.SetAuthFailure(c, "bearer token required")
				logger.Warn("authentication failed, missing bearer token",
					zap.String("source_ip", sourceIP),
					zap.String("path", c.Request().URL.Path))
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Bearer token required",
				})
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(accessToken)) != 1 {
				logging.SetAuthFailure(c, "invalid token")
				logger.Warn("authentication failed, invalid token",
					zap.String("source_ip", sourceIP),
					zap.String("token_hash", logging.HashToken(token)))
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Invalid token",
				})
			}

			logging.SetAuthSuccess(c, token)
			return next(c)
		}
	}
}

func requestToken(c echo.Context) string {
	if token := logging.ExtractBearerToken(c.Request().Header.Get("Authorization")); token != "" {
		return token
	}
	if c.Request().Method == http.MethodGet {
		return c.QueryParam(TokenQueryParam)
	}
	return ""
}
