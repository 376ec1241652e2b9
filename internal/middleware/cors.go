// Package middleware provides HTTP middleware functions.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSMiddleware returns a CORS middleware that allows requests from the
// configured origin, localhost and CloudFront domains.
func CORSMiddleware(allowedOrigin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get("Origin")

			if isAllowedOrigin(origin, allowedOrigin) {
				h := c.Response().Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			// Handle preflight requests
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}

// isAllowedOrigin checks if the origin is allowed for CORS.
func isAllowedOrigin(origin, allowedOrigin string) bool {
	if origin == "" {
		return false
	}
	if allowedOrigin != "" && origin == strings.TrimSuffix(allowedOrigin, "/") {
		return true
	}

	// Allow localhost for development
	if strings.HasPrefix(origin, "http://localhost:") {
		return true
	}

	return strings.HasPrefix(origin, "https://") && strings.HasSuffix(origin, ".cloudfront.net")
}
