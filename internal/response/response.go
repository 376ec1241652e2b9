// Package response provides helpers for consistent API responses.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Success sends a successful JSON response with the given data.
// The response will always include "error": false.
func Success(c echo.Context, data map[string]interface{}) error {
	resp := make(map[string]interface{})
	resp["error"] = false

	// Merge additional data
	for k, v := range data {
		resp[k] = v
	}

	return c.JSON(http.StatusOK, resp)
}

// Error sends an error JSON response with the given status code and message.
func Error(c echo.Context, statusCode int, message string) error {
	return c.JSON(statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
	})
}

// Stale sends the answer for a result that was discarded because the
// pieces changed while it was computed. It is not an error for the client.
func Stale(c echo.Context, version uint64) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"error":   false,
		"stale":   true,
		"version": version,
		"message": "ピースが動いたため結果を破棄しました",
	})
}

// ErrorWithCode sends an error response with a specific error code.
// This is useful for clients that need to handle specific error types.
func ErrorWithCode(c echo.Context, statusCode int, code string, message string) error {
	return c.JSON(statusCode, map[string]interface{}{
		"error":   true,
		"code":    code,
		"message": message,
	})
}
