package handler

import "github.com/labstack/echo/v4"

// SuccessResponse writes the standard success envelope.
func SuccessResponse(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorResponse writes the standard error envelope. detail is optional
// extra context for the caller.
func ErrorResponse(c echo.Context, status int, message, code, detail string) error {
	errBody := map[string]string{"code": code}
	if detail != "" {
		errBody["detail"] = detail
	}
	return c.JSON(status, map[string]interface{}{
		"success": false,
		"message": message,
		"error":   errBody,
	})
}
