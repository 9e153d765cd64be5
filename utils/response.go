package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error writes an error body and aborts the handler chain.
func Error(ctx *gin.Context, status int, code string, message string) {
	ctx.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

// BadRequest is the API form of a validation error.
func BadRequest(ctx *gin.Context, message string) {
	Error(ctx, http.StatusBadRequest, "bad request", message)
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(ctx *gin.Context, message string) {
	Error(ctx, http.StatusUnauthorized, "unauthorized", message)
}

// Forbidden reports an authenticated caller lacking a permission.
func Forbidden(ctx *gin.Context, message string) {
	Error(ctx, http.StatusForbidden, "forbidden", message)
}

// NotFound reports an unknown resource.
func NotFound(ctx *gin.Context) {
	Error(ctx, http.StatusNotFound, "not found", "")
}

// InternalError logs err and reports a 500 without details.
func InternalError(ctx *gin.Context, err error) {
	Sugar.Errorw("request failed", "path", ctx.Request.URL.Path, "error", err)
	Error(ctx, http.StatusInternalServerError, "internal server error", "")
}
