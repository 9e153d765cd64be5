package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bloghub/utils"
)

// RequireTLS redirects plain HTTP requests to https on the same host. The scheme comes from
// utils.RequestScheme, so X-Forwarded-Proto counts only behind a trusted proxy.
func RequireTLS() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if utils.RequestScheme(ctx) == "https" {
			ctx.Next()
			return
		}
		target := "https://" + ctx.Request.Host + ctx.Request.URL.RequestURI()
		ctx.Redirect(http.StatusMovedPermanently, target)
		ctx.Abort()
	}
}
