package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/utils"
)

// PermissionRequired rejects callers whose role lacks perm with 403. API paths get a JSON body,
// pages get the error template. Anonymous web visitors are sent to the login page instead.
func PermissionRequired(perm models.Permission) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user.Can(perm) {
			ctx.Next()
			return
		}
		if isAPIRequest(ctx) {
			utils.Forbidden(ctx, "Insufficient permissions")
			return
		}
		if user == nil {
			LoginRequired()(ctx)
			return
		}
		ctx.HTML(http.StatusForbidden, "error.html", gin.H{
			"Status":  http.StatusForbidden,
			"Title":   "Forbidden",
			"Message": "You do not have permission to access this page.",
		})
		ctx.Abort()
	}
}
