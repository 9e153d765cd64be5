package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/middleware"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/utils"
)

// WebController serves the HTML pages.
type WebController struct {
	cfg      *config.AppConfig
	cache    *utils.Cache
	accounts *services.AccountService
}

// NewWebController creates a new WebController instance.
func NewWebController(cfg *config.AppConfig, cache *utils.Cache, accounts *services.AccountService) *WebController {
	return &WebController{cfg: cfg, cache: cache, accounts: accounts}
}

// fieldErrors maps form field names to the message shown next to them.
type fieldErrors map[string]string

// render executes page with the current user and pending flash messages added to data.
func (w *WebController) render(ctx *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["User"] = middleware.CurrentUser(ctx)
	data["Flashes"] = middleware.Flashes(ctx)
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = fieldErrors{}
	}
	ctx.HTML(status, page, data)
}

func (w *WebController) errorPage(ctx *gin.Context, status int, title, message string) {
	w.render(ctx, status, "error.html", gin.H{"Status": status, "Title": title, "Message": message})
	ctx.Abort()
}

func (w *WebController) notFound(ctx *gin.Context) {
	w.errorPage(ctx, http.StatusNotFound, "Not Found", "The page you requested does not exist.")
}

func (w *WebController) forbidden(ctx *gin.Context) {
	w.errorPage(ctx, http.StatusForbidden, "Forbidden", "You do not have permission to access this page.")
}

func (w *WebController) internalError(ctx *gin.Context, err error) {
	utils.Sugar.Errorw("page failed", "path", ctx.Request.URL.Path, "error", err)
	w.errorPage(ctx, http.StatusInternalServerError, "Internal Server Error", "Something went wrong on our side.")
}

// NotFoundPage is the HTML fallback for unknown routes.
func (w *WebController) NotFoundPage(ctx *gin.Context) {
	w.notFound(ctx)
}

func (w *WebController) redirect(ctx *gin.Context, location string) {
	ctx.Redirect(http.StatusFound, location)
	ctx.Abort()
}

// baseURL is the scheme and host links in outgoing mail point at.
func baseURL(ctx *gin.Context) string {
	return utils.ExternalURL(ctx, "")
}

// safeNext accepts only same-site absolute paths as a post-login target.
func safeNext(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
		return next
	}
	return "/"
}
