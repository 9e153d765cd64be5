package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/controllers"
	"github.com/cppla/bloghub/middleware"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/templates"
	"github.com/cppla/bloghub/utils"
)

// Deps are the long-lived services the handlers share.
type Deps struct {
	Accounts *services.AccountService
	Cache    *utils.Cache
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg *config.AppConfig, db *gorm.DB, deps Deps) (*gin.Engine, error) {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	pages, err := templates.Load()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.HTMLRender = pages
	if !cfg.TrustProxy {
		if err := r.SetTrustedProxies(nil); err != nil {
			return nil, err
		}
	}
	r.Use(utils.TrustProxy(cfg.TrustProxy))
	r.Use(utils.Ginzap(utils.Logger, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(utils.Logger, true))
	if !cfg.SSLDisable {
		r.Use(middleware.RequireTLS())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute).Middleware()
	app := r.Group("", middleware.Transaction(db))

	web := controllers.NewWebController(cfg, deps.Cache, deps.Accounts)
	registerWeb(app, web, deps.Accounts, limiter)

	api := controllers.NewAPIController(cfg, deps.Cache, deps.Accounts)
	registerAPI(app, api, deps.Accounts, limiter)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") || wantsJSON(ctx) {
			utils.NotFound(ctx)
			return
		}
		web.NotFoundPage(ctx)
	})

	return r, nil
}

// wantsJSON reports whether the client accepts JSON but not HTML.
func wantsJSON(ctx *gin.Context) bool {
	accept := ctx.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func registerWeb(app *gin.RouterGroup, w *controllers.WebController, accounts *services.AccountService, limiter gin.HandlerFunc) {
	web := app.Group("", middleware.SessionAuth(accounts), middleware.UnconfirmedGate())
	login := middleware.LoginRequired()

	web.GET("/", w.Index)
	web.POST("/", login, w.CreatePost)
	web.GET("/all", login, w.ShowAll)
	web.GET("/followed", login, w.ShowFollowed)

	web.GET("/login", w.LoginPage)
	web.POST("/login", limiter, w.Login)
	web.GET("/logout", login, w.Logout)
	web.GET("/register", w.RegisterPage)
	web.POST("/register", limiter, w.Register)
	web.GET("/unconfirmed", w.Unconfirmed)
	web.GET("/confirm", login, w.ResendConfirmation)
	web.GET("/confirm/:token", login, w.Confirm)
	web.GET("/change-password", login, w.ChangePasswordPage)
	web.POST("/change-password", login, w.ChangePassword)
	web.GET("/reset", w.ResetRequestPage)
	web.POST("/reset", limiter, w.ResetRequest)
	web.GET("/reset/:token", w.ResetPage)
	web.POST("/reset/:token", limiter, w.Reset)
	web.GET("/change_email", login, w.ChangeEmailPage)
	web.POST("/change_email", login, w.ChangeEmailRequest)
	web.GET("/change_email/:token", login, w.ChangeEmail)

	web.GET("/user/:username", w.UserPage)
	web.GET("/edit-profile", login, w.EditProfilePage)
	web.POST("/edit-profile", login, w.EditProfile)
	admin := middleware.PermissionRequired(models.PermAdmin)
	web.GET("/edit-profile/:id", admin, w.AdminEditProfilePage)
	web.POST("/edit-profile/:id", admin, w.AdminEditProfile)

	web.GET("/post/:id", w.PostPage)
	web.POST("/post/:id", login, w.CreateComment)
	web.GET("/edit/:id", login, w.EditPostPage)
	web.POST("/edit/:id", login, w.EditPost)

	follow := middleware.PermissionRequired(models.PermFollow)
	web.GET("/follow/:username", follow, w.Follow)
	web.GET("/unfollow/:username", follow, w.Unfollow)
	web.GET("/followers/:username", w.Followers)
	web.GET("/followed_by/:username", w.FollowedBy)

	moderate := middleware.PermissionRequired(models.PermModerate)
	web.GET("/moderate", moderate, w.Moderate)
	web.GET("/moderate/enable/:id", moderate, w.ModerateEnable)
	web.GET("/moderate/disable/:id", moderate, w.ModerateDisable)
}

func registerAPI(app *gin.RouterGroup, a *controllers.APIController, accounts *services.AccountService, limiter gin.HandlerFunc) {
	auth := middleware.APIAuth(accounts)
	app.POST("/api/v1/token", limiter, auth, a.GetToken)

	api := app.Group("/api/v1", auth)
	write := middleware.PermissionRequired(models.PermWrite)
	comment := middleware.PermissionRequired(models.PermComment)
	follow := middleware.PermissionRequired(models.PermFollow)
	moderate := middleware.PermissionRequired(models.PermModerate)
	admin := middleware.PermissionRequired(models.PermAdmin)

	// Collections answer with and without the trailing slash.
	list := func(method, path string, handlers ...gin.HandlerFunc) {
		api.Handle(method, path, handlers...)
		api.Handle(method, path+"/", handlers...)
	}

	list(http.MethodGet, "/posts", a.ListPosts)
	list(http.MethodPost, "/posts", write, a.CreatePost)
	api.GET("/posts/:id", a.GetPost)
	api.PUT("/posts/:id", write, a.UpdatePost)
	list(http.MethodGet, "/posts/:id/comments", a.ListPostComments)
	list(http.MethodPost, "/posts/:id/comments", comment, a.CreatePostComment)

	list(http.MethodGet, "/comments", a.ListComments)
	api.GET("/comments/:id", a.GetComment)
	api.PUT("/comments/:id/moderation", moderate, a.ModerateComment)

	api.GET("/users/:id", a.GetUser)
	list(http.MethodGet, "/users/:id/posts", a.ListUserPosts)
	list(http.MethodGet, "/users/:id/timeline", a.Timeline)
	list(http.MethodGet, "/users/:id/followers", a.Followers)
	list(http.MethodGet, "/users/:id/following", a.Following)
	api.POST("/users/:id/follow", follow, a.Follow)
	api.DELETE("/users/:id/follow", follow, a.Unfollow)
	api.PUT("/users/:id/admin", admin, a.AdminUpdateUser)
	api.PATCH("/profile", a.UpdateProfile)
}
