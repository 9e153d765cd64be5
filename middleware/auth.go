package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/utils"
)

const (
	// ContextUserKey stores the authenticated *models.User inside Gin context.
	ContextUserKey = "current_user"
	// ContextTokenUsedKey is set when the API caller authenticated with a token instead of a password.
	ContextTokenUsedKey = "token_used"
	// SessionCookie names the web login cookie.
	SessionCookie = "session"
)

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func ping(ctx *gin.Context, user *models.User) {
	if err := user.Ping(DB(ctx)); err != nil {
		utils.Logger.Warn("update last_seen", zap.Uint("user_id", user.ID), zap.Error(err))
	}
}

// APIAuth authenticates API calls with HTTP Basic (email or username plus password, or a token
// with an empty password) or a Bearer token. Missing or bad credentials get 401 and
// unconfirmed accounts get 403.
func APIAuth(accounts *services.AccountService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		db := DB(ctx)
		var (
			user      *models.User
			err       error
			tokenUsed bool
		)

		header := ctx.GetHeader("Authorization")
		if login, password, ok := ctx.Request.BasicAuth(); ok && login != "" {
			if password == "" {
				tokenUsed = true
				user, err = accounts.UserForAccessToken(db, login, utils.PurposeAPI)
			} else {
				user, err = accounts.Authenticate(db, login, password)
			}
		} else if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			tokenUsed = true
			user, err = accounts.UserForAccessToken(db, strings.TrimSpace(parts[1]), utils.PurposeAPI)
		} else {
			utils.Unauthorized(ctx, "Invalid credentials")
			return
		}

		if err != nil {
			if !errors.Is(err, services.ErrInvalidCredentials) && !errors.Is(err, services.ErrInvalidToken) {
				utils.InternalError(ctx, err)
				return
			}
			utils.Unauthorized(ctx, "Invalid credentials")
			return
		}
		if !user.Confirmed {
			utils.Forbidden(ctx, "Unconfirmed account")
			return
		}

		ctx.Set(ContextUserKey, user)
		ctx.Set(ContextTokenUsedKey, tokenUsed)
		ping(ctx, user)
		ctx.Next()
	}
}

// SessionAuth loads the user named by the session cookie, if any. Anonymous requests pass through.
func SessionAuth(accounts *services.AccountService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie(SessionCookie)
		if err != nil || token == "" {
			ctx.Next()
			return
		}
		user, err := accounts.UserForAccessToken(DB(ctx), token, utils.PurposeSession)
		if err != nil {
			if !errors.Is(err, services.ErrInvalidToken) {
				utils.Logger.Warn("session lookup failed", zap.Error(err))
			}
			ClearSession(ctx)
			ctx.Next()
			return
		}
		ctx.Set(ContextUserKey, user)
		ping(ctx, user)
		ctx.Next()
	}
}

// LoginRequired redirects anonymous visitors to the login page, remembering where they were going.
func LoginRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if CurrentUser(ctx) == nil {
			ctx.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(ctx.Request.URL.RequestURI()))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// unconfirmedAllowed lists path prefixes an unconfirmed user may still reach.
var unconfirmedAllowed = []string{
	"/login", "/logout", "/register", "/confirm", "/unconfirmed", "/reset",
	"/change-password", "/change_email", "/static", "/api/",
}

// UnconfirmedGate sends logged-in but unconfirmed users to /unconfirmed for every non-auth page.
func UnconfirmedGate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user == nil || user.Confirmed {
			ctx.Next()
			return
		}
		path := ctx.Request.URL.Path
		for _, prefix := range unconfirmedAllowed {
			if strings.HasPrefix(path, prefix) {
				ctx.Next()
				return
			}
		}
		ctx.Redirect(http.StatusFound, "/unconfirmed")
		ctx.Abort()
	}
}

// SetSession stores a session token cookie. A zero maxAge makes it a browser-session cookie.
func SetSession(ctx *gin.Context, token string, maxAge int) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(SessionCookie, token, maxAge, "/", "", utils.RequestScheme(ctx) == "https", true)
}

// ClearSession removes the session cookie.
func ClearSession(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}
