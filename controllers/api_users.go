package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bloghub/middleware"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/utils"
)

func (a *APIController) loadUser(ctx *gin.Context) (*models.User, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return nil, false
	}
	user, err := models.FindUserByID(middleware.DB(ctx), id)
	if err != nil {
		loadError(ctx, err)
		return nil, false
	}
	return user, true
}

func (a *APIController) writeUser(ctx *gin.Context, status int, user *models.User) {
	rec, err := userRecord(ctx, middleware.DB(ctx), user)
	if err != nil {
		utils.InternalError(ctx, err)
		return
	}
	ctx.JSON(status, rec)
}

// GetUser returns a user record.
func (a *APIController) GetUser(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	a.writeUser(ctx, http.StatusOK, user)
}

// ListUserPosts returns a user's posts newest first.
func (a *APIController) ListUserPosts(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	db := middleware.DB(ctx)
	query := db.Model(&models.Post{}).Where("author_id = ?", user.ID).Order("timestamp DESC, id DESC")
	a.writePosts(ctx, db, query, a.cfg.PostsPerPage)
}

// Timeline returns posts by everyone the user follows, the user included, newest first.
func (a *APIController) Timeline(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	db := middleware.DB(ctx)
	a.writePosts(ctx, db, user.FollowedPosts(db).Order("posts.timestamp DESC, posts.id DESC"), a.cfg.PostsPerPage)
}

func (a *APIController) writeFollows(ctx *gin.Context, userID uint, joinOn, whereCol string) {
	db := middleware.DB(ctx)
	query := db.Table("follows").
		Select("users.id AS user_id, users.username AS username, follows.timestamp AS timestamp").
		Joins("JOIN users ON users.id = follows."+joinOn).
		Where("follows."+whereCol+" = ?", userID).
		Where("follows.follower_id <> follows.followed_id").
		Order("follows.timestamp DESC")

	var rows []struct {
		UserID    uint
		Username  string
		Timestamp time.Time
	}
	page, err := paginate(query, parsePage(ctx.Query("page")), a.cfg.FollowersPerPage, a.cfg.PaginationStrict, &rows)
	if err != nil {
		listError(ctx, err)
		return
	}
	items := make([]FollowRecord, 0, len(rows))
	for _, r := range rows {
		items = append(items, FollowRecord{
			UserURL:   utils.ExternalURL(ctx, userPath(r.UserID)),
			Username:  r.Username,
			Timestamp: r.Timestamp,
		})
	}
	ctx.JSON(http.StatusOK, listPayload(ctx, "follows", items, page))
}

// Followers lists the users following :id.
func (a *APIController) Followers(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	a.writeFollows(ctx, user.ID, "follower_id", "followed_id")
}

// Following lists the users :id follows.
func (a *APIController) Following(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	a.writeFollows(ctx, user.ID, "followed_id", "follower_id")
}

// Follow makes the caller follow :id.
func (a *APIController) Follow(ctx *gin.Context) {
	target, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	if err := middleware.CurrentUser(ctx).Follow(middleware.DB(ctx), target); err != nil {
		utils.InternalError(ctx, err)
		return
	}
	a.writeUser(ctx, http.StatusOK, target)
}

// Unfollow removes the caller's edge to :id.
func (a *APIController) Unfollow(ctx *gin.Context) {
	target, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	if err := middleware.CurrentUser(ctx).Unfollow(middleware.DB(ctx), target); err != nil {
		utils.InternalError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type profileRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=64"`
	Location *string `json:"location" binding:"omitempty,max=64"`
	AboutMe  *string `json:"about_me"`
}

func (r profileRequest) edit() services.ProfileEdit {
	return services.ProfileEdit{Name: r.Name, Location: r.Location, AboutMe: r.AboutMe}
}

// UpdateProfile edits the caller's own profile fields.
func (a *APIController) UpdateProfile(ctx *gin.Context) {
	var req profileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	user := middleware.CurrentUser(ctx)
	if err := a.accounts.UpdateProfile(middleware.DB(ctx), user, req.edit()); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	a.writeUser(ctx, http.StatusOK, user)
}

// AdminUpdateUser lets an administrator edit any account.
func (a *APIController) AdminUpdateUser(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	var req struct {
		profileRequest
		Email     *string `json:"email"`
		Username  *string `json:"username"`
		Confirmed *bool   `json:"confirmed"`
		Role      *string `json:"role"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	err := a.accounts.AdminUpdate(middleware.DB(ctx), user, services.AdminEdit{
		ProfileEdit: req.edit(),
		Email:       req.Email,
		Username:    req.Username,
		Confirmed:   req.Confirmed,
		Role:        req.Role,
	})
	switch {
	case err == nil:
		a.writeUser(ctx, http.StatusOK, user)
	case errors.Is(err, services.ErrEmailTaken), errors.Is(err, services.ErrUsernameTaken):
		utils.Error(ctx, http.StatusBadRequest, "conflict", err.Error())
	default:
		utils.BadRequest(ctx, err.Error())
	}
}
