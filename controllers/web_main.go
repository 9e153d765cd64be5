package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/middleware"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
)

const showFollowedCookie = "show_followed"

type bodyForm struct {
	Body string `form:"body"`
}

type profileForm struct {
	Name     string `form:"name" binding:"max=64"`
	Location string `form:"location" binding:"max=64"`
	AboutMe  string `form:"about_me"`
}

type adminProfileForm struct {
	profileForm
	Email     string `form:"email"`
	Username  string `form:"username"`
	Confirmed bool   `form:"confirmed"`
	Role      string `form:"role"`
}

type followRow struct {
	Username  string
	Timestamp time.Time
}

// pageError renders the listing failure: out-of-range pages are 404s.
func (w *WebController) pageError(ctx *gin.Context, err error) {
	if errors.Is(err, errPageOutOfRange) {
		w.notFound(ctx)
		return
	}
	w.internalError(ctx, err)
}

func (w *WebController) userByName(ctx *gin.Context) (*models.User, error) {
	var user models.User
	err := middleware.DB(ctx).Preload("Role").Where("username = ?", ctx.Param("username")).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Index shows all posts or, when the show_followed cookie is set, the timeline.
func (w *WebController) Index(ctx *gin.Context) {
	w.index(ctx, bodyForm{}, nil)
}

func (w *WebController) index(ctx *gin.Context, form bodyForm, errs fieldErrors) {
	db := middleware.DB(ctx)
	user := middleware.CurrentUser(ctx)
	showFollowed := false
	if user != nil {
		v, _ := ctx.Cookie(showFollowedCookie)
		showFollowed = v == "1"
	}

	var query *gorm.DB
	if showFollowed {
		query = user.FollowedPosts(db).Order("posts.timestamp DESC, posts.id DESC")
	} else {
		query = db.Model(&models.Post{}).Order("timestamp DESC, id DESC")
	}
	var posts []models.Post
	page, err := paginate(query, parsePage(ctx.Query("page")), w.cfg.PostsPerPage, w.cfg.PaginationStrict, &posts, withAuthor)
	if err != nil {
		w.pageError(ctx, err)
		return
	}
	if errs == nil {
		errs = fieldErrors{}
	}
	w.render(ctx, http.StatusOK, "index.html", gin.H{
		"Form":         form,
		"Errors":       errs,
		"Posts":        posts,
		"Page":         page,
		"PageBase":     "/?",
		"ShowFollowed": showFollowed,
	})
}

// CreatePost publishes a post from the home page form.
func (w *WebController) CreatePost(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	if !user.Can(models.PermWrite) {
		w.forbidden(ctx)
		return
	}
	var form bodyForm
	_ = ctx.ShouldBind(&form)
	if strings.TrimSpace(form.Body) == "" {
		w.index(ctx, form, fieldErrors{"body": "What's on your mind? The post is empty."})
		return
	}
	post := models.Post{Body: form.Body, AuthorID: user.ID}
	if err := middleware.DB(ctx).Create(&post).Error; err != nil {
		w.internalError(ctx, err)
		return
	}
	w.redirect(ctx, "/")
}

// ShowAll switches the home page to every post.
func (w *WebController) ShowAll(ctx *gin.Context) {
	w.setShowFollowed(ctx, "")
}

// ShowFollowed switches the home page to the timeline.
func (w *WebController) ShowFollowed(ctx *gin.Context) {
	w.setShowFollowed(ctx, "1")
}

func (w *WebController) setShowFollowed(ctx *gin.Context, value string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(showFollowedCookie, value, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
	w.redirect(ctx, "/")
}

// UserPage shows a profile and the user's posts.
func (w *WebController) UserPage(ctx *gin.Context) {
	profile, err := w.userByName(ctx)
	if err != nil {
		w.loadError(ctx, err)
		return
	}
	db := middleware.DB(ctx)
	var posts []models.Post
	query := db.Model(&models.Post{}).Where("author_id = ?", profile.ID).Order("timestamp DESC, id DESC")
	page, err := paginate(query, parsePage(ctx.Query("page")), w.cfg.PostsPerPage, w.cfg.PaginationStrict, &posts, withAuthor)
	if err != nil {
		w.pageError(ctx, err)
		return
	}

	var followers, following int64
	if err := db.Model(&models.Follow{}).
		Where("followed_id = ? AND follower_id <> followed_id", profile.ID).Count(&followers).Error; err != nil {
		w.internalError(ctx, err)
		return
	}
	if err := db.Model(&models.Follow{}).
		Where("follower_id = ? AND follower_id <> followed_id", profile.ID).Count(&following).Error; err != nil {
		w.internalError(ctx, err)
		return
	}
	current := middleware.CurrentUser(ctx)
	isFollowing, err := current.IsFollowing(db, profile)
	if err != nil {
		w.internalError(ctx, err)
		return
	}
	followsYou := false
	if current != nil {
		if followsYou, err = profile.IsFollowing(db, current); err != nil {
			w.internalError(ctx, err)
			return
		}
	}

	w.render(ctx, http.StatusOK, "user.html", gin.H{
		"Title":          profile.Username,
		"Profile":        profile,
		"Posts":          posts,
		"Page":           page,
		"PageBase":       "/user/" + url.PathEscape(profile.Username) + "?",
		"PostCount":      page.Total,
		"FollowerCount":  followers,
		"FollowingCount": following,
		"IsFollowing":    isFollowing,
		"FollowsYou":     followsYou && current.ID != profile.ID,
	})
}

func (w *WebController) loadError(ctx *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w.notFound(ctx)
		return
	}
	w.internalError(ctx, err)
}

// EditProfilePage shows the self-service profile form.
func (w *WebController) EditProfilePage(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	w.render(ctx, http.StatusOK, "edit_profile.html", gin.H{
		"Title":  "Edit Profile",
		"Action": "/edit-profile",
		"Form":   adminProfileForm{profileForm: profileForm{Name: user.Name, Location: user.Location, AboutMe: user.AboutMe}},
	})
}

// EditProfile saves the self-service profile form.
func (w *WebController) EditProfile(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	var form profileForm
	if err := ctx.ShouldBind(&form); err != nil {
		w.render(ctx, http.StatusOK, "edit_profile.html", gin.H{
			"Title":  "Edit Profile",
			"Action": "/edit-profile",
			"Form":   adminProfileForm{profileForm: form},
			"Errors": fieldErrors{"name": "Name and location must be at most 64 characters."},
		})
		return
	}
	edit := services.ProfileEdit{Name: &form.Name, Location: &form.Location, AboutMe: &form.AboutMe}
	if err := w.accounts.UpdateProfile(middleware.DB(ctx), user, edit); err != nil {
		w.internalError(ctx, err)
		return
	}
	middleware.Flash(ctx, "Your profile has been updated.")
	w.redirect(ctx, "/user/"+url.PathEscape(user.Username))
}

func (w *WebController) adminTarget(ctx *gin.Context) (*models.User, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		w.notFound(ctx)
		return nil, false
	}
	user, err := models.FindUserByID(middleware.DB(ctx), id)
	if err != nil {
		w.loadError(ctx, err)
		return nil, false
	}
	return user, true
}

func (w *WebController) renderAdminProfile(ctx *gin.Context, user *models.User, form adminProfileForm, errs fieldErrors) {
	w.render(ctx, http.StatusOK, "edit_profile.html", gin.H{
		"Title":     "Edit Profile",
		"Action":    fmt.Sprintf("/edit-profile/%d", user.ID),
		"AdminEdit": true,
		"Roles":     models.CanonicalRoleNames(),
		"Form":      form,
		"Errors":    errs,
	})
}

// AdminEditProfilePage shows the administrator's profile form for any user.
func (w *WebController) AdminEditProfilePage(ctx *gin.Context) {
	user, ok := w.adminTarget(ctx)
	if !ok {
		return
	}
	form := adminProfileForm{
		profileForm: profileForm{Name: user.Name, Location: user.Location, AboutMe: user.AboutMe},
		Email:       user.Email,
		Username:    user.Username,
		Confirmed:   user.Confirmed,
	}
	if user.Role != nil {
		form.Role = user.Role.Name
	}
	w.renderAdminProfile(ctx, user, form, nil)
}

// AdminEditProfile saves the administrator's profile form.
func (w *WebController) AdminEditProfile(ctx *gin.Context) {
	user, ok := w.adminTarget(ctx)
	if !ok {
		return
	}
	var form adminProfileForm
	if err := ctx.ShouldBind(&form); err != nil {
		w.renderAdminProfile(ctx, user, form, fieldErrors{"name": "Name and location must be at most 64 characters."})
		return
	}
	err := w.accounts.AdminUpdate(middleware.DB(ctx), user, services.AdminEdit{
		ProfileEdit: services.ProfileEdit{Name: &form.Name, Location: &form.Location, AboutMe: &form.AboutMe},
		Email:       &form.Email,
		Username:    &form.Username,
		Confirmed:   &form.Confirmed,
		Role:        &form.Role,
	})
	errs := fieldErrors{}
	switch {
	case err == nil:
		middleware.Flash(ctx, "The profile has been updated.")
		w.redirect(ctx, "/user/"+url.PathEscape(user.Username))
		return
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrEmailTaken):
		errs["email"] = err.Error()
	case errors.Is(err, services.ErrInvalidUsername), errors.Is(err, services.ErrUsernameTaken):
		errs["username"] = err.Error()
	case errors.Is(err, services.ErrUnknownRole):
		errs["role"] = err.Error()
	default:
		w.internalError(ctx, err)
		return
	}
	w.renderAdminProfile(ctx, user, form, errs)
}

func (w *WebController) loadPost(ctx *gin.Context) (*models.Post, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		w.notFound(ctx)
		return nil, false
	}
	var post models.Post
	if err := middleware.DB(ctx).Preload("Author").First(&post, id).Error; err != nil {
		w.loadError(ctx, err)
		return nil, false
	}
	return &post, true
}

// PostPage shows one post with its comments oldest first. page=-1 jumps to the last page.
func (w *WebController) PostPage(ctx *gin.Context) {
	post, ok := w.loadPost(ctx)
	if !ok {
		return
	}
	w.postPage(ctx, post, bodyForm{}, nil)
}

func (w *WebController) postPage(ctx *gin.Context, post *models.Post, form bodyForm, errs fieldErrors) {
	db := middleware.DB(ctx)
	query := db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Order("timestamp ASC, id ASC")
	number := parsePage(ctx.Query("page"))
	if number == -1 {
		last, err := lastPage(query, w.cfg.CommentsPerPage)
		if err != nil {
			w.internalError(ctx, err)
			return
		}
		number = last
	}
	var comments []models.Comment
	page, err := paginate(query, number, w.cfg.CommentsPerPage, w.cfg.PaginationStrict, &comments, withAuthor)
	if err != nil {
		w.pageError(ctx, err)
		return
	}
	if errs == nil {
		errs = fieldErrors{}
	}
	user := middleware.CurrentUser(ctx)
	w.render(ctx, http.StatusOK, "post.html", gin.H{
		"Title":    "Post",
		"Post":     post,
		"Posts":    []models.Post{*post},
		"Comments": comments,
		"Page":     page,
		"PageBase": fmt.Sprintf("/post/%d?", post.ID),
		"CanEdit":  canEditPost(user, post),
		"Moderate": user.Can(models.PermModerate),
		"Form":     form,
		"Errors":   errs,
	})
}

// CreateComment adds a comment from the post page form.
func (w *WebController) CreateComment(ctx *gin.Context) {
	post, ok := w.loadPost(ctx)
	if !ok {
		return
	}
	user := middleware.CurrentUser(ctx)
	if !user.Can(models.PermComment) {
		w.forbidden(ctx)
		return
	}
	var form bodyForm
	_ = ctx.ShouldBind(&form)
	if strings.TrimSpace(form.Body) == "" {
		w.postPage(ctx, post, form, fieldErrors{"body": "The comment is empty."})
		return
	}
	comment := models.Comment{Body: form.Body, AuthorID: user.ID, PostID: post.ID}
	if err := middleware.DB(ctx).Create(&comment).Error; err != nil {
		w.internalError(ctx, err)
		return
	}
	w.invalidatePost(ctx, post.ID)
	middleware.Flash(ctx, "Your comment has been published.")
	w.redirect(ctx, fmt.Sprintf("/post/%d?page=-1#comments", post.ID))
}

// EditPostPage shows the edit form to whoever may change the post.
func (w *WebController) EditPostPage(ctx *gin.Context) {
	post, ok := w.loadPost(ctx)
	if !ok {
		return
	}
	if !canEditPost(middleware.CurrentUser(ctx), post) {
		w.forbidden(ctx)
		return
	}
	w.render(ctx, http.StatusOK, "edit_post.html", gin.H{"Title": "Edit Post", "Post": post, "Form": bodyForm{Body: post.Body}})
}

// EditPost saves the edit form.
func (w *WebController) EditPost(ctx *gin.Context) {
	post, ok := w.loadPost(ctx)
	if !ok {
		return
	}
	if !canEditPost(middleware.CurrentUser(ctx), post) {
		w.forbidden(ctx)
		return
	}
	var form bodyForm
	_ = ctx.ShouldBind(&form)
	if strings.TrimSpace(form.Body) == "" {
		w.render(ctx, http.StatusOK, "edit_post.html", gin.H{
			"Title":  "Edit Post",
			"Post":   post,
			"Form":   form,
			"Errors": fieldErrors{"body": "The post is empty."},
		})
		return
	}
	post.Body = form.Body
	if err := middleware.DB(ctx).Omit("Author").Save(post).Error; err != nil {
		w.internalError(ctx, err)
		return
	}
	w.invalidatePost(ctx, post.ID)
	middleware.Flash(ctx, "The post has been updated.")
	w.redirect(ctx, fmt.Sprintf("/post/%d", post.ID))
}

// Follow makes the current user follow :username.
func (w *WebController) Follow(ctx *gin.Context) {
	w.changeFollow(ctx, true)
}

// Unfollow removes the current user's edge to :username.
func (w *WebController) Unfollow(ctx *gin.Context) {
	w.changeFollow(ctx, false)
}

func (w *WebController) changeFollow(ctx *gin.Context, follow bool) {
	target, err := w.userByName(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		middleware.Flash(ctx, "Invalid user.")
		w.redirect(ctx, "/")
		return
	}
	if err != nil {
		w.internalError(ctx, err)
		return
	}
	db := middleware.DB(ctx)
	user := middleware.CurrentUser(ctx)
	back := "/user/" + url.PathEscape(target.Username)
	following, err := user.IsFollowing(db, target)
	if err != nil {
		w.internalError(ctx, err)
		return
	}

	switch {
	case follow && following:
		middleware.Flash(ctx, "You are already following this user.")
	case !follow && (!following || user.ID == target.ID):
		middleware.Flash(ctx, "You are not following this user.")
	case follow:
		if err := user.Follow(db, target); err != nil {
			w.internalError(ctx, err)
			return
		}
		middleware.Flash(ctx, fmt.Sprintf("You are now following %s.", target.Username))
	default:
		if err := user.Unfollow(db, target); err != nil {
			w.internalError(ctx, err)
			return
		}
		middleware.Flash(ctx, fmt.Sprintf("You are not following %s anymore.", target.Username))
	}
	w.redirect(ctx, back)
}

// Followers lists who follows :username.
func (w *WebController) Followers(ctx *gin.Context) {
	w.follows(ctx, "Followers of", "followers", "follower_id", "followed_id")
}

// FollowedBy lists who :username follows.
func (w *WebController) FollowedBy(ctx *gin.Context) {
	w.follows(ctx, "Followed by", "followed_by", "followed_id", "follower_id")
}

func (w *WebController) follows(ctx *gin.Context, heading, route, joinOn, whereCol string) {
	profile, err := w.userByName(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		middleware.Flash(ctx, "Invalid user.")
		w.redirect(ctx, "/")
		return
	}
	if err != nil {
		w.internalError(ctx, err)
		return
	}
	query := middleware.DB(ctx).Table("follows").
		Select("users.username AS username, follows.timestamp AS timestamp").
		Joins("JOIN users ON users.id = follows."+joinOn).
		Where("follows."+whereCol+" = ?", profile.ID).
		Where("follows.follower_id <> follows.followed_id").
		Order("follows.timestamp DESC")
	var rows []followRow
	page, err := paginate(query, parsePage(ctx.Query("page")), w.cfg.FollowersPerPage, w.cfg.PaginationStrict, &rows)
	if err != nil {
		w.pageError(ctx, err)
		return
	}
	w.render(ctx, http.StatusOK, "followers.html", gin.H{
		"Title":    heading + " " + profile.Username,
		"Heading":  heading,
		"Profile":  profile,
		"Follows":  rows,
		"Page":     page,
		"PageBase": "/" + route + "/" + url.PathEscape(profile.Username) + "?",
	})
}

// Moderate lists every comment newest first with enable/disable links.
func (w *WebController) Moderate(ctx *gin.Context) {
	db := middleware.DB(ctx)
	var comments []models.Comment
	query := db.Model(&models.Comment{}).Order("timestamp DESC, id DESC")
	page, err := paginate(query, parsePage(ctx.Query("page")), w.cfg.CommentsPerPage, w.cfg.PaginationStrict, &comments, withAuthor)
	if err != nil {
		w.pageError(ctx, err)
		return
	}
	w.render(ctx, http.StatusOK, "moderate.html", gin.H{
		"Title":    "Moderate Comments",
		"Comments": comments,
		"Page":     page,
		"PageBase": "/moderate?",
		"Moderate": true,
	})
}

// ModerateEnable clears the disabled flag of a comment.
func (w *WebController) ModerateEnable(ctx *gin.Context) {
	w.setDisabled(ctx, false)
}

// ModerateDisable sets the disabled flag of a comment.
func (w *WebController) ModerateDisable(ctx *gin.Context) {
	w.setDisabled(ctx, true)
}

func (w *WebController) setDisabled(ctx *gin.Context, disabled bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		w.notFound(ctx)
		return
	}
	db := middleware.DB(ctx)
	var comment models.Comment
	if err := db.First(&comment, id).Error; err != nil {
		w.loadError(ctx, err)
		return
	}
	if err := db.Model(&comment).Update("disabled", disabled).Error; err != nil {
		w.internalError(ctx, err)
		return
	}
	w.redirect(ctx, fmt.Sprintf("/moderate?page=%d", parsePage(ctx.Query("page"))))
}

func (w *WebController) invalidatePost(ctx *gin.Context, id uint) {
	invalidatePostCache(ctx, w.cache, id)
}
