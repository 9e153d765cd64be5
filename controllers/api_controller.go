package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/middleware"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/utils"
)

// APIController serves the JSON API under /api/v1.
type APIController struct {
	cfg      *config.AppConfig
	cache    *utils.Cache
	accounts *services.AccountService
}

// NewAPIController creates a new APIController instance.
func NewAPIController(cfg *config.AppConfig, cache *utils.Cache, accounts *services.AccountService) *APIController {
	return &APIController{cfg: cfg, cache: cache, accounts: accounts}
}

// postCacheKey varies by scheme and host because post records embed absolute URLs.
func postCacheKey(ctx *gin.Context, id uint) string {
	return fmt.Sprintf("%s%s://%s", postCachePrefix(id), utils.RequestScheme(ctx), ctx.Request.Host)
}

func postCachePrefix(id uint) string {
	return fmt.Sprintf("cache:post:%d:", id)
}

// invalidatePostCache drops every cached record of post id once the request has committed.
func invalidatePostCache(ctx *gin.Context, cache *utils.Cache, id uint) {
	reqCtx := ctx.Request.Context()
	middleware.AfterCommit(ctx, func() {
		cache.InvalidateByPrefix(reqCtx, postCachePrefix(id))
	})
}

func (a *APIController) invalidatePost(ctx *gin.Context, id uint) {
	invalidatePostCache(ctx, a.cache, id)
}

// canEditPost reports whether user may change post: its author, a moderator or an administrator.
func canEditPost(user *models.User, post *models.Post) bool {
	if user == nil {
		return false
	}
	return post.AuthorID == user.ID || user.Can(models.PermModerate) || user.Can(models.PermAdmin)
}

// listError maps a paginate failure onto a response.
func listError(ctx *gin.Context, err error) {
	if errors.Is(err, errPageOutOfRange) {
		utils.NotFound(ctx)
		return
	}
	utils.InternalError(ctx, err)
}

// loadError maps a single-record lookup failure onto a response.
func loadError(ctx *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.NotFound(ctx)
		return
	}
	utils.InternalError(ctx, err)
}

func (a *APIController) writePosts(ctx *gin.Context, db *gorm.DB, query *gorm.DB, perPage int) {
	var posts []models.Post
	page, err := paginate(query, parsePage(ctx.Query("page")), perPage, a.cfg.PaginationStrict, &posts)
	if err != nil {
		listError(ctx, err)
		return
	}
	items := make([]PostRecord, 0, len(posts))
	for i := range posts {
		rec, err := postRecord(ctx, db, &posts[i])
		if err != nil {
			utils.InternalError(ctx, err)
			return
		}
		items = append(items, rec)
	}
	ctx.JSON(http.StatusOK, listPayload(ctx, "posts", items, page))
}

func (a *APIController) writeComments(ctx *gin.Context, query *gorm.DB) {
	var comments []models.Comment
	page, err := paginate(query, parsePage(ctx.Query("page")), a.cfg.CommentsPerPage, a.cfg.PaginationStrict, &comments)
	if err != nil {
		listError(ctx, err)
		return
	}
	items := make([]CommentRecord, 0, len(comments))
	for i := range comments {
		items = append(items, commentRecord(ctx, &comments[i]))
	}
	ctx.JSON(http.StatusOK, listPayload(ctx, "comments", items, page))
}

type bodyRequest struct {
	Body string `json:"body"`
}

// GetToken issues an API access token. Only password credentials may mint a token.
func (a *APIController) GetToken(ctx *gin.Context) {
	if ctx.GetBool(middleware.ContextTokenUsedKey) {
		utils.Unauthorized(ctx, "Invalid credentials")
		return
	}
	user := middleware.CurrentUser(ctx)
	token, _, err := a.accounts.IssueAccessToken(user, utils.PurposeAPI, a.cfg.APITokenTTL)
	if err != nil {
		utils.InternalError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"token": token, "expiration": int(a.cfg.APITokenTTL.Seconds())})
}

// ListPosts returns all posts newest first.
func (a *APIController) ListPosts(ctx *gin.Context) {
	db := middleware.DB(ctx)
	a.writePosts(ctx, db, db.Model(&models.Post{}).Order("timestamp DESC, id DESC"), a.cfg.PostsPerPage)
}

// GetPost returns a single post record, served from the cache when possible.
func (a *APIController) GetPost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return
	}
	key := postCacheKey(ctx, id)
	if b, ok := a.cache.GetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}

	db := middleware.DB(ctx)
	var post models.Post
	if err := db.First(&post, id).Error; err != nil {
		loadError(ctx, err)
		return
	}
	rec, err := postRecord(ctx, db, &post)
	if err != nil {
		utils.InternalError(ctx, err)
		return
	}
	a.cache.SetJSON(ctx.Request.Context(), key, rec)
	ctx.JSON(http.StatusOK, rec)
}

// CreatePost stores a new post by the caller and answers 201 with its Location.
func (a *APIController) CreatePost(ctx *gin.Context) {
	var req bodyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		utils.BadRequest(ctx, "post does not have a body")
		return
	}
	db := middleware.DB(ctx)
	user := middleware.CurrentUser(ctx)
	post := models.Post{Body: req.Body, AuthorID: user.ID}
	if err := db.Create(&post).Error; err != nil {
		utils.InternalError(ctx, err)
		return
	}
	rec, err := postRecord(ctx, db, &post)
	if err != nil {
		utils.InternalError(ctx, err)
		return
	}
	ctx.Header("Location", rec.URL)
	ctx.JSON(http.StatusCreated, rec)
}

// UpdatePost edits a post body. Only the author, moderators and administrators may edit.
func (a *APIController) UpdatePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return
	}
	db := middleware.DB(ctx)
	var post models.Post
	if err := db.First(&post, id).Error; err != nil {
		loadError(ctx, err)
		return
	}
	if !canEditPost(middleware.CurrentUser(ctx), &post) {
		utils.Forbidden(ctx, "Insufficient permissions")
		return
	}
	var req bodyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		utils.BadRequest(ctx, "post does not have a body")
		return
	}
	post.Body = req.Body
	if err := db.Save(&post).Error; err != nil {
		utils.InternalError(ctx, err)
		return
	}
	a.invalidatePost(ctx, post.ID)
	rec, err := postRecord(ctx, db, &post)
	if err != nil {
		utils.InternalError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, rec)
}

// ListComments returns all comments newest first.
func (a *APIController) ListComments(ctx *gin.Context) {
	db := middleware.DB(ctx)
	a.writeComments(ctx, db.Model(&models.Comment{}).Order("timestamp DESC, id DESC"))
}

// GetComment returns a single comment record.
func (a *APIController) GetComment(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return
	}
	var comment models.Comment
	if err := middleware.DB(ctx).First(&comment, id).Error; err != nil {
		loadError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, commentRecord(ctx, &comment))
}

// ListPostComments returns the comments of one post oldest first.
func (a *APIController) ListPostComments(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return
	}
	db := middleware.DB(ctx)
	if err := db.Select("id").First(&models.Post{}, id).Error; err != nil {
		loadError(ctx, err)
		return
	}
	a.writeComments(ctx, db.Model(&models.Comment{}).Where("post_id = ?", id).Order("timestamp ASC, id ASC"))
}

// CreatePostComment adds a comment by the caller under a post.
func (a *APIController) CreatePostComment(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return
	}
	db := middleware.DB(ctx)
	var post models.Post
	if err := db.Select("id").First(&post, id).Error; err != nil {
		loadError(ctx, err)
		return
	}
	var req bodyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		utils.BadRequest(ctx, "comment does not have a body")
		return
	}
	comment := models.Comment{Body: req.Body, AuthorID: middleware.CurrentUser(ctx).ID, PostID: post.ID}
	if err := db.Create(&comment).Error; err != nil {
		utils.InternalError(ctx, err)
		return
	}
	a.invalidatePost(ctx, post.ID)
	rec := commentRecord(ctx, &comment)
	ctx.Header("Location", rec.URL)
	ctx.JSON(http.StatusCreated, rec)
}

// ModerateComment sets or clears the disabled flag of a comment.
func (a *APIController) ModerateComment(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.NotFound(ctx)
		return
	}
	var req struct {
		Disabled *bool `json:"disabled" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, "disabled flag is required")
		return
	}
	db := middleware.DB(ctx)
	var comment models.Comment
	if err := db.First(&comment, id).Error; err != nil {
		loadError(ctx, err)
		return
	}
	comment.Disabled = *req.Disabled
	if err := db.Model(&comment).Update("disabled", comment.Disabled).Error; err != nil {
		utils.InternalError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, commentRecord(ctx, &comment))
}
