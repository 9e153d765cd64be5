package controllers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/utils"
)

const apiPrefix = "/api/v1"

// PostRecord is the API shape of a post.
type PostRecord struct {
	URL          string    `json:"url"`
	Body         string    `json:"body"`
	BodyHTML     string    `json:"body_html"`
	Timestamp    time.Time `json:"timestamp"`
	AuthorURL    string    `json:"author_url"`
	CommentsURL  string    `json:"comments_url"`
	CommentCount int64     `json:"comment_count"`
}

// UserRecord is the API shape of a user. Email and role are never exposed.
type UserRecord struct {
	URL              string    `json:"url"`
	Username         string    `json:"username"`
	MemberSince      time.Time `json:"member_since"`
	LastSeen         time.Time `json:"last_seen"`
	PostsURL         string    `json:"posts_url"`
	FollowedPostsURL string    `json:"followed_posts_url"`
	PostCount        int64     `json:"post_count"`
}

// CommentRecord is the API shape of a comment.
type CommentRecord struct {
	URL       string    `json:"url"`
	PostURL   string    `json:"post_url"`
	Body      string    `json:"body"`
	BodyHTML  string    `json:"body_html"`
	Timestamp time.Time `json:"timestamp"`
	AuthorURL string    `json:"author_url"`
	Disabled  bool      `json:"disabled"`
}

// FollowRecord is one entry of a followers or following listing.
type FollowRecord struct {
	UserURL   string    `json:"user_url"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

func postPath(id uint) string    { return fmt.Sprintf("%s/posts/%d", apiPrefix, id) }
func userPath(id uint) string    { return fmt.Sprintf("%s/users/%d", apiPrefix, id) }
func commentPath(id uint) string { return fmt.Sprintf("%s/comments/%d", apiPrefix, id) }

func postRecord(ctx *gin.Context, db *gorm.DB, p *models.Post) (PostRecord, error) {
	var n int64
	if err := db.Model(&models.Comment{}).Where("post_id = ?", p.ID).Count(&n).Error; err != nil {
		return PostRecord{}, err
	}
	return PostRecord{
		URL:          utils.ExternalURL(ctx, postPath(p.ID)),
		Body:         p.Body,
		BodyHTML:     p.BodyHTML,
		Timestamp:    p.Timestamp,
		AuthorURL:    utils.ExternalURL(ctx, userPath(p.AuthorID)),
		CommentsURL:  utils.ExternalURL(ctx, postPath(p.ID)+"/comments/"),
		CommentCount: n,
	}, nil
}

func userRecord(ctx *gin.Context, db *gorm.DB, u *models.User) (UserRecord, error) {
	var n int64
	if err := db.Model(&models.Post{}).Where("author_id = ?", u.ID).Count(&n).Error; err != nil {
		return UserRecord{}, err
	}
	return UserRecord{
		URL:              utils.ExternalURL(ctx, userPath(u.ID)),
		Username:         u.Username,
		MemberSince:      u.MemberSince,
		LastSeen:         u.LastSeen,
		PostsURL:         utils.ExternalURL(ctx, userPath(u.ID)+"/posts/"),
		FollowedPostsURL: utils.ExternalURL(ctx, userPath(u.ID)+"/timeline/"),
		PostCount:        n,
	}, nil
}

func commentRecord(ctx *gin.Context, c *models.Comment) CommentRecord {
	return CommentRecord{
		URL:       utils.ExternalURL(ctx, commentPath(c.ID)),
		PostURL:   utils.ExternalURL(ctx, postPath(c.PostID)),
		Body:      c.Body,
		BodyHTML:  c.BodyHTML,
		Timestamp: c.Timestamp,
		AuthorURL: utils.ExternalURL(ctx, userPath(c.AuthorID)),
		Disabled:  c.Disabled,
	}
}

// listPayload builds {<key>: items, prev, next, count} with absolute prev/next links.
func listPayload(ctx *gin.Context, key string, items interface{}, page Page) gin.H {
	var prev, next interface{}
	if page.HasPrev() {
		prev = utils.PageURL(ctx, ctx.Request.URL.Path, page.PrevNum())
	}
	if page.HasNext() {
		next = utils.PageURL(ctx, ctx.Request.URL.Path, page.NextNum())
	}
	return gin.H{key: items, "prev": prev, "next": next, "count": page.Total}
}

// parseID reads a positive integer path parameter. ok is false when it is malformed.
func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
