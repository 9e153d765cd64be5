package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/bloghub/utils"
)

// Comment is a reply to a post. Disabled comments stay listed but their body is hidden in the UI.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	BodyHTML  string    `gorm:"type:text" json:"body_html"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Disabled  bool      `gorm:"default:false" json:"disabled"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	Author    *User     `json:"-"`
	Post      *Post     `json:"-"`
}

// BeforeSave renders the body the same way posts do.
func (c *Comment) BeforeSave(tx *gorm.DB) error {
	c.BodyHTML = utils.RenderMarkdown(c.Body)
	return nil
}

// BeforeCreate hook ensures the timestamp is set even when not provided.
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	return nil
}
