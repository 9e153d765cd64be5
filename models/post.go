package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/bloghub/utils"
)

// Post is a Markdown article. BodyHTML is derived from Body on every save.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	BodyHTML  string    `gorm:"type:text" json:"body_html"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Author    *User     `json:"-"`
	Comments  []Comment `json:"-"`
}

// BeforeSave renders the body so both columns are written in the same statement.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.BodyHTML = utils.RenderMarkdown(p.Body)
	return nil
}

// BeforeCreate stamps the creation time when none is given.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	return nil
}
