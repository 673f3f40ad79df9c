package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a feed entry: one or more media items with an optional caption.
type Post struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" json:"id" yaml:"id"`
	Caption   string       `gorm:"type:text" json:"caption,omitempty" yaml:"caption"`
	MediaURLs []string     `gorm:"serializer:json;not null" json:"media_urls" yaml:"media_urls"`
	UserID    string       `gorm:"not null;index" json:"user_id" yaml:"user_id"`
	User      *UserSummary `gorm:"-" json:"user,omitempty" yaml:"-"`
	Likes     int          `gorm:"not null;default:0" json:"likes" yaml:"likes"`
	Comments  int          `gorm:"not null;default:0" json:"comments" yaml:"comments"`
	// IsLiked is relative to the requesting viewer and never persisted.
	IsLiked   bool           `gorm:"-" json:"is_liked" yaml:"is_liked"`
	CreatedAt time.Time      `gorm:"index" json:"created_at" yaml:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (p *Post) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PostLike records that a user liked a post.
type PostLike struct {
	UserID    string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	PostID    string    `gorm:"primaryKey;type:varchar(36)" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedPage is one window of the feed as returned by a feed source.
type FeedPage struct {
	Posts   []Post `json:"posts"`
	HasMore bool   `json:"has_more"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	Total   int    `json:"total"`
}

// Comment is a text reply on a post.
type Comment struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID    string    `gorm:"not null;index" json:"post_id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (c *Comment) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
