package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType is the kind of event a notification reports.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationMention NotificationType = "mention"
	NotificationTag     NotificationType = "tag"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationMention, NotificationTag:
		return true
	}
	return false
}

// Notification is an activity event addressed to UserID and caused by the actor.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:varchar(36)" json:"id" yaml:"id"`
	UserID    string           `gorm:"not null;index" json:"user_id" yaml:"user_id"`
	Type      NotificationType `gorm:"type:varchar(16);not null" json:"type" yaml:"type"`
	ActorID   string           `gorm:"not null" json:"actor_id" yaml:"actor_id"`
	Actor     *UserSummary     `gorm:"-" json:"actor,omitempty" yaml:"-"`
	PostID    *string          `json:"post_id,omitempty" yaml:"post_id"`
	CommentID *string          `json:"comment_id,omitempty" yaml:"comment_id"`
	Read      bool             `gorm:"not null;default:false" json:"read" yaml:"read"`
	CreatedAt time.Time        `gorm:"index" json:"created_at" yaml:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
