package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a direct message between two users.
type Message struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id" yaml:"id"`
	Content    string    `gorm:"type:text;not null" json:"content" yaml:"content"`
	MediaURL   *string   `json:"media_url,omitempty" yaml:"media_url"`
	Timestamp  time.Time `gorm:"index" json:"timestamp" yaml:"timestamp"`
	SenderID   string    `gorm:"not null;index" json:"sender_id" yaml:"sender_id"`
	ReceiverID string    `gorm:"not null;index" json:"receiver_id" yaml:"receiver_id"`
	Read       bool      `gorm:"not null;default:false" json:"read" yaml:"read"`
}

// BeforeCreate assigns an ID and timestamp when missing.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// Counterpart returns the other participant of the message from viewerID's side.
func (m Message) Counterpart(viewerID string) string {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Conversation is the thread between the viewer and one counterpart user.
// It is keyed by the counterpart's user ID.
type Conversation struct {
	UserID      string       `json:"user_id" yaml:"user_id"`
	User        *UserSummary `json:"user,omitempty" yaml:"user"`
	Messages    []Message    `json:"messages" yaml:"messages"`
	LastMessage *Message     `json:"last_message,omitempty" yaml:"-"`
	UnreadCount int          `json:"unread_count" yaml:"unread_count"`
}
