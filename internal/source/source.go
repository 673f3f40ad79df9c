// Package source provides the data backends the store's fetch orchestrators
// read from and the services write through: an in-memory mock catalogue and a
// database-backed implementation.
package source

import (
	"context"

	"animegram/internal/models"
)

// FeedSource returns windows of the feed. A page covers the items at
// [(page-1)*limit, page*limit) and HasMore reports whether items remain
// past that window.
type FeedSource interface {
	FetchFeed(ctx context.Context, viewerID string, page, limit int) (models.FeedPage, error)
}

// ChatSource returns the viewer's conversations and threads.
type ChatSource interface {
	Conversations(ctx context.Context, viewerID string) ([]models.Conversation, error)
	Messages(ctx context.Context, viewerID, counterpartID string) ([]models.Message, error)
}

// NotificationSource returns the viewer's notifications, newest first.
type NotificationSource interface {
	Notifications(ctx context.Context, viewerID string) ([]models.Notification, error)
}

// Writer records the outcome of user actions so later fetches observe them.
type Writer interface {
	CreatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, postID string) error
	PostOwner(ctx context.Context, postID string) (string, error)
	Like(ctx context.Context, viewerID, postID string) (bool, error)
	Unlike(ctx context.Context, viewerID, postID string) (bool, error)
	AddComment(ctx context.Context, comment *models.Comment) error
	SaveMessage(ctx context.Context, msg *models.Message) error
	MarkConversationRead(ctx context.Context, viewerID, counterpartID string) error
	SaveNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationRead(ctx context.Context, viewerID, id string) error
	MarkAllNotificationsRead(ctx context.Context, viewerID string) error
	// Users resolves display summaries. Unknown IDs are absent.
	Users(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

// Backend is a complete data source.
type Backend interface {
	FeedSource
	ChatSource
	NotificationSource
	Writer
}

// window slices [(page-1)*limit, page*limit) out of total items. Pages past
// the end yield an empty window at total; the bound is checked before
// multiplying so huge page numbers cannot overflow.
func window(total, page, limit int) (start, end int, hasMore bool) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || page-1 > total/limit {
		return total, total, false
	}
	start = min((page-1)*limit, total)
	end = min(start+limit, total)
	return start, end, end < total
}

// groupConversations folds a viewer's messages (oldest first) into threads
// keyed by the counterpart. Unread counts only messages sent to the viewer.
func groupConversations(viewerID string, msgs []models.Message, users map[string]models.UserSummary) []models.Conversation {
	byUser := make(map[string]*models.Conversation)
	order := make([]string, 0)
	for _, m := range msgs {
		other := m.Counterpart(viewerID)
		conv, ok := byUser[other]
		if !ok {
			conv = &models.Conversation{UserID: other}
			if u, found := users[other]; found {
				u := u
				conv.User = &u
			}
			byUser[other] = conv
			order = append(order, other)
		}
		conv.Messages = append(conv.Messages, m)
		if m.ReceiverID == viewerID && !m.Read {
			conv.UnreadCount++
		}
	}
	out := make([]models.Conversation, 0, len(order))
	for _, id := range order {
		conv := byUser[id]
		last := conv.Messages[len(conv.Messages)-1]
		conv.LastMessage = &last
		out = append(out, *conv)
	}
	return out
}
