package source

import (
	"context"

	"animegram/internal/cache"
	"animegram/internal/models"
	"animegram/internal/repository"
)

// DB is a Backend over the relational store. The first feed page is shared
// by every viewer through the Redis cache and re-enriched per viewer.
type DB struct {
	users         repository.UserRepository
	posts         repository.PostRepository
	chat          repository.ChatRepository
	notifications repository.NotificationRepository
}

func NewDB(users repository.UserRepository, posts repository.PostRepository, chat repository.ChatRepository, notifications repository.NotificationRepository) *DB {
	return &DB{users: users, posts: posts, chat: chat, notifications: notifications}
}

func (d *DB) FetchFeed(ctx context.Context, viewerID string, page, limit int) (models.FeedPage, error) {
	var out models.FeedPage
	load := func() error {
		total, err := d.posts.Count(ctx)
		if err != nil {
			return err
		}
		start, _, hasMore := window(int(total), page, limit)
		posts, err := d.posts.List(ctx, limit, start)
		if err != nil {
			return err
		}
		if err := d.attachAuthors(ctx, posts); err != nil {
			return err
		}
		out = models.FeedPage{Posts: posts, HasMore: hasMore, Page: page, Limit: limit, Total: int(total)}
		return nil
	}

	var err error
	if page == 1 {
		err = cache.Aside(ctx, cache.FeedFirstPageKey(limit), &out, cache.FeedFirstPageTTL, load)
	} else {
		err = load()
	}
	if err != nil {
		return models.FeedPage{}, err
	}
	if out.Posts == nil {
		out.Posts = []models.Post{}
	}
	return out, d.markLiked(ctx, viewerID, out.Posts)
}

func (d *DB) attachAuthors(ctx context.Context, posts []models.Post) error {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	authors, err := d.users.GetSummaries(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		if u, ok := authors[posts[i].UserID]; ok {
			u := u
			posts[i].User = &u
		}
	}
	return nil
}

// markLiked sets IsLiked for the viewer. Cached pages carry no viewer state.
func (d *DB) markLiked(ctx context.Context, viewerID string, posts []models.Post) error {
	ids := make([]string, 0, len(posts))
	for i := range posts {
		posts[i].IsLiked = false
		ids = append(ids, posts[i].ID)
	}
	liked, err := d.posts.GetLikedPostIDs(ctx, viewerID, ids)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(liked))
	for _, id := range liked {
		set[id] = struct{}{}
	}
	for i := range posts {
		_, posts[i].IsLiked = set[posts[i].ID]
	}
	return nil
}

func (d *DB) Conversations(ctx context.Context, viewerID string) ([]models.Conversation, error) {
	msgs, err := d.chat.MessagesForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.Counterpart(viewerID))
	}
	users, err := d.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	return groupConversations(viewerID, msgs, users), nil
}

func (d *DB) Messages(ctx context.Context, viewerID, counterpartID string) ([]models.Message, error) {
	return d.chat.MessagesBetween(ctx, viewerID, counterpartID)
}

func (d *DB) Notifications(ctx context.Context, viewerID string) ([]models.Notification, error) {
	items, err := d.notifications.ListForUser(ctx, viewerID, 50)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ActorID)
	}
	actors, err := d.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if u, ok := actors[items[i].ActorID]; ok {
			u := u
			items[i].Actor = &u
		}
	}
	return items, nil
}

func (d *DB) CreatePost(ctx context.Context, post *models.Post) error {
	return d.posts.Create(ctx, post)
}

func (d *DB) DeletePost(ctx context.Context, postID string) error {
	return d.posts.Delete(ctx, postID)
}

func (d *DB) PostOwner(ctx context.Context, postID string) (string, error) {
	post, err := d.posts.GetByID(ctx, postID)
	if err != nil {
		return "", err
	}
	return post.UserID, nil
}

func (d *DB) Like(ctx context.Context, viewerID, postID string) (bool, error) {
	if _, err := d.posts.GetByID(ctx, postID); err != nil {
		return false, err
	}
	return d.posts.Like(ctx, viewerID, postID)
}

func (d *DB) Unlike(ctx context.Context, viewerID, postID string) (bool, error) {
	return d.posts.Unlike(ctx, viewerID, postID)
}

func (d *DB) AddComment(ctx context.Context, comment *models.Comment) error {
	return d.posts.AddComment(ctx, comment)
}

func (d *DB) SaveMessage(ctx context.Context, msg *models.Message) error {
	return d.chat.CreateMessage(ctx, msg)
}

func (d *DB) MarkConversationRead(ctx context.Context, viewerID, counterpartID string) error {
	return d.chat.MarkRead(ctx, viewerID, counterpartID)
}

func (d *DB) SaveNotification(ctx context.Context, n *models.Notification) error {
	return d.notifications.Create(ctx, n)
}

func (d *DB) MarkNotificationRead(ctx context.Context, viewerID, id string) error {
	return d.notifications.MarkRead(ctx, viewerID, id)
}

func (d *DB) MarkAllNotificationsRead(ctx context.Context, viewerID string) error {
	return d.notifications.MarkAllRead(ctx, viewerID)
}

func (d *DB) Users(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	return d.users.GetSummaries(ctx, ids)
}
