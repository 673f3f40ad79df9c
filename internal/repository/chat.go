package repository

import (
	"context"

	"animegram/internal/models"
	"animegram/internal/observability"

	"gorm.io/gorm"
)

// ChatRepository persists direct messages.
type ChatRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	// MessagesForUser returns every message the user sent or received, oldest first.
	MessagesForUser(ctx context.Context, userID string) ([]models.Message, error)
	// MessagesBetween returns the thread between two users, oldest first.
	MessagesBetween(ctx context.Context, userID, otherID string) ([]models.Message, error)
	// MarkRead marks every message sent by senderID to readerID as read.
	MarkRead(ctx context.Context, readerID, senderID string) error
}

type chatRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db, log: observability.NewRepoLogger("messages")}
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": msg.ID, "sender_id": msg.SenderID})
	return nil
}

func (r *chatRepository) MessagesForUser(ctx context.Context, userID string) ([]models.Message, error) {
	ctx, span := observability.TraceQuery(ctx, "messages", "MessagesForUser")
	defer span.End()

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("timestamp ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

func (r *chatRepository) MessagesBetween(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, otherID, otherID, userID).
		Order("timestamp ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

func (r *chatRepository) MarkRead(ctx context.Context, readerID, senderID string) error {
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND read = ?", readerID, senderID, false).
		Update("read", true).Error
	if err != nil {
		r.log.LogError(ctx, err, "mark_read")
		return models.NewInternalError(err)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"reader_id": readerID, "sender_id": senderID})
	return nil
}
