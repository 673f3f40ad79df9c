package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"animegram/internal/models"
	"animegram/internal/observability"
	"animegram/internal/source"
	"animegram/internal/store"
)

const maxMessageLen = 2000

// ChatService provides direct-message actions over a viewer's store.
type ChatService struct {
	writer  source.Writer
	fetcher *store.ChatFetcher
	deliver Deliverer
}

func NewChatService(writer source.Writer, chat source.ChatSource, deliver Deliverer) *ChatService {
	return &ChatService{writer: writer, fetcher: store.NewChatFetcher(chat), deliver: deliver}
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	ReceiverID string  `json:"receiver_id"`
	Content    string  `json:"content"`
	MediaURL   *string `json:"media_url,omitempty"`
}

func (s *ChatService) FetchConversations(ctx context.Context, st *store.Store) ([]models.Conversation, error) {
	return s.fetcher.FetchConversations(ctx, st)
}

func (s *ChatService) FetchMessages(ctx context.Context, st *store.Store, userID string) ([]models.Message, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.NewValidationError("User ID is required")
	}
	return s.fetcher.FetchMessages(ctx, st, userID)
}

// SetActive opens the thread with userID and persists the read receipts.
func (s *ChatService) SetActive(ctx context.Context, st *store.Store, userID string) (store.ChatState, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return store.ChatState{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return store.ChatState{}, models.NewValidationError("user_id is required")
	}
	if err := s.writer.MarkConversationRead(ctx, viewer.ID, userID); err != nil {
		return store.ChatState{}, err
	}
	return st.ApplyChat("setActiveConversation", func(c store.ChatState) store.ChatState {
		return c.SetActiveConversation(userID)
	}), nil
}

func (s *ChatService) ClearActive(st *store.Store) store.ChatState {
	return st.ApplyChat("clearActiveConversation", store.ChatState.ClearActiveConversation)
}

// Send persists a message from the viewer, appends it to the viewer's thread
// and delivers it to the receiver.
func (s *ChatService) Send(ctx context.Context, st *store.Store, in SendMessageInput) (models.Message, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return models.Message{}, err
	}
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.Content = strings.TrimSpace(in.Content)
	if in.ReceiverID == "" {
		return models.Message{}, models.NewValidationError("receiver_id is required")
	}
	if in.ReceiverID == viewer.ID {
		return models.Message{}, models.NewValidationError("Cannot send a message to yourself")
	}
	if in.Content == "" && (in.MediaURL == nil || *in.MediaURL == "") {
		return models.Message{}, models.NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(in.Content) > maxMessageLen {
		return models.Message{}, models.NewValidationError("Message too long (max 2000 characters)")
	}

	users, err := s.writer.Users(ctx, []string{in.ReceiverID})
	if err != nil {
		return models.Message{}, err
	}
	if _, ok := users[in.ReceiverID]; !ok {
		return models.Message{}, models.NewNotFoundError("User", in.ReceiverID)
	}

	msg := models.Message{
		Content:    in.Content,
		MediaURL:   in.MediaURL,
		Timestamp:  time.Now(),
		SenderID:   viewer.ID,
		ReceiverID: in.ReceiverID,
	}
	if err := s.writer.SaveMessage(ctx, &msg); err != nil {
		return models.Message{}, err
	}
	st.ApplyChat("send", func(c store.ChatState) store.ChatState {
		return c.Send(msg)
	})

	if s.deliver != nil {
		if err := s.deliver.DeliverMessage(ctx, msg); err != nil {
			observability.GlobalLogger.WarnContext(ctx, "failed to deliver message",
				"message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
		}
	}
	return msg, nil
}
