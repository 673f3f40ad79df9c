package store

import (
	"sort"

	"animegram/internal/models"
)

// ChatState holds the viewer's direct-message threads keyed by the
// counterpart's user ID. ActiveConversation is empty when no thread is open.
// Loading is true while the conversation list or any thread is loading; the
// two kinds of load are tracked apart so one finishing does not clear the other.
type ChatState struct {
	Conversations        map[string]models.Conversation `json:"conversations"`
	ActiveConversation   string                         `json:"active_conversation"`
	Loading              bool                           `json:"loading"`
	LoadingConversations bool                           `json:"loading_conversations"`
	LoadingThreads       map[string]bool                `json:"loading_threads,omitempty"`
	Error                string                         `json:"error"`
}

// NewChatState returns an empty chat slice.
func NewChatState() ChatState {
	return ChatState{Conversations: map[string]models.Conversation{}}
}

// FetchConversationsStart marks a conversation list load as in flight.
func (c ChatState) FetchConversationsStart() ChatState {
	c.LoadingConversations = true
	c.Error = ""
	return c.syncLoading()
}

// FetchConversationsSuccess replaces every conversation with the fetched list.
func (c ChatState) FetchConversationsSuccess(conversations []models.Conversation) ChatState {
	next := make(map[string]models.Conversation, len(conversations))
	for _, conv := range conversations {
		conv.Messages = copyMessages(conv.Messages)
		if conv.LastMessage == nil {
			conv.LastMessage = lastOf(conv.Messages)
		}
		next[conv.UserID] = conv
	}
	c.Conversations = next
	c.LoadingConversations = false
	c.Error = ""
	return c.syncLoading()
}

// FetchConversationsFailure records the failure and keeps existing threads.
func (c ChatState) FetchConversationsFailure(message string) ChatState {
	c.LoadingConversations = false
	c.Error = message
	return c.syncLoading()
}

// SetActiveConversation opens the thread with userID: its unread counter is
// zeroed and every message authored by userID is marked read. Messages the
// viewer sent are left as they are.
func (c ChatState) SetActiveConversation(userID string) ChatState {
	c.ActiveConversation = userID
	conv, ok := c.Conversations[userID]
	if !ok {
		return c
	}
	msgs := copyMessages(conv.Messages)
	for i := range msgs {
		if msgs[i].SenderID == userID {
			msgs[i].Read = true
		}
	}
	conv.Messages = msgs
	conv.LastMessage = lastOf(msgs)
	conv.UnreadCount = 0
	return c.with(conv)
}

// ClearActiveConversation closes the open thread.
func (c ChatState) ClearActiveConversation() ChatState {
	c.ActiveConversation = ""
	return c
}

// FetchMessagesStart marks a thread load for userID as in flight.
func (c ChatState) FetchMessagesStart(userID string) ChatState {
	c = c.withThreadLoading(userID, true)
	c.Error = ""
	return c.syncLoading()
}

// FetchMessagesSuccess replaces the thread with userID, creating it with no
// unread messages when it does not exist yet.
func (c ChatState) FetchMessagesSuccess(userID string, messages []models.Message) ChatState {
	conv, ok := c.Conversations[userID]
	if !ok {
		conv = models.Conversation{UserID: userID}
	}
	conv.Messages = copyMessages(messages)
	conv.LastMessage = lastOf(conv.Messages)
	c = c.withThreadLoading(userID, false)
	c.Error = ""
	return c.syncLoading().with(conv)
}

// FetchMessagesFailure records a failed thread load for userID.
func (c ChatState) FetchMessagesFailure(userID, message string) ChatState {
	c = c.withThreadLoading(userID, false)
	c.Error = message
	return c.syncLoading()
}

// Send appends a message the viewer sent to the thread with its receiver.
func (c ChatState) Send(msg models.Message) ChatState {
	conv, ok := c.Conversations[msg.ReceiverID]
	if !ok {
		conv = models.Conversation{UserID: msg.ReceiverID}
	}
	conv = appendMessage(conv, msg)
	return c.with(conv)
}

// Receive appends a message from another user to the thread with its sender.
// The message is read only if that thread is the active one; otherwise the
// thread's unread counter grows by one.
func (c ChatState) Receive(msg models.Message) ChatState {
	active := c.ActiveConversation != "" && c.ActiveConversation == msg.SenderID
	msg.Read = active

	conv, ok := c.Conversations[msg.SenderID]
	if !ok {
		conv = models.Conversation{UserID: msg.SenderID}
	}
	conv = appendMessage(conv, msg)
	if !active {
		conv.UnreadCount++
	}
	return c.with(conv)
}

// Conversation returns the thread with userID.
func (c ChatState) Conversation(userID string) (models.Conversation, bool) {
	conv, ok := c.Conversations[userID]
	return conv, ok
}

// List returns the threads ordered by most recent message first. Threads
// without messages come last, ordered by user ID.
func (c ChatState) List() []models.Conversation {
	out := make([]models.Conversation, 0, len(c.Conversations))
	for _, conv := range c.Conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a != nil && b != nil && !a.Timestamp.Equal(b.Timestamp):
			return a.Timestamp.After(b.Timestamp)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// TotalUnread sums the unread counters of every thread.
func (c ChatState) TotalUnread() int {
	total := 0
	for _, conv := range c.Conversations {
		total += conv.UnreadCount
	}
	return total
}

// with returns the state with conv stored under its user ID in a copied map.
func (c ChatState) with(conv models.Conversation) ChatState {
	next := make(map[string]models.Conversation, len(c.Conversations)+1)
	for k, v := range c.Conversations {
		next[k] = v
	}
	next[conv.UserID] = conv
	c.Conversations = next
	return c
}

// withThreadLoading sets or clears userID in a copied LoadingThreads map.
func (c ChatState) withThreadLoading(userID string, loading bool) ChatState {
	next := make(map[string]bool, len(c.LoadingThreads)+1)
	for k := range c.LoadingThreads {
		next[k] = true
	}
	if loading {
		next[userID] = true
	} else {
		delete(next, userID)
	}
	if len(next) == 0 {
		next = nil
	}
	c.LoadingThreads = next
	return c
}

func (c ChatState) syncLoading() ChatState {
	c.Loading = c.LoadingConversations || len(c.LoadingThreads) > 0
	return c
}

func (c ChatState) clone() ChatState {
	next := make(map[string]models.Conversation, len(c.Conversations))
	for k, v := range c.Conversations {
		v.Messages = copyMessages(v.Messages)
		next[k] = v
	}
	c.Conversations = next
	return c
}

func appendMessage(conv models.Conversation, msg models.Message) models.Conversation {
	msgs := make([]models.Message, len(conv.Messages), len(conv.Messages)+1)
	copy(msgs, conv.Messages)
	conv.Messages = append(msgs, msg)
	conv.LastMessage = lastOf(conv.Messages)
	return conv
}

func copyMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	copy(out, in)
	return out
}

func lastOf(msgs []models.Message) *models.Message {
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	return &last
}
