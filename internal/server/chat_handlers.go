package server

import (
	"animegram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetConversations handles GET /api/conversations
// @Summary Fetch conversations
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Conversation
// @Failure 502 {object} models.ErrorResponse
// @Router /conversations [get]
func (s *Server) GetConversations(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	conversations, err := s.chatService.FetchConversations(c.UserContext(), st)
	if err != nil {
		return respondFetchError(c, "conversations", err)
	}
	return c.JSON(conversations)
}

// GetMessages handles GET /api/conversations/:userId/messages
// @Summary Fetch a thread
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param userId path string true "Counterpart user ID"
// @Success 200 {array} models.Message
// @Failure 502 {object} models.ErrorResponse
// @Router /conversations/{userId}/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	messages, err := s.chatService.FetchMessages(c.UserContext(), st, c.Params("userId"))
	if err != nil {
		return respondFetchError(c, "messages", err)
	}
	return c.JSON(messages)
}

// SetActiveConversation handles PUT /api/conversations/active
// @Summary Open a thread
// @Description Makes the thread active and marks the counterpart's messages read
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{user_id=string} true "Counterpart"
// @Success 200 {object} store.ChatState
// @Failure 400 {object} models.ErrorResponse
// @Router /conversations/active [put]
func (s *Server) SetActiveConversation(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	state, err := s.chatService.SetActive(c.UserContext(), st, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// ClearActiveConversation handles DELETE /api/conversations/active
// @Summary Close the active thread
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.ChatState
// @Router /conversations/active [delete]
func (s *Server) ClearActiveConversation(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(s.chatService.ClearActive(st))
}

// GetChatState handles GET /api/chat/state
// @Summary Chat slice
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.ChatState
// @Router /chat/state [get]
func (s *Server) GetChatState(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(st.Chat())
}

// SendMessage handles POST /api/messages
// @Summary Send a message
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.SendMessageInput true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	var req service.SendMessageInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.chatService.Send(c.UserContext(), st, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}
