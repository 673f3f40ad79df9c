package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications
// @Summary Fetch notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Notification
// @Failure 502 {object} models.ErrorResponse
// @Router /notifications [get]
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	items, err := s.notificationService.Fetch(c.UserContext(), st)
	if err != nil {
		return respondFetchError(c, "notifications", err)
	}
	return c.JSON(items)
}

// GetNotificationsState handles GET /api/notifications/state
// @Summary Notifications slice
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.NotificationsState
// @Router /notifications/state [get]
func (s *Server) GetNotificationsState(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(st.Notifications())
}

// MarkNotificationRead handles POST /api/notifications/:id/read
// @Summary Mark one notification read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} store.NotificationsState
// @Failure 404 {object} models.ErrorResponse
// @Router /notifications/{id}/read [post]
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	state, err := s.notificationService.MarkRead(c.UserContext(), st, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// MarkAllNotificationsRead handles POST /api/notifications/read-all
// @Summary Mark every notification read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.NotificationsState
// @Router /notifications/read-all [post]
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	state, err := s.notificationService.MarkAllRead(c.UserContext(), st)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}
