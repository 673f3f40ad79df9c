package server

import (
	"context"
	"strings"

	"animegram/internal/cache"
	"animegram/internal/middleware"
	"animegram/internal/models"
	"animegram/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "Registration request"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.authService.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Authenticate and open a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login request"
// @Success 200 {object} service.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	session, err := s.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(session)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the current token and end the session
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := claimsOf(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}
	if err := s.authService.Logout(c.UserContext(), claims); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me handles GET /api/me
// @Summary Current session
// @Description Auth slice of the viewer's store
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.AuthState
// @Router /me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(st.Auth())
}

// GetAccount handles GET /api/me/account
// @Summary Current account
// @Description Full account record of the signed-in user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /me/account [get]
func (s *Server) GetAccount(c *fiber.Ctx) error {
	claims, ok := claimsOf(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}
	user, err := s.authService.Account(c.Context(), claims.Subject)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetState handles GET /api/state
// @Summary Store snapshot
// @Description Every slice of the viewer's store at one version
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.Snapshot
// @Router /state [get]
func (s *Server) GetState(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(st.Snapshot())
}

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set headers on
// a WebSocket handshake, so the bearer token is exchanged for a short-lived
// single-use ticket passed as ?ticket=.
// @Summary WebSocket ticket
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "WebSocket tickets require Redis; use a bearer token",
		})
	}
	token, _ := c.Locals("token").(string)
	ticket := uuid.NewString()
	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket), token, cache.WSTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// AuthRequired returns the authentication middleware. It resolves the
// caller's token, verifies it and attaches the viewer's session store.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws")

		tokenString := ""
		if ticket := c.Query("ticket"); ticket != "" && s.redis != nil {
			tok, err := s.consumeTicket(c.UserContext(), ticket)
			if err == nil {
				tokenString = tok
			} else if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}
		if tokenString == "" {
			tokenString = bearerToken(c)
		}
		// WebSocket paths take a ticket or a bearer header, never ?token=.
		if tokenString == "" && !isWSPath {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := s.authService.ParseToken(c.UserContext(), tokenString)
		if err != nil {
			return respondError(c, err)
		}

		c.Locals("userID", claims.Subject)
		c.Locals("claims", claims)
		c.Locals("token", tokenString)
		c.Locals("store", s.registry.Session(claims.Summary(), tokenString))
		middleware.RefreshContext(c)

		return c.Next()
	}
}

// consumeTicket atomically reads and deletes a WebSocket ticket.
func (s *Server) consumeTicket(ctx context.Context, ticket string) (string, error) {
	return s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
}
