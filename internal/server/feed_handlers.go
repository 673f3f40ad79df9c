package server

import (
	"animegram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/feed
// @Summary Fetch a feed page
// @Description Loads one window of the feed into the viewer's store
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} models.FeedPage
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}

	page, err := s.feedService.Fetch(c.UserContext(), st, parseFetchParams(c, s.config.FeedPageSize))
	if err != nil {
		return respondFetchError(c, "feed", err)
	}
	return c.JSON(page)
}

// GetFeedState handles GET /api/feed/state
// @Summary Feed slice
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.FeedState
// @Router /feed/state [get]
func (s *Server) GetFeedState(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(st.Feed())
}

// ResetFeed handles POST /api/feed/reset
// @Summary Reset the feed slice
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Success 200 {object} store.FeedState
// @Router /feed/reset [post]
func (s *Server) ResetFeed(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	return c.JSON(s.feedService.Reset(st))
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreatePostInput true "Post"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	var req service.CreatePostInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.feedService.CreatePost(c.UserContext(), st, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} store.FeedState
// @Failure 403 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	state, err := s.feedService.DeletePost(c.UserContext(), st, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// LikePost handles POST /api/posts/:id/like
// @Summary Like a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} store.FeedState
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	state, err := s.feedService.Like(c.UserContext(), st, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// UnlikePost handles DELETE /api/posts/:id/like
// @Summary Unlike a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} store.FeedState
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [delete]
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	state, err := s.feedService.Unlike(c.UserContext(), st, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}

// CreateComment handles POST /api/posts/:id/comments
// @Summary Comment on a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param request body object{text=string} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	st, err := viewerStore(c)
	if err != nil {
		return nil
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	comment, err := s.feedService.Comment(c.UserContext(), st, c.Params("id"), req.Text)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
