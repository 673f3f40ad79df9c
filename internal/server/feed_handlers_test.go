package server

import (
	"net/http"
	"testing"

	"animegram/internal/models"
	"animegram/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFeed_Pages(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")

	status, body := env.do(t, http.MethodGet, "/api/feed?limit=2", session.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	page := decode[models.FeedPage](t, body)
	assert.Len(t, page.Posts, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.Page)

	status, body = env.do(t, http.MethodGet, "/api/feed?page=2&limit=2", session.Token, nil)
	require.Equal(t, http.StatusOK, status)
	page = decode[models.FeedPage](t, body)
	assert.Len(t, page.Posts, 1)
	assert.False(t, page.HasMore)

	status, body = env.do(t, http.MethodGet, "/api/feed/state", session.Token, nil)
	require.Equal(t, http.StatusOK, status)
	state := decode[store.FeedState](t, body)
	require.Len(t, state.Posts, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, []string{state.Posts[0].ID, state.Posts[1].ID, state.Posts[2].ID})
	assert.Equal(t, 3, state.Page)
	assert.False(t, state.HasMore)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)

	status, body = env.do(t, http.MethodPost, "/api/feed/reset", session.Token, nil)
	require.Equal(t, http.StatusOK, status)
	state = decode[store.FeedState](t, body)
	assert.Empty(t, state.Posts)
	assert.Equal(t, 1, state.Page)
	assert.True(t, state.HasMore)
}

func TestGetFeed_DefaultsAndClamp(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")

	status, body := env.do(t, http.MethodGet, "/api/feed?page=0&limit=1000", session.Token, nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[models.FeedPage](t, body)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPaginationLimit, page.Limit)
	assert.Len(t, page.Posts, 3)
}

func TestGetFeed_HugePage(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")

	status, body := env.do(t, http.MethodGet, "/api/feed?page=1152921504606846977&limit=10", session.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	page := decode[models.FeedPage](t, body)
	assert.Equal(t, maxPaginationPage, page.Page)
	assert.Empty(t, page.Posts)
	assert.False(t, page.HasMore)

	status, body = env.do(t, http.MethodGet, "/api/feed/state", session.Token, nil)
	require.Equal(t, http.StatusOK, status)
	state := decode[store.FeedState](t, body)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
}

func TestLikeNotifiesOwner(t *testing.T) {
	env := newTestServer(t, false)
	owner := env.signup(t, "faye")
	liker := env.signup(t, "spike")

	status, body := env.do(t, http.MethodPost, "/api/posts", owner.Token, fiber.Map{
		"caption":    "bounty",
		"media_urls": []string{"https://cdn.example.com/faye.jpg"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	post := decode[models.Post](t, body)
	assert.Equal(t, owner.User.ID, post.UserID)

	ownerStore, ok := env.srv.registry.Get(owner.User.ID)
	require.True(t, ok)
	require.Len(t, ownerStore.Feed().Posts, 1)

	status, _ = env.do(t, http.MethodGet, "/api/feed", liker.Token, nil)
	require.Equal(t, http.StatusOK, status)

	for i := 0; i < 2; i++ {
		status, body = env.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", liker.Token, nil)
		require.Equal(t, http.StatusOK, status, string(body))
	}
	state := decode[store.FeedState](t, body)
	liked, ok := state.Post(post.ID)
	require.True(t, ok)
	assert.True(t, liked.IsLiked)
	assert.Equal(t, 1, liked.Likes)

	// Two like requests, one notification.
	items := ownerStore.Notifications().Items
	require.Len(t, items, 1)
	assert.Equal(t, models.NotificationLike, items[0].Type)
	assert.Equal(t, liker.User.ID, items[0].ActorID)
	assert.False(t, items[0].Read)

	status, body = env.do(t, http.MethodDelete, "/api/posts/"+post.ID+"/like", liker.Token, nil)
	require.Equal(t, http.StatusOK, status)
	state = decode[store.FeedState](t, body)
	unliked, _ := state.Post(post.ID)
	assert.False(t, unliked.IsLiked)
	assert.Equal(t, 0, unliked.Likes)
}

func TestCreateComment(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")
	env.do(t, http.MethodGet, "/api/feed", session.Token, nil)

	status, body := env.do(t, http.MethodPost, "/api/posts/p2/comments", session.Token, fiber.Map{"text": "nice"})
	require.Equal(t, http.StatusCreated, status, string(body))
	comment := decode[models.Comment](t, body)
	assert.Equal(t, "p2", comment.PostID)

	st, _ := env.srv.registry.Get(session.User.ID)
	p2, ok := st.Feed().Post("p2")
	require.True(t, ok)
	assert.Equal(t, 1, p2.Comments)

	status, _ = env.do(t, http.MethodPost, "/api/posts/p2/comments", session.Token, fiber.Map{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/posts/missing/comments", session.Token, fiber.Map{"text": "hello"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeletePost(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")
	env.do(t, http.MethodGet, "/api/feed", session.Token, nil)

	status, body := env.do(t, http.MethodDelete, "/api/posts/p1", session.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.CodeForbidden, decode[models.ErrorResponse](t, body).Code)

	status, body = env.do(t, http.MethodPost, "/api/posts", session.Token, fiber.Map{
		"media_urls": []string{"https://cdn.example.com/mine.jpg"},
	})
	require.Equal(t, http.StatusCreated, status)
	post := decode[models.Post](t, body)

	status, body = env.do(t, http.MethodDelete, "/api/posts/"+post.ID, session.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	state := decode[store.FeedState](t, body)
	_, found := state.Post(post.ID)
	assert.False(t, found)
	assert.Len(t, state.Posts, 3)
}

func TestCreatePost_Validation(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")

	for name, body := range map[string]fiber.Map{
		"no media":   {"caption": "empty"},
		"bad scheme": {"media_urls": []string{"ftp://cdn.example.com/x.jpg"}},
	} {
		t.Run(name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, "/api/posts", session.Token, body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}
