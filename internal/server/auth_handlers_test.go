package server

import (
	"context"
	"net/http"
	"testing"

	"animegram/internal/cache"
	"animegram/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	env := newTestServer(t, false)

	valid := func() fiber.Map {
		return fiber.Map{
			"name":     "Spike Spiegel",
			"username": "spike",
			"email":    "Spike@Example.com",
			"password": testPassword,
		}
	}

	status, body := env.do(t, http.MethodPost, "/api/auth/register", "", valid())
	require.Equal(t, http.StatusCreated, status, string(body))
	user := decode[map[string]interface{}](t, body)
	assert.Equal(t, "spike", user["username"])
	assert.Equal(t, "spike@example.com", user["email"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, string(body), "password")

	// The mock catalogue now resolves the new account.
	known, err := env.catalog.Users(context.Background(), []string{user["id"].(string)})
	require.NoError(t, err)
	assert.Len(t, known, 1)

	tests := []struct {
		name   string
		mutate func(fiber.Map)
		status int
		code   string
	}{
		{"missing name", func(m fiber.Map) { delete(m, "name") }, http.StatusBadRequest, models.CodeValidation},
		{"missing password", func(m fiber.Map) { m["password"] = "" }, http.StatusBadRequest, models.CodeValidation},
		{"short password", func(m fiber.Map) { m["username"] = "jet"; m["email"] = "jet@example.com"; m["password"] = "short" }, http.StatusBadRequest, models.CodeValidation},
		{"bad email", func(m fiber.Map) { m["username"] = "jet"; m["email"] = "not-an-email" }, http.StatusBadRequest, models.CodeValidation},
		{"duplicate email", func(m fiber.Map) { m["username"] = "other" }, http.StatusConflict, models.CodeConflict},
		{"duplicate username", func(m fiber.Map) { m["email"] = "other@example.com" }, http.StatusConflict, models.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			status, body := env.do(t, http.MethodPost, "/api/auth/register", "", req)
			assert.Equal(t, tt.status, status, string(body))
			assert.Equal(t, tt.code, decode[models.ErrorResponse](t, body).Code)
		})
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	env := newTestServer(t, false)

	status, _ := env.do(t, http.MethodPost, "/api/auth/register", "", "just a string")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogin(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "spike")
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "spike", session.User.Username)

	st, ok := env.srv.registry.Get(session.User.ID)
	require.True(t, ok)
	assert.True(t, st.Auth().IsAuthenticated)

	status, body := env.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "spike@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.CodeUnauthorized, decode[models.ErrorResponse](t, body).Code)

	// The failed attempt is recorded without ending the live session.
	auth := st.Auth()
	assert.True(t, auth.IsAuthenticated)
	assert.Equal(t, "Invalid credentials", auth.Error)

	status, _ = env.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "nobody@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogout(t *testing.T) {
	t.Run("revokes the token", func(t *testing.T) {
		env := newTestServer(t, true)
		session := env.signup(t, "spike")

		status, _ := env.do(t, http.MethodPost, "/api/auth/logout", session.Token, nil)
		require.Equal(t, http.StatusNoContent, status)
		assert.Equal(t, 0, env.srv.registry.Len())

		status, body := env.do(t, http.MethodGet, "/api/me", session.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Contains(t, string(body), "revoked")
	})

	t.Run("without redis only drops the store", func(t *testing.T) {
		env := newTestServer(t, false)
		session := env.signup(t, "spike")

		status, _ := env.do(t, http.MethodPost, "/api/auth/logout", session.Token, nil)
		require.Equal(t, http.StatusNoContent, status)
		assert.Equal(t, 0, env.srv.registry.Len())
	})
}

func TestIssueWSTicket(t *testing.T) {
	t.Run("single use", func(t *testing.T) {
		env := newTestServer(t, true)
		session := env.signup(t, "spike")

		status, body := env.do(t, http.MethodPost, "/api/ws/ticket", session.Token, nil)
		require.Equal(t, http.StatusOK, status, string(body))
		resp := decode[map[string]interface{}](t, body)
		ticket := resp["ticket"].(string)
		require.NotEmpty(t, ticket)
		assert.True(t, env.mr.Exists(cache.WSTicketKey(ticket)))

		status, _ = env.do(t, http.MethodGet, "/api/me?ticket="+ticket, "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, env.mr.Exists(cache.WSTicketKey(ticket)))

		status, _ = env.do(t, http.MethodGet, "/api/ws?ticket="+ticket, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("requires redis", func(t *testing.T) {
		env := newTestServer(t, false)
		session := env.signup(t, "spike")

		status, _ := env.do(t, http.MethodPost, "/api/ws/ticket", session.Token, nil)
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})
}

func TestGetAccount(t *testing.T) {
	env := newTestServer(t, false)
	session := env.signup(t, "jet")

	status, body := env.do(t, http.MethodGet, "/api/me/account", session.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	account := decode[map[string]interface{}](t, body)
	assert.Equal(t, session.User.ID, account["id"])
	assert.Equal(t, "jet@example.com", account["email"])
	assert.NotContains(t, string(body), "password")

	status, _ = env.do(t, http.MethodGet, "/api/me/account", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
