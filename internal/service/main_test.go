package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"animegram/internal/models"
	"animegram/internal/notifications"
	"animegram/internal/source"
	"animegram/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	spike = models.UserSummary{ID: "u1", Username: "spike", Name: "Spike Spiegel"}
	faye  = models.UserSummary{ID: "u2", Username: "faye", Name: "Faye Valentine"}
	jet   = models.UserSummary{ID: "u3", Username: "jet", Name: "Jet Black"}
)

// testCatalog holds three users; p1 belongs to faye, p2 to spike.
func testCatalog() *source.Catalog {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return source.NewCatalog(source.Fixtures{
		Users: []models.UserSummary{spike, faye, jet},
		Posts: []models.Post{
			{ID: "p1", UserID: faye.ID, MediaURLs: []string{"https://cdn.example.com/p1.jpg"}, Likes: 3, CreatedAt: base.Add(time.Minute)},
			{ID: "p2", UserID: spike.ID, MediaURLs: []string{"https://cdn.example.com/p2.jpg"}, CreatedAt: base},
		},
	}, 0)
}

// viewerStore returns a registry with an established session for viewer.
func viewerStore(viewer models.UserSummary) (*store.Registry, *store.Store) {
	reg := store.NewRegistry()
	return reg, reg.Session(viewer, "token-"+viewer.ID)
}

// mockDeliverer records deliveries.
type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) DeliverMessage(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockDeliverer) DeliverNotification(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// recordingPusher captures envelopes pushed to the hub.
type recordingPusher struct {
	mu   sync.Mutex
	sent map[string][]notifications.Envelope
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{sent: make(map[string][]notifications.Envelope)}
}

func (p *recordingPusher) Send(userID string, env notifications.Envelope) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[userID] = append(p.sent[userID], env)
	return 1
}

func (p *recordingPusher) For(userID string) []notifications.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifications.Envelope(nil), p.sent[userID]...)
}

// userRepoStub is an in-memory repository.UserRepository.
type userRepoStub struct {
	mu      sync.Mutex
	users   map[string]*models.User
	failGet error
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: make(map[string]*models.User)}
}

func (s *userRepoStub) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, models.NewNotFoundError("User", id)
}

func (s *userRepoStub) GetSummaries(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.UserSummary)
	for _, u := range s.users {
		for _, id := range ids {
			if u.ID == id {
				out[id] = u.Summary()
			}
		}
	}
	return out, nil
}

func (s *userRepoStub) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	return s.users[email], nil
}

func (s *userRepoStub) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *userRepoStub) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return models.NewConflictError("User already exists")
	}
	if user.ID == "" {
		user.ID = "id-" + user.Username
	}
	s.users[user.Email] = user
	return nil
}

// assertAppError asserts that err is an AppError with the given code.
func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}
