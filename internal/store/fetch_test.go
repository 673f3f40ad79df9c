package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"animegram/internal/models"
	"animegram/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedReply struct {
	page models.FeedPage
	err  error
}

type feedCall struct {
	ctx   context.Context
	page  int
	limit int
	reply chan feedReply
}

// blockingFeed hands every call to the test and waits for its reply.
type blockingFeed struct {
	calls chan feedCall
}

func newBlockingFeed() *blockingFeed {
	return &blockingFeed{calls: make(chan feedCall)}
}

func (b *blockingFeed) FetchFeed(ctx context.Context, _ string, page, limit int) (models.FeedPage, error) {
	call := feedCall{ctx: ctx, page: page, limit: limit, reply: make(chan feedReply, 1)}
	b.calls <- call
	r := <-call.reply
	return r.page, r.err
}

func (b *blockingFeed) next(t *testing.T) feedCall {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("source was not called")
		return feedCall{}
	}
}

type fetchResult struct {
	page models.FeedPage
	err  error
}

func fetchAsync(f *FeedFetcher, s *Store, params FetchParams) <-chan fetchResult {
	out := make(chan fetchResult, 1)
	go func() {
		page, err := f.Fetch(context.Background(), s, params)
		out <- fetchResult{page, err}
	}()
	return out
}

func catalog(posts int) *source.Catalog {
	fx := source.Fixtures{}
	for i := 0; i < posts; i++ {
		fx.Posts = append(fx.Posts, models.Post{
			ID:        string(rune('a' + i)),
			MediaURLs: []string{"https://cdn.example.com/x.jpg"},
			CreatedAt: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}
	return source.NewCatalog(fx, 0)
}

func TestFeedFetcher_DefaultsAndPaging(t *testing.T) {
	src := newBlockingFeed()
	s := New("u1")
	done := fetchAsync(NewFeedFetcher(src), s, FetchParams{})

	call := src.next(t)
	assert.Equal(t, DefaultPage, call.page)
	assert.Equal(t, DefaultLimit, call.limit)
	assert.True(t, s.Feed().Loading, "startLoading applied before the source call")

	call.reply <- feedReply{page: models.FeedPage{Posts: []models.Post{post("a", 0, false)}, HasMore: true}}
	res := <-done
	require.NoError(t, res.err)

	st := s.Feed()
	assert.False(t, st.Loading)
	assert.Equal(t, 2, st.Page)
	assert.Equal(t, []string{"a"}, ids(st.Posts))
}

func TestFeedFetcher_PagesThroughCatalog(t *testing.T) {
	s := New("u1")
	f := NewFeedFetcher(catalog(5))

	for page := 1; page <= 3; page++ {
		_, err := f.Fetch(context.Background(), s, FetchParams{Page: page, Limit: 2})
		require.NoError(t, err)
	}

	st := s.Feed()
	assert.Len(t, st.Posts, 5)
	assert.False(t, st.HasMore)
	assert.Equal(t, 4, st.Page)
}

func TestFeedFetcher_HugePageEndsEmpty(t *testing.T) {
	s := New("u1")
	page, err := NewFeedFetcher(catalog(5)).Fetch(context.Background(), s, FetchParams{Page: 1<<60 + 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.False(t, page.HasMore)

	st := s.Feed()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.False(t, st.HasMore)
}

type panickingFeed struct{}

func (panickingFeed) FetchFeed(context.Context, string, int, int) (models.FeedPage, error) {
	panic("index out of range")
}

func TestFeedFetcher_SourcePanicBecomesLoadFailed(t *testing.T) {
	s := New("u1")

	var err error
	require.NotPanics(t, func() {
		_, err = NewFeedFetcher(panickingFeed{}).Fetch(context.Background(), s, FetchParams{})
	})
	require.ErrorIs(t, err, errSourcePanic)

	st := s.Feed()
	assert.False(t, st.Loading)
	assert.Equal(t, "Failed to fetch feed", st.Error)
	assert.Equal(t, 1, st.Page)
}

func TestFeedFetcher_FailureKeepsPosts(t *testing.T) {
	src := newBlockingFeed()
	s := New("u1")
	s.ApplyFeed("loadSucceeded", func(f FeedState) FeedState {
		return f.LoadSucceeded([]models.Post{post("a", 0, false)}, true)
	})
	done := fetchAsync(NewFeedFetcher(src), s, FetchParams{Page: 2})

	src.next(t).reply <- feedReply{err: errors.New("connection reset")}
	res := <-done
	require.Error(t, res.err)
	assert.NotErrorIs(t, res.err, ErrSuperseded)

	st := s.Feed()
	assert.False(t, st.Loading)
	assert.Equal(t, "Failed to fetch feed", st.Error)
	assert.Equal(t, []string{"a"}, ids(st.Posts))
	assert.Equal(t, 2, st.Page)
}

func TestFeedFetcher_StaleCompletionIsIgnored(t *testing.T) {
	src := newBlockingFeed()
	s := New("u1")
	f := NewFeedFetcher(src)

	first := fetchAsync(f, s, FetchParams{Page: 1})
	firstCall := src.next(t)
	second := fetchAsync(f, s, FetchParams{Page: 1})
	secondCall := src.next(t)

	select {
	case <-firstCall.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}

	secondCall.reply <- feedReply{page: models.FeedPage{Posts: []models.Post{post("new", 0, false)}}}
	require.NoError(t, (<-second).err)

	// the overtaken request still answers with data, which must not land
	firstCall.reply <- feedReply{page: models.FeedPage{Posts: []models.Post{post("old", 0, false)}, HasMore: true}}
	res := <-first
	assert.ErrorIs(t, res.err, ErrSuperseded)

	st := s.Feed()
	assert.Equal(t, []string{"new"}, ids(st.Posts))
	assert.False(t, st.HasMore)
	assert.Equal(t, 2, st.Page)
	assert.False(t, st.Loading)
}

func TestFeedFetcher_CloseSupersedesInflight(t *testing.T) {
	src := newBlockingFeed()
	s := New("u1")
	done := fetchAsync(NewFeedFetcher(src), s, FetchParams{})

	call := src.next(t)
	s.Close()
	<-call.ctx.Done()
	call.reply <- feedReply{err: call.ctx.Err()}

	assert.ErrorIs(t, (<-done).err, ErrSuperseded)
	assert.True(t, s.Feed().Loading, "no completion transition after close")
}

func TestChatFetcher_ConversationsAndMessages(t *testing.T) {
	fx := source.Fixtures{
		Users: []models.UserSummary{{ID: "u2", Username: "faye"}},
		Messages: []models.Message{
			{ID: "m1", Content: "hi", SenderID: "u2", ReceiverID: "me", Timestamp: t0},
			{ID: "m2", Content: "yo", SenderID: "me", ReceiverID: "u2", Timestamp: t0.Add(time.Minute)},
		},
	}
	f := NewChatFetcher(source.NewCatalog(fx, 0))
	s := New("u1")

	convs, err := f.FetchConversations(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	st := s.Chat()
	assert.False(t, st.Loading)
	conv, ok := st.Conversation("u2")
	require.True(t, ok)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "m2", conv.LastMessage.ID)

	msgs, err := f.FetchMessages(context.Background(), s, "u2")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	conv, _ = s.Chat().Conversation("u2")
	assert.Len(t, conv.Messages, 2)
}

type failingNotifications struct{ err error }

func (f failingNotifications) Notifications(context.Context, string) ([]models.Notification, error) {
	return nil, f.err
}

func TestNotificationFetcher_Failure(t *testing.T) {
	s := New("u1")
	_, err := NewNotificationFetcher(failingNotifications{err: context.DeadlineExceeded}).Fetch(context.Background(), s)
	require.Error(t, err)

	st := s.Notifications()
	assert.False(t, st.Loading)
	assert.Equal(t, "Failed to fetch notifications: request timed out", st.Error)
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), "Failed to fetch feed"},
		{"timeout", context.DeadlineExceeded, "Failed to fetch feed: request timed out"},
		{"cancelled", context.Canceled, "Failed to fetch feed: request cancelled"},
		{"app error", models.NewNotFoundError("User", "u9"), "User with ID u9 not found"},
		{"internal app error", models.NewInternalError(errors.New("db down")), "Failed to fetch feed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureMessage("feed", tt.err))
		})
	}
}
