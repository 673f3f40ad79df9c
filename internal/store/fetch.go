package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"animegram/internal/models"
	"animegram/internal/observability"
	"animegram/internal/source"

	"go.opentelemetry.io/otel/attribute"
)

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer fetch for the same data started before it completed.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// FetchParams selects a feed window. Zero values take the defaults.
type FetchParams struct {
	Page  int
	Limit int
}

func (p FetchParams) withDefaults() FetchParams {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// FailureMessage turns a fetch error into the text stored on a slice.
func FailureMessage(what string, err error) string {
	var appErr *models.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Code != models.CodeInternal:
		return appErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Failed to fetch %s: request timed out", what)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Failed to fetch %s: request cancelled", what)
	default:
		return fmt.Sprintf("Failed to fetch %s", what)
	}
}

// errSourcePanic wraps a panic raised inside a data source.
var errSourcePanic = errors.New("data source panicked")

// callSource runs one source call, converting a panic into an error so the
// fetch still ends in its failure transition.
func callSource[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, err = zero, fmt.Errorf("%w: %v", errSourcePanic, r)
		}
	}()
	return fn()
}

// fetchRun carries the shared lifecycle of one orchestrated fetch.
type fetchRun struct {
	operation string
	start     time.Time
	span      *observability.Span
	fields    map[string]interface{}
}

func newFetchRun(ctx context.Context, s *Store, operation, key string, fields map[string]interface{}) (*fetchRun, context.Context) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["viewer_id"] = s.ViewerID()
	span, ctx := observability.NewSpan(ctx, operation)
	span.AddAttributes(
		attribute.String("viewer.id", s.ViewerID()),
		attribute.String("fetch.key", key),
	)
	observability.LogAsyncOperationStart(ctx, operation, fields)
	return &fetchRun{operation: operation, start: time.Now(), span: span, fields: fields}, ctx
}

// finish records the outcome. A stale completion reports ErrSuperseded.
func (r *fetchRun) finish(ctx context.Context, applied bool, err error) error {
	defer r.span.End()

	outcome := "success"
	switch {
	case !applied:
		outcome = "superseded"
		err = ErrSuperseded
		observability.LogAsyncOperationEnd(ctx, r.operation, withOutcome(r.fields, outcome))
	case err != nil:
		outcome = "error"
		r.span.SetError(err)
		observability.LogAsyncOperationError(ctx, r.operation, err, r.fields)
	default:
		observability.LogAsyncOperationEnd(ctx, r.operation, withOutcome(r.fields, outcome))
	}
	observability.FetchDuration.WithLabelValues(r.operation, outcome).Observe(time.Since(r.start).Seconds())
	r.span.AddAttributes(attribute.String("fetch.outcome", outcome))
	return err
}

func withOutcome(fields map[string]interface{}, outcome string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["outcome"] = outcome
	return out
}

// FeedFetcher loads feed pages from a FeedSource into a viewer's store.
type FeedFetcher struct {
	source source.FeedSource
}

func NewFeedFetcher(src source.FeedSource) *FeedFetcher {
	return &FeedFetcher{source: src}
}

// Fetch runs startLoading, one fetch of the requested window, then
// loadSucceeded or loadFailed. It returns the fetched page, the source error,
// or ErrSuperseded when a newer feed fetch on the same store overtook it.
// There is no retry; a deadline applies only if ctx carries one.
func (f *FeedFetcher) Fetch(ctx context.Context, s *Store, params FetchParams) (models.FeedPage, error) {
	params = params.withDefaults()
	const key = "feed"

	run, ctx := newFetchRun(ctx, s, "feed.fetch", key, map[string]interface{}{
		"page":  params.Page,
		"limit": params.Limit,
	})

	fctx, gen, release := s.beginFetch(ctx, key, SliceFeed, "startLoading", func() {
		s.feed = s.feed.StartLoading()
	})
	defer release()

	page, err := callSource(func() (models.FeedPage, error) {
		return f.source.FetchFeed(fctx, s.ViewerID(), params.Page, params.Limit)
	})
	if err != nil {
		msg := FailureMessage("feed", err)
		applied := s.finishFetch(key, gen, SliceFeed, "loadFailed", func() {
			s.feed = s.feed.LoadFailed(msg)
		})
		return models.FeedPage{}, run.finish(ctx, applied, err)
	}

	applied := s.finishFetch(key, gen, SliceFeed, "loadSucceeded", func() {
		s.feed = s.feed.LoadSucceeded(page.Posts, page.HasMore)
	})
	if err := run.finish(ctx, applied, nil); err != nil {
		return models.FeedPage{}, err
	}
	return page, nil
}

// ChatFetcher loads conversations and threads from a ChatSource.
type ChatFetcher struct {
	source source.ChatSource
}

func NewChatFetcher(src source.ChatSource) *ChatFetcher {
	return &ChatFetcher{source: src}
}

// FetchConversations replaces the viewer's conversation list.
func (f *ChatFetcher) FetchConversations(ctx context.Context, s *Store) ([]models.Conversation, error) {
	const key = "chat.conversations"
	run, ctx := newFetchRun(ctx, s, "chat.fetch_conversations", key, nil)

	fctx, gen, release := s.beginFetch(ctx, key, SliceChat, "fetchConversationsStart", func() {
		s.chat = s.chat.FetchConversationsStart()
	})
	defer release()

	convs, err := callSource(func() ([]models.Conversation, error) {
		return f.source.Conversations(fctx, s.ViewerID())
	})
	if err != nil {
		msg := FailureMessage("conversations", err)
		applied := s.finishFetch(key, gen, SliceChat, "fetchConversationsFailure", func() {
			s.chat = s.chat.FetchConversationsFailure(msg)
		})
		return nil, run.finish(ctx, applied, err)
	}

	applied := s.finishFetch(key, gen, SliceChat, "fetchConversationsSuccess", func() {
		s.chat = s.chat.FetchConversationsSuccess(convs)
	})
	if err := run.finish(ctx, applied, nil); err != nil {
		return nil, err
	}
	return convs, nil
}

// FetchMessages replaces the thread with userID. Fetches for different
// counterparts do not supersede each other.
func (f *ChatFetcher) FetchMessages(ctx context.Context, s *Store, userID string) ([]models.Message, error) {
	key := "chat.messages:" + userID
	run, ctx := newFetchRun(ctx, s, "chat.fetch_messages", key, map[string]interface{}{
		"counterpart_id": userID,
	})

	fctx, gen, release := s.beginFetch(ctx, key, SliceChat, "fetchMessagesStart", func() {
		s.chat = s.chat.FetchMessagesStart(userID)
	})
	defer release()

	msgs, err := callSource(func() ([]models.Message, error) {
		return f.source.Messages(fctx, s.ViewerID(), userID)
	})
	if err != nil {
		msg := FailureMessage("messages", err)
		applied := s.finishFetch(key, gen, SliceChat, "fetchMessagesFailure", func() {
			s.chat = s.chat.FetchMessagesFailure(userID, msg)
		})
		return nil, run.finish(ctx, applied, err)
	}

	applied := s.finishFetch(key, gen, SliceChat, "fetchMessagesSuccess", func() {
		s.chat = s.chat.FetchMessagesSuccess(userID, msgs)
	})
	if err := run.finish(ctx, applied, nil); err != nil {
		return nil, err
	}
	return msgs, nil
}

// NotificationFetcher loads the viewer's notifications.
type NotificationFetcher struct {
	source source.NotificationSource
}

func NewNotificationFetcher(src source.NotificationSource) *NotificationFetcher {
	return &NotificationFetcher{source: src}
}

func (f *NotificationFetcher) Fetch(ctx context.Context, s *Store) ([]models.Notification, error) {
	const key = "notifications"
	run, ctx := newFetchRun(ctx, s, "notifications.fetch", key, nil)

	fctx, gen, release := s.beginFetch(ctx, key, SliceNotifications, "fetchStart", func() {
		s.notifications = s.notifications.FetchStart()
	})
	defer release()

	items, err := callSource(func() ([]models.Notification, error) {
		return f.source.Notifications(fctx, s.ViewerID())
	})
	if err != nil {
		msg := FailureMessage("notifications", err)
		applied := s.finishFetch(key, gen, SliceNotifications, "fetchFailed", func() {
			s.notifications = s.notifications.FetchFailed(msg)
		})
		return nil, run.finish(ctx, applied, err)
	}

	applied := s.finishFetch(key, gen, SliceNotifications, "fetchSucceeded", func() {
		s.notifications = s.notifications.FetchSucceeded(items)
	})
	if err := run.finish(ctx, applied, nil); err != nil {
		return nil, err
	}
	return items, nil
}
