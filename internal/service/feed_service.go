package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"animegram/internal/models"
	"animegram/internal/observability"
	"animegram/internal/source"
	"animegram/internal/store"
)

const (
	maxCaptionLen = 2200
	maxCommentLen = 2200
	maxMediaItems = 10
)

// FeedService runs feed actions: persisted through the writer, then applied
// to the viewer's store, with notifications for the post owner.
type FeedService struct {
	writer  source.Writer
	fetcher *store.FeedFetcher
	deliver Deliverer
}

func NewFeedService(writer source.Writer, feed source.FeedSource, deliver Deliverer) *FeedService {
	return &FeedService{writer: writer, fetcher: store.NewFeedFetcher(feed), deliver: deliver}
}

// CreatePostInput is the body of a new post.
type CreatePostInput struct {
	Caption   string   `json:"caption"`
	MediaURLs []string `json:"media_urls"`
}

func viewerOf(st *store.Store) (models.UserSummary, error) {
	viewer, ok := st.Viewer()
	if !ok {
		return models.UserSummary{}, models.NewUnauthorizedError("Session not established")
	}
	return viewer, nil
}

func (s *FeedService) Fetch(ctx context.Context, st *store.Store, params store.FetchParams) (models.FeedPage, error) {
	return s.fetcher.Fetch(ctx, st, params)
}

func (s *FeedService) Reset(st *store.Store) store.FeedState {
	return st.ApplyFeed("reset", store.FeedState.Reset)
}

// CreatePost persists a post authored by the viewer and puts it at the front
// of the viewer's feed.
func (s *FeedService) CreatePost(ctx context.Context, st *store.Store, in CreatePostInput) (*models.Post, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return nil, err
	}
	if len(in.MediaURLs) == 0 {
		return nil, models.NewValidationError("At least one media URL is required")
	}
	if len(in.MediaURLs) > maxMediaItems {
		return nil, models.NewValidationError("Too many media items (max 10)")
	}
	for _, raw := range in.MediaURLs {
		u, perr := url.ParseRequestURI(strings.TrimSpace(raw))
		if perr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, models.NewValidationError("media_urls must be valid http(s) URLs")
		}
	}
	if utf8.RuneCountInString(in.Caption) > maxCaptionLen {
		return nil, models.NewValidationError("Caption too long (max 2200 characters)")
	}

	post := &models.Post{
		Caption:   strings.TrimSpace(in.Caption),
		MediaURLs: append([]string(nil), in.MediaURLs...),
		UserID:    viewer.ID,
		CreatedAt: time.Now(),
	}
	if err := s.writer.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	post.User = &viewer

	st.ApplyFeed("addLocal", func(f store.FeedState) store.FeedState {
		return f.AddLocal(*post)
	})
	return post, nil
}

// DeletePost removes the viewer's own post. A post the source no longer
// knows is only dropped from the feed.
func (s *FeedService) DeletePost(ctx context.Context, st *store.Store, postID string) (store.FeedState, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return store.FeedState{}, err
	}

	owner, err := s.writer.PostOwner(ctx, postID)
	switch {
	case isNotFound(err):
	case err != nil:
		return store.FeedState{}, err
	case owner != viewer.ID:
		return store.FeedState{}, models.NewForbiddenError("You can only delete your own posts")
	default:
		if err := s.writer.DeletePost(ctx, postID); err != nil && !isNotFound(err) {
			return store.FeedState{}, err
		}
	}

	return st.ApplyFeed("remove", func(f store.FeedState) store.FeedState {
		return f.Remove(postID)
	}), nil
}

// Like records the viewer's like and notifies the owner the first time.
func (s *FeedService) Like(ctx context.Context, st *store.Store, postID string) (store.FeedState, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return store.FeedState{}, err
	}
	changed, err := s.writer.Like(ctx, viewer.ID, postID)
	if err != nil {
		return store.FeedState{}, err
	}
	state := st.ApplyFeed("like", func(f store.FeedState) store.FeedState {
		return f.Like(postID)
	})
	if changed {
		s.notifyOwner(ctx, viewer, postID, models.NotificationLike, nil)
	}
	return state, nil
}

func (s *FeedService) Unlike(ctx context.Context, st *store.Store, postID string) (store.FeedState, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return store.FeedState{}, err
	}
	if _, err := s.writer.Unlike(ctx, viewer.ID, postID); err != nil {
		return store.FeedState{}, err
	}
	return st.ApplyFeed("unlike", func(f store.FeedState) store.FeedState {
		return f.Unlike(postID)
	}), nil
}

// Comment adds a comment, bumps the counter and notifies the owner.
func (s *FeedService) Comment(ctx context.Context, st *store.Store, postID, text string) (*models.Comment, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("Comment text is required")
	}
	if utf8.RuneCountInString(text) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 2200 characters)")
	}

	comment := &models.Comment{PostID: postID, UserID: viewer.ID, Text: text, CreatedAt: time.Now()}
	if err := s.writer.AddComment(ctx, comment); err != nil {
		return nil, err
	}
	st.ApplyFeed("incrementCommentCount", func(f store.FeedState) store.FeedState {
		return f.IncrementCommentCount(postID)
	})
	s.notifyOwner(ctx, viewer, postID, models.NotificationComment, &comment.ID)
	return comment, nil
}

// notifyOwner persists and delivers a notification to the post's owner.
// Failures are logged; the action that caused them already succeeded.
func (s *FeedService) notifyOwner(ctx context.Context, actor models.UserSummary, postID string, kind models.NotificationType, commentID *string) {
	owner, err := s.writer.PostOwner(ctx, postID)
	if err != nil || owner == "" || owner == actor.ID {
		return
	}
	pid := postID
	n := models.Notification{
		UserID:    owner,
		Type:      kind,
		ActorID:   actor.ID,
		PostID:    &pid,
		CommentID: commentID,
		CreatedAt: time.Now(),
	}
	if err := s.writer.SaveNotification(ctx, &n); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to save notification",
			"type", string(kind), "recipient_id", owner, "error", err)
		return
	}
	n.Actor = &actor
	if s.deliver == nil {
		return
	}
	if err := s.deliver.DeliverNotification(ctx, n); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to deliver notification",
			"type", string(kind), "recipient_id", owner, "error", err)
	}
}

func isNotFound(err error) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr) && appErr.Code == models.CodeNotFound
}
