package service

import (
	"context"

	"animegram/internal/models"
	"animegram/internal/source"
	"animegram/internal/store"
)

// NotificationService reads and acknowledges the viewer's notifications.
type NotificationService struct {
	writer  source.Writer
	fetcher *store.NotificationFetcher
}

func NewNotificationService(writer source.Writer, src source.NotificationSource) *NotificationService {
	return &NotificationService{writer: writer, fetcher: store.NewNotificationFetcher(src)}
}

func (s *NotificationService) Fetch(ctx context.Context, st *store.Store) ([]models.Notification, error) {
	return s.fetcher.Fetch(ctx, st)
}

func (s *NotificationService) MarkRead(ctx context.Context, st *store.Store, id string) (store.NotificationsState, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return store.NotificationsState{}, err
	}
	if err := s.writer.MarkNotificationRead(ctx, viewer.ID, id); err != nil {
		return store.NotificationsState{}, err
	}
	return st.ApplyNotifications("markRead", func(n store.NotificationsState) store.NotificationsState {
		return n.MarkRead(id)
	}), nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, st *store.Store) (store.NotificationsState, error) {
	viewer, err := viewerOf(st)
	if err != nil {
		return store.NotificationsState{}, err
	}
	if err := s.writer.MarkAllNotificationsRead(ctx, viewer.ID); err != nil {
		return store.NotificationsState{}, err
	}
	return st.ApplyNotifications("markAllRead", store.NotificationsState.MarkAllRead), nil
}
