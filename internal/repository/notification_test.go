package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"animegram/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository(t *testing.T) {
	repo := NewNotificationRepository(setupSQLite(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &models.Notification{UserID: "me", Type: models.NotificationLike, ActorID: "u2", CreatedAt: base}
	newer := &models.Notification{UserID: "me", Type: models.NotificationFollow, ActorID: "u3", CreatedAt: base.Add(time.Hour)}
	foreign := &models.Notification{UserID: "u9", Type: models.NotificationTag, ActorID: "u3", CreatedAt: base}
	for _, n := range []*models.Notification{older, newer, foreign} {
		require.NoError(t, repo.Create(ctx, n))
	}

	list, err := repo.ListForUser(ctx, "me", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	require.NoError(t, repo.MarkRead(ctx, "me", older.ID))
	err = repo.MarkRead(ctx, "me", foreign.ID)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)

	require.NoError(t, repo.MarkAllRead(ctx, "me"))
	list, err = repo.ListForUser(ctx, "me", 10)
	require.NoError(t, err)
	for _, n := range list {
		assert.True(t, n.Read)
	}
}
