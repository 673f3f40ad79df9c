package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"animegram/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByEmail(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT * FROM "users" WHERE email = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)

	tests := []struct {
		name         string
		mockBehavior func(mock sqlmock.Sqlmock)
		wantUser     bool
		wantErr      bool
	}{
		{
			name: "Found",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "username", "email"}).
					AddRow("u1", "ann", "ann@example.com")
				mock.ExpectQuery(query).WithArgs("ann@example.com", 1).WillReturnRows(rows)
			},
			wantUser: true,
		},
		{
			name: "Not Found",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("ann@example.com", 1).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
		},
		{
			name: "Database Error",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("ann@example.com", 1).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewUserRepository(db)
			tt.mockBehavior(mock)

			user, err := repo.GetByEmail(context.Background(), "ann@example.com")
			if tt.wantErr {
				require.Error(t, err)
				var appErr *models.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, models.CodeInternal, appErr.Code)
			} else {
				require.NoError(t, err)
			}
			if tt.wantUser {
				require.NotNil(t, user)
				assert.Equal(t, "ann", user.Username)
			} else {
				assert.Nil(t, user)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_CreateConflict(t *testing.T) {
	repo := NewUserRepository(setupSQLite(t))
	ctx := context.Background()

	first := &models.User{Name: "Ann", Username: "ann", Email: "ann@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, first))

	sameEmail := &models.User{Name: "Other", Username: "other", Email: "ann@example.com", Password: "hash"}
	err := repo.Create(ctx, sameEmail)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeConflict, appErr.Code)
}

func TestUserRepository_GetByIDAndSummaries(t *testing.T) {
	repo := NewUserRepository(setupSQLite(t))
	ctx := context.Background()

	ann := &models.User{Name: "Ann", Username: "ann", Email: "ann@example.com", Password: "hash", Avatar: "a.png"}
	bob := &models.User{Name: "Bob", Username: "bob", Email: "bob@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, ann))
	require.NoError(t, repo.Create(ctx, bob))

	got, err := repo.GetByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", got.Username)

	_, err = repo.GetByID(ctx, "missing")
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)

	summaries, err := repo.GetSummaries(ctx, []string{ann.ID, bob.ID, ann.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
	assert.Equal(t, models.UserSummary{ID: ann.ID, Username: "ann", Name: "Ann", Avatar: "a.png"}, summaries[ann.ID])
}
