// Package seed creates demo data for the relational backend. It is meant for
// development databases and tests, never production.
package seed

import (
	"fmt"
	"strings"
	"time"

	"animegram/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account logs in with.
const DefaultPassword = "password123"

// Factory builds domain rows and persists them. Content comes from a seeded
// faker so a given seed always produces the same data set.
type Factory struct {
	db           *gorm.DB
	faker        *gofakeit.Faker
	passwordHash string
	now          time.Time
	seq          int
}

// NewFactory creates a Factory bound to db. The password hash is computed once
// and shared by every account it creates.
func NewFactory(db *gorm.DB, seed int64) (*Factory, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{
		db:           db,
		faker:        gofakeit.New(seed),
		passwordHash: string(hash),
		now:          time.Now().UTC(),
	}, nil
}

// CreateUser persists a sample account. Overrides run before the insert.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	f.seq++
	first := f.faker.FirstName()
	username := fmt.Sprintf("%s_%s%d", strings.ToLower(first), strings.ToLower(f.faker.Animal()), f.seq)
	user := &models.User{
		Name:     first + " " + f.faker.LastName(),
		Username: username,
		Email:    username + "@animegram.dev",
		Password: f.passwordHash,
		Bio:      f.faker.Sentence(8),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post for user without persisting it. Posts carry one
// to three images and are spread over the last maxDays days.
func (f *Factory) BuildPost(user *models.User, maxDays int) *models.Post {
	if maxDays <= 0 {
		maxDays = 30
	}
	media := make([]string, f.faker.Number(1, 3))
	for i := range media {
		media[i] = fmt.Sprintf("https://picsum.photos/seed/%s/1080/1080", f.faker.UUID())
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return &models.Post{
		Caption:   f.faker.Sentence(f.faker.Number(3, 12)),
		MediaURLs: media,
		UserID:    user.ID,
		CreatedAt: f.now.Add(-back),
	}
}

// CreatePostsBatch persists posts in a single insert.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return f.db.CreateInBatches(posts, 100).Error
}

// CreateLike records that user liked post and bumps the counter.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	return f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.PostLike{UserID: user.ID, PostID: post.ID}).Error; err != nil {
			return err
		}
		post.Likes++
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("likes", gorm.Expr("likes + ?", 1)).Error
	})
}

// CreateComment persists a comment from user on post and bumps the counter.
func (f *Factory) CreateComment(user *models.User, post *models.Post) (*models.Comment, error) {
	comment := &models.Comment{
		PostID: post.ID,
		UserID: user.ID,
		Text:   f.faker.Sentence(f.faker.Number(2, 10)),
	}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		post.Comments++
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comments", gorm.Expr("comments + ?", 1)).Error
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateThread persists n alternating messages between a and b, oldest
// first. All but the last unread tail of length unread are marked read.
func (f *Factory) CreateThread(a, b *models.User, n, unread int) ([]models.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	start := f.now.Add(-time.Duration(n) * time.Hour)
	msgs := make([]models.Message, n)
	for i := range msgs {
		sender, receiver := a, b
		if i%2 == 1 {
			sender, receiver = b, a
		}
		msgs[i] = models.Message{
			Content:    f.faker.Sentence(f.faker.Number(2, 14)),
			Timestamp:  start.Add(time.Duration(i) * time.Hour),
			SenderID:   sender.ID,
			ReceiverID: receiver.ID,
			Read:       i < n-unread,
		}
	}
	if err := f.db.CreateInBatches(msgs, 100).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateNotification persists an activity notification for recipient caused
// by actor. Self-notifications are skipped and return nil.
func (f *Factory) CreateNotification(recipient, actor *models.User, kind models.NotificationType, postID, commentID *string) (*models.Notification, error) {
	if recipient.ID == actor.ID {
		return nil, nil
	}
	n := &models.Notification{
		UserID:    recipient.ID,
		Type:      kind,
		ActorID:   actor.ID,
		PostID:    postID,
		CommentID: commentID,
		Read:      f.faker.Bool(),
		CreatedAt: f.now.Add(-time.Duration(f.faker.Number(1, 72*60)) * time.Minute),
	}
	if err := f.db.Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// Pick returns a deterministic pseudo-random index below n.
func (f *Factory) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}
