package seed

import (
	"context"
	"fmt"

	"animegram/internal/middleware"
	"animegram/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumUsers    int
	NumPosts    int
	Threads     int
	Seed        int64
	ShouldClean bool
	MaxDays     int
}

// DefaultOptions is the demo data set used by `animegram seed` without flags.
func DefaultOptions() Options {
	return Options{NumUsers: 20, NumPosts: 100, Threads: 8, Seed: 42, ShouldClean: true, MaxDays: 30}
}

// Result counts the rows a run created.
type Result struct {
	Users         int `json:"users"`
	Posts         int `json:"posts"`
	Likes         int `json:"likes"`
	Comments      int `json:"comments"`
	Messages      int `json:"messages"`
	Notifications int `json:"notifications"`
}

// Seeder fills a migrated database with a social graph of users, posts,
// engagement, direct messages and the notifications that engagement causes.
type Seeder struct {
	db   *gorm.DB
	opts Options
}

// NewSeeder creates a Seeder over db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.NumUsers < 2 {
		opts.NumUsers = 2
	}
	if opts.NumPosts < 0 {
		opts.NumPosts = 0
	}
	return &Seeder{db: db, opts: opts}
}

// IsEmpty reports whether no accounts exist yet.
func IsEmpty(ctx context.Context, db *gorm.DB) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count == 0, nil
}

// ClearAll removes every seeded table's rows, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	middleware.Logger.Info("clearing existing data")
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
	for _, model := range []interface{}{
		&models.Notification{},
		&models.Message{},
		&models.Comment{},
		&models.PostLike{},
		&models.Post{},
		&models.User{},
	} {
		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Run seeds the database and reports what it created.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result
	middleware.Logger.Info("starting database seeding",
		"users", s.opts.NumUsers, "posts", s.opts.NumPosts, "threads", s.opts.Threads)

	if s.opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return res, err
		}
	}

	f, err := NewFactory(s.db.WithContext(ctx), s.opts.Seed)
	if err != nil {
		return res, err
	}

	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		u, err := f.CreateUser()
		if err != nil {
			return res, fmt.Errorf("failed to create users: %w", err)
		}
		users = append(users, u)
	}
	res.Users = len(users)

	posts := make([]*models.Post, 0, s.opts.NumPosts)
	for i := 0; i < s.opts.NumPosts; i++ {
		posts = append(posts, f.BuildPost(users[f.Pick(len(users))], s.opts.MaxDays))
	}
	if err := f.CreatePostsBatch(posts); err != nil {
		return res, fmt.Errorf("failed to create posts: %w", err)
	}
	res.Posts = len(posts)

	owners := make(map[string]*models.User, len(users))
	for _, u := range users {
		owners[u.ID] = u
	}

	for _, post := range posts {
		owner := owners[post.UserID]
		postID := post.ID

		// Distinct likers: walk the user ring from a random offset.
		likes := f.Pick(len(users))
		offset := f.Pick(len(users))
		for i := 0; i < likes; i++ {
			liker := users[(offset+i)%len(users)]
			if err := f.CreateLike(liker, post); err != nil {
				return res, fmt.Errorf("failed to create likes: %w", err)
			}
			res.Likes++
			n, err := f.CreateNotification(owner, liker, models.NotificationLike, &postID, nil)
			if err != nil {
				return res, fmt.Errorf("failed to create notifications: %w", err)
			}
			if n != nil {
				res.Notifications++
			}
		}

		for i := f.Pick(4); i > 0; i-- {
			author := users[f.Pick(len(users))]
			comment, err := f.CreateComment(author, post)
			if err != nil {
				return res, fmt.Errorf("failed to create comments: %w", err)
			}
			res.Comments++
			commentID := comment.ID
			n, err := f.CreateNotification(owner, author, models.NotificationComment, &postID, &commentID)
			if err != nil {
				return res, fmt.Errorf("failed to create notifications: %w", err)
			}
			if n != nil {
				res.Notifications++
			}
		}
	}

	for i := 0; i < s.opts.Threads; i++ {
		a := users[i%len(users)]
		b := users[(i+1+f.Pick(len(users)-1))%len(users)]
		msgs, err := f.CreateThread(a, b, 2+f.Pick(8), f.Pick(3))
		if err != nil {
			return res, fmt.Errorf("failed to create messages: %w", err)
		}
		res.Messages += len(msgs)
	}

	middleware.Logger.Info("database seeding completed",
		"users", res.Users,
		"posts", res.Posts,
		"likes", res.Likes,
		"comments", res.Comments,
		"messages", res.Messages,
		"notifications", res.Notifications,
	)
	return res, nil
}
