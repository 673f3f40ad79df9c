package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"animegram/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
)

// ViewerPlaceholder stands for "whoever is asking" in fixture messages and
// notifications, so one catalogue serves every viewer.
const ViewerPlaceholder = "me"

// Fixtures is the on-disk layout of a mock catalogue.
type Fixtures struct {
	Users         []models.UserSummary  `yaml:"users"`
	Posts         []models.Post         `yaml:"posts"`
	Messages      []models.Message      `yaml:"messages"`
	Notifications []models.Notification `yaml:"notifications"`
}

// MockOptions configures a generated catalogue.
type MockOptions struct {
	Seed  int64
	Posts int
}

// Catalog is an in-memory Backend. Reads wait the configured latency first, giving up when
// the context is done.
type Catalog struct {
	latency time.Duration

	mu            sync.RWMutex
	users         map[string]models.UserSummary
	posts         []models.Post // newest first
	likes         map[string]map[string]struct{}
	comments      []models.Comment
	messages      []models.Message
	notifications []models.Notification
	overlays      map[string]*viewerOverlay
}

// viewerOverlay holds one viewer's changes to placeholder fixture rows.
// Those rows are shared by every viewer and never mutated.
type viewerOverlay struct {
	readMessages      map[string]struct{}
	readNotifications map[string]struct{}
	unliked           map[string]struct{} // fixture likes the viewer took back
}

func member(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

// The predicates accept a nil overlay: a viewer who changed nothing.

func (o *viewerOverlay) messageRead(id string) bool {
	return o != nil && member(o.readMessages, id)
}

func (o *viewerOverlay) notificationRead(id string) bool {
	return o != nil && member(o.readNotifications, id)
}

func (o *viewerOverlay) likeTakenBack(postID string) bool {
	return o != nil && member(o.unliked, postID)
}

// overlay returns the viewer's overlay, creating it. Callers hold c.mu for writing.
func (c *Catalog) overlay(viewerID string) *viewerOverlay {
	o, ok := c.overlays[viewerID]
	if !ok {
		o = &viewerOverlay{
			readMessages:      make(map[string]struct{}),
			readNotifications: make(map[string]struct{}),
			unliked:           make(map[string]struct{}),
		}
		c.overlays[viewerID] = o
	}
	return o
}

// NewCatalog builds a catalogue from fixtures.
func NewCatalog(fx Fixtures, latency time.Duration) *Catalog {
	c := &Catalog{
		latency:  latency,
		users:    make(map[string]models.UserSummary, len(fx.Users)),
		likes:    make(map[string]map[string]struct{}),
		overlays: make(map[string]*viewerOverlay),
	}
	for _, u := range fx.Users {
		c.users[u.ID] = u
	}
	c.posts = append(c.posts, fx.Posts...)
	sort.SliceStable(c.posts, func(i, j int) bool {
		return c.posts[i].CreatedAt.After(c.posts[j].CreatedAt)
	})
	c.messages = append(c.messages, fx.Messages...)
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].Timestamp.Before(c.messages[j].Timestamp)
	})
	c.notifications = append(c.notifications, fx.Notifications...)
	for _, p := range c.posts {
		if p.IsLiked {
			c.likes[p.ID] = map[string]struct{}{ViewerPlaceholder: {}}
		}
	}
	return c
}

// LoadFixtures reads a YAML catalogue from path.
func LoadFixtures(path string) (Fixtures, error) {
	var fx Fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("read fixtures: %w", err)
	}
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fx, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	for i, p := range fx.Posts {
		if p.ID == "" || len(p.MediaURLs) == 0 {
			return fx, fmt.Errorf("fixture post %d: id and at least one media url are required", i)
		}
	}
	return fx, nil
}

// GenerateFixtures builds a deterministic catalogue from opts.Seed.
func GenerateFixtures(opts MockOptions) Fixtures {
	faker := gofakeit.New(opts.Seed)
	n := opts.Posts
	if n <= 0 {
		n = 50
	}
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var fx Fixtures
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("user-%02d", i+1)
		fx.Users = append(fx.Users, models.UserSummary{
			ID:       id,
			Username: fmt.Sprintf("%s%d", faker.Username(), faker.Number(10, 99)),
			Name:     faker.Name(),
			Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", id),
		})
	}

	tags := []string{"#anime", "#manga", "#cosplay", "#fanart", "#aesthetic", "#otaku"}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("post-%03d", i+1)
		media := make([]string, faker.Number(1, 3))
		for m := range media {
			media[m] = fmt.Sprintf("https://picsum.photos/seed/%s-%d/600/600", id, m)
		}
		author := fx.Users[faker.Number(0, len(fx.Users)-1)]
		fx.Posts = append(fx.Posts, models.Post{
			ID:        id,
			Caption:   faker.Sentence(8) + " " + faker.RandomString(tags),
			MediaURLs: media,
			UserID:    author.ID,
			Likes:     faker.Number(0, 500),
			Comments:  faker.Number(0, 40),
			CreatedAt: base.Add(-time.Duration(i) * 37 * time.Minute),
		})
	}

	for c := 0; c < 4; c++ {
		other := fx.Users[c].ID
		count := faker.Number(2, 6)
		start := base.Add(-time.Duration(c+1) * 3 * time.Hour)
		for m := 0; m < count; m++ {
			sender, receiver := other, ViewerPlaceholder
			if m%2 == 1 {
				sender, receiver = ViewerPlaceholder, other
			}
			fx.Messages = append(fx.Messages, models.Message{
				ID:         fmt.Sprintf("msg-%d-%d", c+1, m+1),
				Content:    faker.Sentence(faker.Number(3, 12)),
				Timestamp:  start.Add(time.Duration(m) * 4 * time.Minute),
				SenderID:   sender,
				ReceiverID: receiver,
				Read:       m < count-1 || receiver != ViewerPlaceholder,
			})
		}
	}

	types := []models.NotificationType{
		models.NotificationLike, models.NotificationComment, models.NotificationFollow,
		models.NotificationMention, models.NotificationTag,
	}
	for i := 0; i < 8; i++ {
		t := types[i%len(types)]
		n := models.Notification{
			ID:        fmt.Sprintf("notif-%02d", i+1),
			UserID:    ViewerPlaceholder,
			Type:      t,
			ActorID:   fx.Users[faker.Number(0, len(fx.Users)-1)].ID,
			Read:      i >= 3,
			CreatedAt: base.Add(-time.Duration(i) * 45 * time.Minute),
		}
		if t != models.NotificationFollow && len(fx.Posts) > 0 {
			postID := fx.Posts[i%len(fx.Posts)].ID
			n.PostID = &postID
		}
		fx.Notifications = append(fx.Notifications, n)
	}
	return fx
}

func (c *Catalog) wait(ctx context.Context) error {
	if c.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isViewer matches the viewer's own ID or the fixture placeholder.
func isViewer(id, viewerID string) bool {
	return id == viewerID || id == ViewerPlaceholder
}

func (c *Catalog) FetchFeed(ctx context.Context, viewerID string, page, limit int) (models.FeedPage, error) {
	if err := c.wait(ctx); err != nil {
		return models.FeedPage{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.posts)
	start, end, hasMore := window(total, page, limit)
	posts := make([]models.Post, 0, end-start)
	for _, p := range c.posts[start:end] {
		posts = append(posts, c.present(p, viewerID))
	}
	return models.FeedPage{Posts: posts, HasMore: hasMore, Page: page, Limit: limit, Total: total}, nil
}

// likeState reports whether viewerID likes postID, either through their own
// like or a fixture like they have not taken back.
func (c *Catalog) likeState(viewerID, postID string) (own, fixture bool) {
	set := c.likes[postID]
	_, own = set[viewerID]
	if _, ok := set[ViewerPlaceholder]; ok {
		fixture = !c.overlays[viewerID].likeTakenBack(postID)
	}
	return own, fixture
}

// present copies p with its author and the viewer's liked flag filled in.
// A fixture like the viewer took back is subtracted from the count they see.
func (c *Catalog) present(p models.Post, viewerID string) models.Post {
	p.MediaURLs = append([]string(nil), p.MediaURLs...)
	if u, ok := c.users[p.UserID]; ok {
		p.User = &u
	}
	own, fixture := c.likeState(viewerID, p.ID)
	p.IsLiked = own || fixture
	if _, placeholder := c.likes[p.ID][ViewerPlaceholder]; placeholder && !fixture && p.Likes > 0 {
		p.Likes--
	}
	return p
}

func (c *Catalog) viewerMessages(viewerID string) []models.Message {
	var out []models.Message
	for _, m := range c.messages {
		if !isViewer(m.SenderID, viewerID) && !isViewer(m.ReceiverID, viewerID) {
			continue
		}
		if m.SenderID == ViewerPlaceholder {
			m.SenderID = viewerID
		}
		if m.ReceiverID == ViewerPlaceholder {
			m.ReceiverID = viewerID
			if c.overlays[viewerID].messageRead(m.ID) {
				m.Read = true
			}
		}
		out = append(out, m)
	}
	return out
}

func (c *Catalog) Conversations(ctx context.Context, viewerID string) ([]models.Conversation, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return groupConversations(viewerID, c.viewerMessages(viewerID), c.users), nil
}

func (c *Catalog) Messages(ctx context.Context, viewerID, counterpartID string) ([]models.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range c.viewerMessages(viewerID) {
		if m.Counterpart(viewerID) == counterpartID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Catalog) Notifications(ctx context.Context, viewerID string) ([]models.Notification, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Notification, 0)
	for _, n := range c.notifications {
		if !isViewer(n.UserID, viewerID) {
			continue
		}
		if n.UserID == ViewerPlaceholder && c.overlays[viewerID].notificationRead(n.ID) {
			n.Read = true
		}
		n.UserID = viewerID
		if u, ok := c.users[n.ActorID]; ok {
			n.Actor = &u
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *Catalog) CreatePost(_ context.Context, post *models.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post.ID == "" {
		post.ID = fmt.Sprintf("local-%d", time.Now().UnixNano())
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	c.posts = append([]models.Post{*post}, c.posts...)
	return nil
}

func (c *Catalog) indexOfPost(postID string) int {
	for i := range c.posts {
		if c.posts[i].ID == postID {
			return i
		}
	}
	return -1
}

func (c *Catalog) DeletePost(_ context.Context, postID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfPost(postID)
	if i < 0 {
		return models.NewNotFoundError("Post", postID)
	}
	c.posts = append(c.posts[:i:i], c.posts[i+1:]...)
	delete(c.likes, postID)
	return nil
}

func (c *Catalog) PostOwner(_ context.Context, postID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOfPost(postID)
	if i < 0 {
		return "", models.NewNotFoundError("Post", postID)
	}
	return c.posts[i].UserID, nil
}

func (c *Catalog) Like(_ context.Context, viewerID, postID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfPost(postID)
	if i < 0 {
		return false, models.NewNotFoundError("Post", postID)
	}
	own, fixture := c.likeState(viewerID, postID)
	if own || fixture {
		return false, nil
	}
	if _, placeholder := c.likes[postID][ViewerPlaceholder]; placeholder {
		// Restoring a fixture like only touches the viewer's overlay.
		delete(c.overlay(viewerID).unliked, postID)
		return true, nil
	}
	set := c.likes[postID]
	if set == nil {
		set = make(map[string]struct{})
		c.likes[postID] = set
	}
	set[viewerID] = struct{}{}
	c.posts[i].Likes++
	return true, nil
}

func (c *Catalog) Unlike(_ context.Context, viewerID, postID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfPost(postID)
	if i < 0 {
		return false, models.NewNotFoundError("Post", postID)
	}
	own, fixture := c.likeState(viewerID, postID)
	switch {
	case own:
		delete(c.likes[postID], viewerID)
		if c.posts[i].Likes > 0 {
			c.posts[i].Likes--
		}
	case fixture:
		c.overlay(viewerID).unliked[postID] = struct{}{}
	default:
		return false, nil
	}
	return true, nil
}

func (c *Catalog) AddComment(_ context.Context, comment *models.Comment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfPost(comment.PostID)
	if i < 0 {
		return models.NewNotFoundError("Post", comment.PostID)
	}
	if comment.ID == "" {
		comment.ID = fmt.Sprintf("comment-%d", len(c.comments)+1)
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	c.comments = append(c.comments, *comment)
	c.posts[i].Comments++
	return nil
}

func (c *Catalog) SaveMessage(_ context.Context, msg *models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-local-%d", len(c.messages)+1)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.messages = append(c.messages, *msg)
	return nil
}

func (c *Catalog) MarkConversationRead(_ context.Context, viewerID, counterpartID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		m := &c.messages[i]
		if m.SenderID != counterpartID {
			continue
		}
		switch m.ReceiverID {
		case viewerID:
			m.Read = true
		case ViewerPlaceholder:
			c.overlay(viewerID).readMessages[m.ID] = struct{}{}
		}
	}
	return nil
}

func (c *Catalog) SaveNotification(_ context.Context, n *models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.ID == "" {
		n.ID = fmt.Sprintf("notif-local-%d", len(c.notifications)+1)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	c.notifications = append(c.notifications, *n)
	return nil
}

func (c *Catalog) MarkNotificationRead(_ context.Context, viewerID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notifications {
		n := &c.notifications[i]
		if n.ID != id || !isViewer(n.UserID, viewerID) {
			continue
		}
		if n.UserID == ViewerPlaceholder {
			c.overlay(viewerID).readNotifications[id] = struct{}{}
		} else {
			n.Read = true
		}
		return nil
	}
	return models.NewNotFoundError("Notification", id)
}

func (c *Catalog) MarkAllNotificationsRead(_ context.Context, viewerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notifications {
		n := &c.notifications[i]
		switch n.UserID {
		case viewerID:
			n.Read = true
		case ViewerPlaceholder:
			c.overlay(viewerID).readNotifications[n.ID] = struct{}{}
		}
	}
	return nil
}

func (c *Catalog) Users(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := c.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// AddUser makes a registered account known to the catalogue so it resolves
// as a post author or message counterpart.
func (c *Catalog) AddUser(u models.UserSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
}
