// Package store holds the per-viewer application state: the feed, chat,
// notification and auth slices, the transitions that change them, and the
// orchestrators that feed remote data into them.
//
// Every change goes through a named transition applied by a Store, which runs
// one transition at a time in arrival order and tells subscribers what changed.
package store

import (
	"context"
	"sync"

	"animegram/internal/models"
	"animegram/internal/observability"
)

// Slice names one partition of the state.
type Slice string

const (
	SliceFeed          Slice = "feed"
	SliceChat          Slice = "chat"
	SliceNotifications Slice = "notifications"
	SliceAuth          Slice = "auth"
)

// Change describes one applied transition. Version increases by one per
// transition applied to the store.
type Change struct {
	ViewerID string `json:"viewer_id"`
	Slice    Slice  `json:"slice"`
	Op       string `json:"op"`
	Version  uint64 `json:"version"`
}

// Snapshot is a consistent copy of every slice at one version.
type Snapshot struct {
	Version       uint64             `json:"version"`
	Feed          FeedState          `json:"feed"`
	Chat          ChatState          `json:"chat"`
	Notifications NotificationsState `json:"notifications"`
	Auth          AuthState          `json:"auth"`
}

type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Store owns the state of one viewer. It is safe for concurrent use.
type Store struct {
	viewerID string

	mu            sync.Mutex
	version       uint64
	feed          FeedState
	chat          ChatState
	notifications NotificationsState
	auth          AuthState
	gens          map[string]uint64
	fetches       map[string]inflight

	// notifyMu keeps subscriber callbacks in transition order without
	// holding mu while they run.
	notifyMu sync.Mutex
	subsMu   sync.RWMutex
	subs     map[int]func(Change)
	nextSub  int
}

// New returns an empty store for viewerID.
func New(viewerID string) *Store {
	return &Store{
		viewerID:      viewerID,
		feed:          NewFeedState(),
		chat:          NewChatState(),
		notifications: NewNotificationsState(),
		gens:          make(map[string]uint64),
		fetches:       make(map[string]inflight),
		subs:          make(map[int]func(Change)),
	}
}

// ViewerID is the user the store belongs to.
func (s *Store) ViewerID() string {
	return s.viewerID
}

// ApplyFeed runs the named feed transition and returns the resulting state.
func (s *Store) ApplyFeed(op string, fn func(FeedState) FeedState) FeedState {
	s.mu.Lock()
	ch := s.commit(SliceFeed, op, func() { s.feed = fn(s.feed) })
	out := s.feed.clone()
	s.unlockAndNotify(ch)
	return out
}

// ApplyChat runs the named chat transition and returns the resulting state.
func (s *Store) ApplyChat(op string, fn func(ChatState) ChatState) ChatState {
	s.mu.Lock()
	ch := s.commit(SliceChat, op, func() { s.chat = fn(s.chat) })
	out := s.chat.clone()
	s.unlockAndNotify(ch)
	return out
}

// ApplyNotifications runs the named notification transition and returns the resulting state.
func (s *Store) ApplyNotifications(op string, fn func(NotificationsState) NotificationsState) NotificationsState {
	s.mu.Lock()
	ch := s.commit(SliceNotifications, op, func() { s.notifications = fn(s.notifications) })
	out := s.notifications.clone()
	s.unlockAndNotify(ch)
	return out
}

// ApplyAuth runs the named auth transition and returns the resulting state.
func (s *Store) ApplyAuth(op string, fn func(AuthState) AuthState) AuthState {
	s.mu.Lock()
	ch := s.commit(SliceAuth, op, func() { s.auth = fn(s.auth) })
	out := s.auth
	s.unlockAndNotify(ch)
	return out
}

func (s *Store) Feed() FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.clone()
}

func (s *Store) Chat() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.clone()
}

func (s *Store) Notifications() NotificationsState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications.clone()
}

func (s *Store) Auth() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// Viewer is the session identity, if logged in.
func (s *Store) Viewer() (models.UserSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auth.Viewer == nil {
		return models.UserSummary{}, false
	}
	return *s.auth.Viewer, true
}

// Snapshot copies every slice at the current version.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:       s.version,
		Feed:          s.feed.clone(),
		Chat:          s.chat.clone(),
		Notifications: s.notifications.clone(),
		Auth:          s.auth,
	}
}

// Subscribe registers fn to be called after every applied transition, in
// order. fn must not apply transitions on the same store synchronously.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Watch subscribes fn and hands onSnapshot the state fn's changes start
// from: fn sees every transition after the snapshot's version and none at or
// before it, and never before onSnapshot returns. onSnapshot must not block
// or apply transitions.
func (s *Store) Watch(onSnapshot func(Snapshot), fn func(Change)) func() {
	// Same lock order as commit/unlockAndNotify: mu, then notifyMu.
	s.mu.Lock()
	s.notifyMu.Lock()
	unsubscribe := s.Subscribe(fn)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	onSnapshot(snap)
	return unsubscribe
}

// Close cancels every in-flight fetch.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, f := range s.fetches {
		f.cancel()
		delete(s.fetches, key)
		s.gens[key]++
	}
}

// commit applies mutate and records the change. s.mu must be held.
func (s *Store) commit(slice Slice, op string, mutate func()) Change {
	mutate()
	s.version++
	observability.StoreTransitions.WithLabelValues(string(slice), op).Inc()
	observability.LogTransition(context.Background(), s.viewerID, string(slice), op)
	return Change{ViewerID: s.viewerID, Slice: slice, Op: op, Version: s.version}
}

// unlockAndNotify releases s.mu and delivers ch to subscribers. Taking
// notifyMu before releasing mu orders deliveries like the transitions.
func (s *Store) unlockAndNotify(ch Change) {
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subsMu.RLock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(ch)
	}
}

// beginFetch issues a new generation for key, cancels the fetch it
// supersedes and applies the start transition, all under one lock. The
// returned context is cancelled when a newer fetch for key begins or when
// release is called.
func (s *Store) beginFetch(ctx context.Context, key string, slice Slice, op string, start func()) (context.Context, uint64, func()) {
	fctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.fetches[key]; ok {
		prev.cancel()
	}
	s.gens[key]++
	gen := s.gens[key]
	s.fetches[key] = inflight{gen: gen, cancel: cancel}
	ch := s.commit(slice, op, start)
	s.unlockAndNotify(ch)

	release := func() {
		cancel()
		s.mu.Lock()
		if f, ok := s.fetches[key]; ok && f.gen == gen {
			delete(s.fetches, key)
		}
		s.mu.Unlock()
	}
	return fctx, gen, release
}

// finishFetch applies the completion transition only if gen is still the
// newest generation for key. It reports whether the transition was applied.
func (s *Store) finishFetch(key string, gen uint64, slice Slice, op string, apply func()) bool {
	s.mu.Lock()
	if s.gens[key] != gen {
		s.mu.Unlock()
		return false
	}
	ch := s.commit(slice, op, apply)
	s.unlockAndNotify(ch)
	return true
}
