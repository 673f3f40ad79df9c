package store

import (
	"sync"

	"animegram/internal/models"
	"animegram/internal/observability"
)

// Registry owns one Store per logged-in viewer.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Get returns the viewer's store if one exists.
func (r *Registry) Get(viewerID string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[viewerID]
	return s, ok
}

// Session returns the viewer's store for an authenticated request, creating
// it on first use. LoginSucceeded is applied only when the store has no
// session yet or the identity changed; a viewer signed in on several devices
// presents different tokens without touching the auth slice.
func (r *Registry) Session(viewer models.UserSummary, token string) *Store {
	s := r.getOrCreate(viewer.ID)
	if auth := s.Auth(); !auth.IsAuthenticated || auth.Viewer == nil || *auth.Viewer != viewer {
		s.ApplyAuth("loginSucceeded", func(a AuthState) AuthState {
			return a.LoginSucceeded(viewer, token)
		})
	}
	return s
}

// Login records an explicit sign-in, always applying LoginSucceeded so the
// outcome of the attempt replaces any earlier failure.
func (r *Registry) Login(viewer models.UserSummary, token string) *Store {
	s := r.getOrCreate(viewer.ID)
	s.ApplyAuth("loginSucceeded", func(a AuthState) AuthState {
		return a.LoginSucceeded(viewer, token)
	})
	return s
}

func (r *Registry) getOrCreate(viewerID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[viewerID]
	if !ok {
		s = New(viewerID)
		r.stores[viewerID] = s
		observability.ActiveStores.Set(float64(len(r.stores)))
	}
	return s
}

// Drop ends the viewer's session and discards the store.
func (r *Registry) Drop(viewerID string) {
	r.mu.Lock()
	s, ok := r.stores[viewerID]
	delete(r.stores, viewerID)
	observability.ActiveStores.Set(float64(len(r.stores)))
	r.mu.Unlock()

	if !ok {
		return
	}
	s.ApplyAuth("logout", AuthState.Logout)
	s.Close()
}

// Len is the number of live stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
