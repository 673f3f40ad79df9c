package store

import "animegram/internal/models"

// AuthState is the session identity the other slices read as context.
type AuthState struct {
	Viewer          *models.UserSummary `json:"viewer"`
	Token           string              `json:"-"`
	IsAuthenticated bool                `json:"is_authenticated"`
	Loading         bool                `json:"loading"`
	Error           string              `json:"error"`
}

func (a AuthState) LoginStart() AuthState {
	a.Loading = true
	a.Error = ""
	return a
}

func (a AuthState) LoginSucceeded(viewer models.UserSummary, token string) AuthState {
	a.Viewer = &viewer
	a.Token = token
	a.IsAuthenticated = true
	a.Loading = false
	a.Error = ""
	return a
}

// LoginFailed records a failed attempt. An already established identity is
// kept; only Logout ends a session.
func (a AuthState) LoginFailed(message string) AuthState {
	a.Loading = false
	a.Error = message
	return a
}

func (a AuthState) Logout() AuthState {
	return AuthState{}
}
