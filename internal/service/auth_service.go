// Package service provides application business logic: accounts and
// sessions, feed actions, chat and notification delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"animegram/internal/cache"
	"animegram/internal/models"
	"animegram/internal/observability"
	"animegram/internal/repository"
	"animegram/internal/store"
	"animegram/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenIssuer   = "animegram-api"
	TokenAudience = "animegram-client"
	TokenTTL      = 7 * 24 * time.Hour
)

var errInvalidCredentials = models.NewUnauthorizedError("Invalid credentials")

// Claims is the JWT payload. The identity fields let a viewer store be
// rebuilt from the token alone.
type Claims struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Summary is the session identity carried by the token.
func (c *Claims) Summary() models.UserSummary {
	return models.UserSummary{ID: c.Subject, Username: c.Username, Name: c.Name, Avatar: c.Avatar}
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AuthService registers accounts and issues, verifies and revokes tokens.
type AuthService struct {
	users    repository.UserRepository
	registry *store.Registry
	rdb      *redis.Client
	secret   []byte
	now      func() time.Time
	// onRegister lets a mock catalogue learn about new accounts.
	onRegister func(models.UserSummary)
}

func NewAuthService(
	users repository.UserRepository,
	registry *store.Registry,
	rdb *redis.Client,
	secret string,
	onRegister func(models.UserSummary),
) *AuthService {
	return &AuthService{
		users:      users,
		registry:   registry,
		rdb:        rdb,
		secret:     []byte(secret),
		now:        time.Now,
		onRegister: onRegister,
	}
}

// Register validates in, rejects duplicates and persists the account with a
// bcrypt password hash.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Name == "" || in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Name, username, email, and password are required")
	}
	for _, check := range []error{
		validation.ValidateName(in.Name),
		validation.ValidateUsername(in.Username),
		validation.ValidateEmail(in.Email),
		validation.ValidatePassword(in.Password),
	} {
		if check != nil {
			return nil, models.NewValidationError(check.Error())
		}
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if existing == nil {
		existing, err = s.users.GetByUsername(ctx, in.Username)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Name:     in.Name,
		Username: in.Username,
		Email:    in.Email,
		Password: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, models.NewInternalError(err)
	}

	if s.onRegister != nil {
		s.onRegister(user.Summary())
	}
	return user, nil
}

// Login checks the credentials and establishes the viewer's session store.
// A failed attempt against an account with a live store is recorded on its
// auth slice without ending the session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if user == nil {
		return nil, errInvalidCredentials
	}

	existing, live := s.registry.Get(user.ID)
	if live {
		existing.ApplyAuth("loginStart", store.AuthState.LoginStart)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		if live {
			existing.ApplyAuth("loginFailed", func(a store.AuthState) store.AuthState {
				return a.LoginFailed(errInvalidCredentials.Message)
			})
		}
		return nil, errInvalidCredentials
	}

	token, expires, err := s.IssueToken(user.Summary())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.registry.Login(user.Summary(), token)
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Account returns the full record of the signed-in user.
func (s *AuthService) Account(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// IssueToken signs an HS256 token for viewer.
func (s *AuthService) IssueToken(viewer models.UserSummary) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("JWT secret not configured")
	}
	now := s.now()
	expires := now.Add(TokenTTL)
	claims := Claims{
		Username: viewer.Username,
		Name:     viewer.Name,
		Avatar:   viewer.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.ID,
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken verifies signature, issuer, audience and expiry, and rejects
// revoked token IDs.
func (s *AuthService) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, models.NewUnauthorizedError("Invalid subject claim")
	}
	if s.IsRevoked(ctx, claims.ID) {
		return nil, models.NewUnauthorizedError("Token has been revoked")
	}
	return claims, nil
}

// IsRevoked reports whether jti was revoked. Without Redis nothing is.
func (s *AuthService) IsRevoked(ctx context.Context, jti string) bool {
	if s.rdb == nil || jti == "" {
		return false
	}
	n, err := s.rdb.Exists(ctx, cache.BlacklistKey(jti)).Result()
	return err == nil && n > 0
}

// Logout revokes the token until it would have expired and discards the
// viewer's store.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	defer s.registry.Drop(claims.Subject)

	if s.rdb == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(s.now()); remaining > 0 {
			ttl = remaining
		}
	}
	if err := s.rdb.Set(ctx, cache.BlacklistKey(claims.ID), "1", ttl).Err(); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to revoke token",
			"user_id", claims.Subject, "error", err)
		return models.NewInternalError(err)
	}
	return nil
}
