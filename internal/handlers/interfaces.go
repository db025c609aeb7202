package handlers

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/meomeo/backend/internal/auth"
	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

// TokenIssuer signs short-lived access tokens.
type TokenIssuer interface {
	Issue(userID int64, username string) (string, error)
	TTL() time.Duration
}

// TokenVerifier validates a bearer token and returns the identity it carries.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// RefreshSessions mints and redeems long-lived refresh tokens.
type RefreshSessions interface {
	Mint() (string, auth.StoredRefreshToken, error)
	Redeem(ctx context.Context, plaintext string) (models.User, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(hash, plaintext string) bool
}

// ScoreProvider computes a user's engagement score for the current UTC day.
type ScoreProvider interface {
	DailyScore(ctx context.Context, userID int64) (int, error)
}

// AvatarStore persists uploaded avatar images and returns their public URL.
type AvatarStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    repositories.UserRepository
	Stories  repositories.StoryRepository
	Likes    repositories.LikeRepository
	Comments repositories.CommentRepository
	Shares   repositories.ShareRepository

	Scores    ScoreProvider
	Tokens    TokenIssuer
	Verifier  TokenVerifier
	Refresh   RefreshSessions
	Google    auth.IdentityVerifier
	Passwords PasswordVerifier
	Avatars   AvatarStore

	AuthLimiter   RateLimiter
	OnboardingTTL time.Duration
	ShareTokenTTL time.Duration
	CORSOrigin    string
	Logger        *slog.Logger
}
