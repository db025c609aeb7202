package repositories

import (
	"context"
	"time"

	"github.com/meomeo/backend/internal/models"
)

// ProfileUpdate carries the optional fields of a profile edit. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	AvatarURL     *string
	DisplayName   *string
	AvatarBgColor *string
}

// StoredRefreshToken mirrors auth.StoredRefreshToken at the persistence
// boundary: lookup id, secret hash and expiry written onto the user row.
type StoredRefreshToken struct {
	ID         string
	SecretHash string
	ExpiresAt  time.Time
}

// OnboardingCompletion finalises a provisional account: username and avatar
// color are set, the onboarding marker is cleared and the first refresh token
// is stored.
type OnboardingCompletion struct {
	Username      string
	AvatarBgColor string
	RefreshToken  StoredRefreshToken
}

// UserRepository defines the data access contract for accounts.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (models.User, error)
	// FindByGoogleEmailUnlinked returns the account with the given Google
	// email that has no Google subject linked yet (the account-linking path).
	FindByGoogleEmailUnlinked(ctx context.Context, email string) (models.User, error)
	FindByRefreshTokenID(ctx context.Context, tokenID string) (models.User, error)

	// CreateProvisional inserts a pending-onboarding row for a first-time
	// Google sign-in and returns it.
	CreateProvisional(ctx context.Context, googleID, googleEmail, tempUsername string, onboardingExpiresAt time.Time) (models.User, error)
	// LinkGoogle attaches a Google identity to an existing account.
	LinkGoogle(ctx context.Context, userID int64, googleID, googleEmail string) error
	// SetRefreshToken replaces the account's stored refresh credential.
	SetRefreshToken(ctx context.Context, userID int64, token StoredRefreshToken) error
	// CompleteOnboarding converts a provisional row into an active account.
	CompleteOnboarding(ctx context.Context, userID int64, completion OnboardingCompletion) (models.User, error)

	// UsernameTaken reports whether the username is held, case-insensitively,
	// by any account other than excludeID.
	UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error)

	UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (models.User, error)
	UpdateTheme(ctx context.Context, userID int64, theme string) (models.User, error)

	// List returns every active (non-provisional) account ordered by username.
	List(ctx context.Context) ([]models.User, error)
}
