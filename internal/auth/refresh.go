package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

var (
	// ErrRefreshTokenInvalid indicates the presented refresh token does not
	// match any stored credential.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrRefreshTokenExpired indicates the matched credential is past its expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// StoredRefreshToken is the server-side form of a refresh token: a non-secret
// lookup id, the bcrypt hash of the secret half, and an expiry. The plaintext
// is never persisted.
type StoredRefreshToken struct {
	ID         string
	SecretHash string
	ExpiresAt  time.Time
}

// UserSource resolves the account holding a given refresh-token id.
type UserSource interface {
	FindByRefreshTokenID(ctx context.Context, tokenID string) (models.User, error)
}

// RefreshManager mints and redeems long-lived refresh tokens. The plaintext
// form is "<id>.<secret>": the id is an indexed, non-secret lookup key and the
// secret is 32 bytes of entropy verified against a stored bcrypt hash, so
// redemption is a single indexed read rather than a scan over all accounts.
type RefreshManager struct {
	hasher *Hasher
	users  UserSource
	ttl    time.Duration
	now    func() time.Time
}

// NewRefreshManager constructs a RefreshManager issuing tokens with the
// provided ttl.
func NewRefreshManager(hasher *Hasher, users UserSource, ttl time.Duration) *RefreshManager {
	if hasher == nil {
		panic("auth: hasher must not be nil")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RefreshManager{hasher: hasher, users: users, ttl: ttl, now: time.Now}
}

// Mint generates a fresh refresh token, returning the plaintext to hand to
// the client and the stored form to persist on the user row.
func (m *RefreshManager) Mint() (string, StoredRefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", StoredRefreshToken{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	id := xid.New().String()

	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return "", StoredRefreshToken{}, fmt.Errorf("hash refresh secret: %w", err)
	}

	stored := StoredRefreshToken{
		ID:         id,
		SecretHash: hash,
		ExpiresAt:  m.now().UTC().Add(m.ttl),
	}
	return id + "." + secret, stored, nil
}

// Redeem validates a plaintext refresh token and returns the account it
// belongs to. Expiry is checked before the hash compare so expired rows never
// cost a bcrypt round, and again after the match.
func (m *RefreshManager) Redeem(ctx context.Context, plaintext string) (models.User, error) {
	id, secret, ok := strings.Cut(plaintext, ".")
	if !ok || id == "" || secret == "" {
		return models.User{}, ErrRefreshTokenInvalid
	}

	user, err := m.users.FindByRefreshTokenID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, ErrRefreshTokenInvalid
		}
		return models.User{}, fmt.Errorf("look up refresh token: %w", err)
	}

	if user.RefreshTokenExpiresAt == nil || m.now().UTC().After(*user.RefreshTokenExpiresAt) {
		return models.User{}, ErrRefreshTokenExpired
	}

	if !m.hasher.Verify(user.RefreshTokenHash, secret) {
		return models.User{}, ErrRefreshTokenInvalid
	}

	if m.now().UTC().After(*user.RefreshTokenExpiresAt) {
		return models.User{}, ErrRefreshTokenExpired
	}

	return user, nil
}
