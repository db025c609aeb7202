package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "meomeo"

var (
	// ErrTokenExpired indicates a well-formed access token past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid indicates a malformed, tampered or foreign access token.
	ErrTokenInvalid = errors.New("access token invalid")
)

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	UserID   int64
	Username string
}

// TokenService signs and verifies short-lived access tokens. Tokens are
// stateless HS256 JWTs carrying the user id as subject plus the username;
// they are invalidated only by expiry.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService. The secret must be at least
// 16 bytes; the ttl applies uniformly to every issued token.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

type accessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issue creates a signed access token for the given user.
func (s *TokenService) Issue(userID int64, username string) (string, error) {
	now := s.now().UTC()

	claims := accessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// TTL reports the lifetime applied to issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Verify parses and validates an access token, returning the identity it
// carries. Expired tokens fail with ErrTokenExpired; every other failure
// (bad signature, wrong issuer, malformed structure) is ErrTokenInvalid.
func (s *TokenService) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrTokenInvalid
	}

	return Identity{UserID: userID, Username: claims.Username}, nil
}
