package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"
)

var (
	// ErrIdentityTokenInvalid indicates the Google ID token failed
	// verification (bad signature, wrong audience, expired).
	ErrIdentityTokenInvalid = errors.New("identity token invalid")
	// ErrIdentityMissingEmail indicates a verified token without an email
	// claim; email is required for account linking.
	ErrIdentityMissingEmail = errors.New("identity token missing email")
)

// GoogleIdentity is the verified profile extracted from a Google ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// IdentityVerifier validates third-party identity tokens.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (GoogleIdentity, error)
}

// GoogleVerifier verifies Google-issued ID tokens against a configured OAuth
// client id.
type GoogleVerifier struct {
	clientID string
}

// NewGoogleVerifier constructs a verifier for the given OAuth client id.
func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("auth: google client id is required")
	}
	return &GoogleVerifier{clientID: clientID}, nil
}

// VerifyIDToken checks the token's signature and audience and extracts the
// profile attributes the application cares about.
func (v *GoogleVerifier) VerifyIDToken(ctx context.Context, raw string) (GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, raw, v.clientID)
	if err != nil {
		return GoogleIdentity{}, ErrIdentityTokenInvalid
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return GoogleIdentity{}, ErrIdentityMissingEmail
	}

	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)

	return GoogleIdentity{
		Subject: payload.Subject,
		Email:   email,
		Name:    name,
		Picture: picture,
	}, nil
}
