package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/meomeo/backend/internal/auth"
	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,50}$`)

// avatarPalette is the fixed set of avatar background colors offered during
// onboarding. The first entry doubles as the column default.
var avatarPalette = []string{
	"#1a1a1a",
	"#FF5733", "#33FF57", "#3357FF", "#FF33F5", "#F5FF33",
	"#33FFF5", "#FF8C33", "#8C33FF", "#FF3366", "#33FF8C",
	"#338CFF", "#FFD700", "#FF6347", "#00CED1", "#9370DB",
	"#FF1493", "#00FF7F", "#FF4500", "#4169E1",
}

func paletteContains(color string) bool {
	for _, c := range avatarPalette {
		if strings.EqualFold(c, color) {
			return true
		}
	}
	return false
}

// AuthHandler implements the authentication endpoints: password login, Google
// sign-in with onboarding, and refresh-token redemption.
type AuthHandler struct {
	Users         repositories.UserRepository
	Tokens        TokenIssuer
	Refresh       RefreshSessions
	Google        auth.IdentityVerifier
	Passwords     PasswordVerifier
	Scores        ScoreProvider
	Limiter       RateLimiter
	OnboardingTTL time.Duration
	NowFunc       func() time.Time
}

type userSummary struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	MeoMeoScore     int    `json:"meomeo_score"`
	ThemePreference string `json:"theme_preference"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

// Login handles POST /login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondError(ctx, w, http.StatusTooManyRequests, "Too many authentication attempts. Please try again later.")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.Users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("login unknown username", "username", req.Username)
			respondError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		logger.Error("login user lookup failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	// Provisional rows carry an empty hash and fail the compare like any
	// wrong password, keeping the two cases indistinguishable.
	if !h.Passwords.Verify(user.PasswordHash, req.Password) {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		logger.Error("failed to issue access token", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, user.ID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{
		Token: token,
		User: userSummary{
			ID:              user.ID,
			Username:        user.Username,
			MeoMeoScore:     score,
			ThemePreference: user.ThemePreference,
		},
	})
}

type googleAuthRequest struct {
	IDToken string `json:"id_token"`
}

type onboardingSession struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

type googleUserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type googleAuthResponse struct {
	RequiresOnboarding bool               `json:"requires_onboarding"`
	OnboardingSession  *onboardingSession `json:"onboarding_session,omitempty"`
	GoogleUser         *googleUserInfo    `json:"google_user,omitempty"`
	AccessToken        string             `json:"access_token,omitempty"`
	RefreshToken       string             `json:"refresh_token,omitempty"`
	AccountLinked      bool               `json:"account_linked,omitempty"`
	User               *userSummary       `json:"user,omitempty"`
}

// GoogleAuth handles POST /google-auth requests. Sign-in resolution order:
// an account already linked to the Google subject, then an unlinked account
// sharing the verified email (linked on the spot), then a provisional account
// that must complete onboarding before receiving tokens.
func (h AuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondError(ctx, w, http.StatusTooManyRequests, "Too many authentication attempts. Please try again later.")
		return
	}

	var req googleAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid google auth payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		respondError(ctx, w, http.StatusBadRequest, "ID token is required")
		return
	}

	if h.Google == nil {
		logger.Error("google sign-in requested without a configured client id")
		respondError(ctx, w, http.StatusInternalServerError, "Google sign-in is not configured")
		return
	}

	identity, err := h.Google.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		if errors.Is(err, auth.ErrIdentityMissingEmail) {
			logger.Warn("google token without email", "error", err)
			respondError(ctx, w, http.StatusBadRequest, "Google account must have an email address")
			return
		}
		if errors.Is(err, auth.ErrIdentityTokenInvalid) {
			logger.Warn("google token rejected", "error", err)
			respondError(ctx, w, http.StatusUnauthorized, "Invalid Google ID token")
			return
		}
		logger.Error("google token verification failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	user, err := h.Users.FindByGoogleID(ctx, identity.Subject)
	switch {
	case err == nil:
		h.respondGoogleSession(w, r, user, false)
		return
	case !errors.Is(err, repositories.ErrNotFound):
		logger.Error("google id lookup failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	user, err = h.Users.FindByGoogleEmailUnlinked(ctx, identity.Email)
	switch {
	case err == nil:
		if err := h.Users.LinkGoogle(ctx, user.ID, identity.Subject, identity.Email); err != nil {
			logger.Error("google account linking failed", "error", err, "userId", user.ID)
			respondInternalError(ctx, w)
			return
		}
		h.respondGoogleSession(w, r, user, true)
		return
	case !errors.Is(err, repositories.ErrNotFound):
		logger.Error("google email lookup failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	// First sign-in: create a provisional row that onboarding converts.
	expiresAt := h.now().Add(h.onboardingTTL())
	tempUsername := "temp_" + identity.Subject
	provisional, err := h.Users.CreateProvisional(ctx, identity.Subject, identity.Email, tempUsername, expiresAt)
	if err != nil {
		logger.Error("provisional account creation failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, googleAuthResponse{
		RequiresOnboarding: true,
		OnboardingSession: &onboardingSession{
			SessionID: strconv.FormatInt(provisional.ID, 10),
			ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		},
		GoogleUser: &googleUserInfo{
			Email:   identity.Email,
			Name:    identity.Name,
			Picture: identity.Picture,
		},
	})
}

// respondGoogleSession issues a full access+refresh session for an account
// that needs no onboarding.
func (h AuthHandler) respondGoogleSession(w http.ResponseWriter, r *http.Request, user models.User, linked bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accessToken, refreshToken, err := h.issueSession(r, user)
	if err != nil {
		logger.Error("failed to issue google session", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, user.ID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, googleAuthResponse{
		RequiresOnboarding: false,
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		AccountLinked:      linked,
		User: &userSummary{
			ID:              user.ID,
			Username:        user.Username,
			MeoMeoScore:     score,
			ThemePreference: user.ThemePreference,
		},
	})
}

// issueSession mints a refresh token, persists its stored form on the user
// row and signs a fresh access token.
func (h AuthHandler) issueSession(r *http.Request, user models.User) (string, string, error) {
	ctx := r.Context()

	refreshPlaintext, stored, err := h.Refresh.Mint()
	if err != nil {
		return "", "", fmt.Errorf("mint refresh token: %w", err)
	}
	err = h.Users.SetRefreshToken(ctx, user.ID, repositories.StoredRefreshToken{
		ID:         stored.ID,
		SecretHash: stored.SecretHash,
		ExpiresAt:  stored.ExpiresAt,
	})
	if err != nil {
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}

	accessToken, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		return "", "", fmt.Errorf("issue access token: %w", err)
	}
	return accessToken, refreshPlaintext, nil
}

type onboardingRequest struct {
	SessionID     string `json:"session_id"`
	Username      string `json:"username"`
	AvatarBgColor string `json:"avatar_bg_color"`
}

type onboardingUserSummary struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	AvatarBgColor   string `json:"avatar_bg_color"`
	MeoMeoScore     int    `json:"meomeo_score"`
	ThemePreference string `json:"theme_preference"`
}

type onboardingResponse struct {
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
	User         onboardingUserSummary `json:"user"`
}

// Onboarding handles POST /onboarding requests, converting a provisional
// Google account into an active one.
func (h AuthHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondError(ctx, w, http.StatusTooManyRequests, "Too many authentication attempts. Please try again later.")
		return
	}

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid onboarding payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SessionID == "" || req.Username == "" || req.AvatarBgColor == "" {
		respondError(ctx, w, http.StatusBadRequest, "Username and avatar background color are required")
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		respondError(ctx, w, http.StatusBadRequest, "Username must be 1-50 characters and contain only letters, numbers, and underscores")
		return
	}
	if !paletteContains(req.AvatarBgColor) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid color format. Must be a hex color (e.g., #FF5733)")
		return
	}

	userID, err := strconv.ParseInt(req.SessionID, 10, 64)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, "Invalid or expired onboarding session")
			return
		}
		logger.Error("onboarding session lookup failed", "error", err)
		respondInternalError(ctx, w)
		return
	}
	if user.GoogleID == "" || !user.Provisional() || h.now().After(*user.OnboardingExpiresAt) {
		respondError(ctx, w, http.StatusUnauthorized, "Invalid or expired onboarding session")
		return
	}

	taken, err := h.Users.UsernameTaken(ctx, req.Username, user.ID)
	if err != nil {
		logger.Error("username availability check failed", "error", err)
		respondInternalError(ctx, w)
		return
	}
	if taken {
		respondError(ctx, w, http.StatusConflict, "Username is already taken. Please choose another.")
		return
	}

	refreshPlaintext, stored, err := h.Refresh.Mint()
	if err != nil {
		logger.Error("failed to mint refresh token", "error", err)
		respondInternalError(ctx, w)
		return
	}

	completed, err := h.Users.CompleteOnboarding(ctx, user.ID, repositories.OnboardingCompletion{
		Username:      req.Username,
		AvatarBgColor: req.AvatarBgColor,
		RefreshToken: repositories.StoredRefreshToken{
			ID:         stored.ID,
			SecretHash: stored.SecretHash,
			ExpiresAt:  stored.ExpiresAt,
		},
	})
	if err != nil {
		// Lost the race against another onboarding picking the same name.
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, "Username is already taken. Please choose another.")
			return
		}
		logger.Error("onboarding completion failed", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	accessToken, err := h.Tokens.Issue(completed.ID, completed.Username)
	if err != nil {
		logger.Error("failed to issue access token", "error", err, "userId", completed.ID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, completed.ID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", completed.ID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, onboardingResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshPlaintext,
		User: onboardingUserSummary{
			ID:              completed.ID,
			Username:        completed.Username,
			AvatarBgColor:   completed.AvatarBgColor,
			MeoMeoScore:     score,
			ThemePreference: completed.ThemePreference,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// HandleRefresh handles POST /refresh requests, exchanging a refresh token
// for a fresh access token. The refresh token itself is not rotated.
func (h AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondError(ctx, w, http.StatusTooManyRequests, "Too many authentication attempts. Please try again later.")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		respondError(ctx, w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	user, err := h.Refresh.Redeem(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			respondError(ctx, w, http.StatusUnauthorized, "Refresh token has expired")
		case errors.Is(err, auth.ErrRefreshTokenInvalid):
			respondError(ctx, w, http.StatusUnauthorized, "Invalid refresh token")
		default:
			logger.Error("refresh redemption failed", "error", err)
			respondInternalError(ctx, w)
		}
		return
	}

	accessToken, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		logger.Error("failed to issue access token", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	resp := refreshResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(h.Tokens.TTL().Seconds()),
	}
	resp.User.ID = user.ID
	resp.User.Username = user.Username
	respondJSON(ctx, w, http.StatusOK, resp)
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func (h AuthHandler) onboardingTTL() time.Duration {
	if h.OnboardingTTL > 0 {
		return h.OnboardingTTL
	}
	return 24 * time.Hour
}
