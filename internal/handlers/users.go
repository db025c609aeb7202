package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/middleware"
	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

var (
	hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	validThemes     = []string{"default", "orange-cat", "gray-cat", "calico-cat"}
)

const maxAvatarBytes = 5 << 20

// UserHandler implements the leaderboard, profile reads and profile edits.
type UserHandler struct {
	Users   repositories.UserRepository
	Scores  ScoreProvider
	Avatars AvatarStore
}

type leaderboardEntry struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	AvatarURL        string `json:"avatar_url"`
	AvatarBgColor    string `json:"avatar_bg_color"`
	DailyMeoMeoScore int    `json:"daily_meomeo_score"`
}

type listUsersResponse struct {
	Users []leaderboardEntry `json:"users"`
}

// List handles GET /users requests. Scores are recomputed per user and the
// list is sorted here rather than in SQL, since the daily score never lives
// authoritatively in a sortable column.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	sortBy := r.URL.Query().Get("sort")
	if sortBy == "" {
		sortBy = "meomeo_score"
	}
	order := r.URL.Query().Get("order")
	if order == "" {
		order = "desc"
	}
	if sortBy != "meomeo_score" && sortBy != "username" {
		respondError(ctx, w, http.StatusBadRequest, "Invalid sort field")
		return
	}
	if order != "asc" && order != "desc" {
		respondError(ctx, w, http.StatusBadRequest, "Invalid order")
		return
	}

	users, err := h.Users.List(ctx)
	if err != nil {
		logger.Error("user list query failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	entries := make([]leaderboardEntry, 0, len(users))
	for _, user := range users {
		score, err := h.Scores.DailyScore(ctx, user.ID)
		if err != nil {
			logger.Error("daily score computation failed", "error", err, "userId", user.ID)
			respondInternalError(ctx, w)
			return
		}
		entries = append(entries, leaderboardEntry{
			ID:               user.ID,
			Username:         user.Username,
			DisplayName:      displayNameOrUsername(user),
			AvatarURL:        user.AvatarURL,
			AvatarBgColor:    user.AvatarBgColor,
			DailyMeoMeoScore: score,
		})
	}

	// The repository returns username-ascending order, which doubles as the
	// tie-break when sorting by score.
	switch sortBy {
	case "meomeo_score":
		sort.SliceStable(entries, func(i, j int) bool {
			if order == "desc" {
				return entries[i].DailyMeoMeoScore > entries[j].DailyMeoMeoScore
			}
			return entries[i].DailyMeoMeoScore < entries[j].DailyMeoMeoScore
		})
	case "username":
		if order == "desc" {
			for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	respondJSON(ctx, w, http.StatusOK, listUsersResponse{Users: entries})
}

type userProfileResponse struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	AvatarURL        string `json:"avatar_url"`
	AvatarBgColor    string `json:"avatar_bg_color"`
	ThemePreference  string `json:"theme_preference"`
	DailyMeoMeoScore int    `json:"daily_meomeo_score"`
}

// Get handles GET /users/{id} requests.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := userIDFromPath(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "User not found")
			return
		}
		logger.Error("user lookup failed", "error", err, "userId", userID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, user.ID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", user.ID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, userProfileResponse{
		ID:               user.ID,
		Username:         user.Username,
		DisplayName:      displayNameOrUsername(user),
		AvatarURL:        user.AvatarURL,
		AvatarBgColor:    user.AvatarBgColor,
		ThemePreference:  user.ThemePreference,
		DailyMeoMeoScore: score,
	})
}

// DailyScore handles GET /users/{id}/daily-score requests.
func (h UserHandler) DailyScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := userIDFromPath(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	score, err := h.Scores.DailyScore(ctx, userID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", userID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]int{"daily_meomeo_score": score})
}

type updateProfileRequest struct {
	AvatarURL     *string `json:"avatar_url"`
	DisplayName   *string `json:"display_name"`
	AvatarBgColor *string `json:"avatar_bg_color"`
}

type updatedProfileResponse struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url"`
	AvatarBgColor string `json:"avatar_bg_color"`
}

// UpdateProfile handles PUT /users/me requests. Absent fields stay untouched.
func (h UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.AvatarURL == nil && req.DisplayName == nil && req.AvatarBgColor == nil {
		respondError(ctx, w, http.StatusBadRequest, "No fields to update")
		return
	}
	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		if trimmed == "" {
			respondError(ctx, w, http.StatusBadRequest, "Display name cannot be empty")
			return
		}
		if len(trimmed) > 50 {
			respondError(ctx, w, http.StatusBadRequest, "Display name must be 50 characters or less")
			return
		}
		req.DisplayName = &trimmed
	}
	if req.AvatarBgColor != nil && !hexColorPattern.MatchString(*req.AvatarBgColor) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid color format. Must be a hex color (e.g., #FF5733)")
		return
	}

	user, err := h.Users.UpdateProfile(ctx, identity.UserID, repositories.ProfileUpdate{
		AvatarURL:     req.AvatarURL,
		DisplayName:   req.DisplayName,
		AvatarBgColor: req.AvatarBgColor,
	})
	if err != nil {
		logger.Error("profile update failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, updatedProfileResponse{
		ID:            user.ID,
		Username:      user.Username,
		DisplayName:   displayNameOrUsername(user),
		AvatarURL:     user.AvatarURL,
		AvatarBgColor: user.AvatarBgColor,
	})
}

type updateThemeRequest struct {
	Theme string `json:"theme"`
}

// UpdateTheme handles PUT /users/me/theme requests.
func (h UserHandler) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req updateThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid theme payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	valid := false
	for _, theme := range validThemes {
		if req.Theme == theme {
			valid = true
			break
		}
	}
	if !valid {
		respondError(ctx, w, http.StatusBadRequest,
			fmt.Sprintf("Invalid theme. Must be one of: %s", strings.Join(validThemes, ", ")))
		return
	}

	user, err := h.Users.UpdateTheme(ctx, identity.UserID, req.Theme)
	if err != nil {
		logger.Error("theme update failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"id":               user.ID,
		"username":         user.Username,
		"theme_preference": user.ThemePreference,
	})
}

// UploadAvatar handles POST /users/me/avatar requests: a multipart upload
// stored in the object store, with the resulting URL saved on the profile.
func (h UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if h.Avatars == nil {
		respondError(ctx, w, http.StatusInternalServerError, "Avatar storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		logger.Warn("invalid avatar upload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "An avatar image file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondError(ctx, w, http.StatusBadRequest, "Avatar must be an image")
		return
	}

	key := fmt.Sprintf("avatars/%d/%s%s", identity.UserID, uuid.NewString(), filepath.Ext(header.Filename))
	url, err := h.Avatars.Upload(ctx, key, contentType, file)
	if err != nil {
		logger.Error("avatar upload failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	user, err := h.Users.UpdateProfile(ctx, identity.UserID, repositories.ProfileUpdate{AvatarURL: &url})
	if err != nil {
		logger.Error("avatar url update failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, updatedProfileResponse{
		ID:            user.ID,
		Username:      user.Username,
		DisplayName:   displayNameOrUsername(user),
		AvatarURL:     user.AvatarURL,
		AvatarBgColor: user.AvatarBgColor,
	})
}

type checkUsernameResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// CheckUsername handles GET /users/check-username?username= requests. The
// check is case-insensitive, matching the uniqueness rule enforced at
// onboarding.
func (h UserHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if !usernamePattern.MatchString(username) {
		respondError(ctx, w, http.StatusBadRequest, "Username must be 1-50 characters and contain only letters, numbers, and underscores")
		return
	}

	taken, err := h.Users.UsernameTaken(ctx, username, 0)
	if err != nil {
		logger.Error("username availability check failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, checkUsernameResponse{
		Username:  username,
		Available: !taken,
	})
}

func displayNameOrUsername(user models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}

func userIDFromPath(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
