package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/middleware"
	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

const maxStoryLength = 5000

// StoryHandler implements story creation, feeds and owner-only mutations.
type StoryHandler struct {
	Stories repositories.StoryRepository
	Scores  ScoreProvider
}

type storyJSON struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	Archived   bool      `json:"archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type feedItemJSON struct {
	storyJSON
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url"`
	AvatarBgColor string `json:"avatar_bg_color"`
	LikeCount     int    `json:"like_count"`
	CommentCount  int    `json:"comment_count"`
}

func storyToJSON(s models.Story) storyJSON {
	return storyJSON{
		ID:         s.ID,
		UserID:     s.UserID,
		Content:    s.Content,
		Visibility: s.Visibility,
		Archived:   s.Archived,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func feedItemToJSON(item models.StoryFeedItem) feedItemJSON {
	return feedItemJSON{
		storyJSON:     storyToJSON(item.Story),
		Username:      item.Username,
		DisplayName:   item.DisplayName,
		AvatarURL:     item.AvatarURL,
		AvatarBgColor: item.AvatarBgColor,
		LikeCount:     item.LikeCount,
		CommentCount:  item.CommentCount,
	}
}

func feedItemsToJSON(items []models.StoryFeedItem) []feedItemJSON {
	out := make([]feedItemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, feedItemToJSON(item))
	}
	return out
}

type createStoryRequest struct {
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

type createStoryResponse struct {
	storyJSON
	MeoMeoScore      int   `json:"meomeo_score"`
	DailyMeoMeoScore int   `json:"daily_meomeo_score"`
	UpdatedUserID    int64 `json:"updated_user_id"`
}

// Create handles POST /stories requests.
func (h StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid story payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(ctx, w, http.StatusBadRequest, "Content is required and cannot be empty")
		return
	}
	if len(req.Content) > maxStoryLength {
		respondError(ctx, w, http.StatusBadRequest, "Content must be 5000 characters or less")
		return
	}
	if req.Visibility != models.VisibilityPublic && req.Visibility != models.VisibilityPrivate {
		respondError(ctx, w, http.StatusBadRequest, `Visibility must be "public" or "private"`)
		return
	}

	story, err := h.Stories.Create(ctx, identity.UserID, content, req.Visibility)
	if err != nil {
		logger.Error("story creation failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, identity.UserID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, createStoryResponse{
		storyJSON:        storyToJSON(story),
		MeoMeoScore:      score,
		DailyMeoMeoScore: score,
		UpdatedUserID:    identity.UserID,
	})
}

type publicFeedResponse struct {
	Stories []feedItemJSON `json:"stories"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// PublicFeed handles GET /stories requests: non-archived public stories,
// newest first, with pagination metadata.
func (h StoryHandler) PublicFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	limit := parseQueryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 1
	}
	offset := parseQueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	stories, err := h.Stories.PublicFeed(ctx, limit, offset)
	if err != nil {
		logger.Error("public feed query failed", "error", err)
		respondInternalError(ctx, w)
		return
	}
	total, err := h.Stories.CountPublic(ctx)
	if err != nil {
		logger.Error("public feed count failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, publicFeedResponse{
		Stories: feedItemsToJSON(stories),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// Get handles GET /stories/{id} requests. Private stories are only visible
// to their owner; everyone else gets a 403.
func (h StoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	storyID, ok := storyIDFromPath(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	item, err := h.Stories.GetDetail(ctx, storyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return
		}
		logger.Error("story lookup failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	if item.Visibility == models.VisibilityPrivate {
		identity, authed := middleware.IdentityFromContext(ctx)
		if !authed || identity.UserID != item.UserID {
			respondError(ctx, w, http.StatusForbidden, "Access denied")
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, feedItemToJSON(item))
}

type userStoriesResponse struct {
	Stories []feedItemJSON `json:"stories"`
}

// Mine handles GET /stories/me requests: the caller's stories across both
// visibilities, archived included.
func (h StoryHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	stories, err := h.Stories.ListByUser(ctx, identity.UserID)
	if err != nil {
		logger.Error("user stories query failed", "error", err, "userId", identity.UserID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, userStoriesResponse{Stories: feedItemsToJSON(stories)})
}

type updateStoryRequest struct {
	Visibility string `json:"visibility"`
}

// UpdateVisibility handles PUT /stories/{id} requests.
func (h StoryHandler) UpdateVisibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	storyID, ok := storyIDFromPath(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	var req updateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid story update payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Visibility != models.VisibilityPublic && req.Visibility != models.VisibilityPrivate {
		respondError(ctx, w, http.StatusBadRequest, `Visibility must be "public" or "private"`)
		return
	}

	if !h.requireOwnership(w, r, storyID) {
		return
	}

	if err := h.Stories.UpdateVisibility(ctx, storyID, req.Visibility); err != nil {
		logger.Error("story visibility update failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Story updated successfully"})
}

// Archive handles PUT /stories/{id}/archive requests.
func (h StoryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	storyID, ok := storyIDFromPath(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	if !h.requireOwnership(w, r, storyID) {
		return
	}

	if err := h.Stories.Archive(ctx, storyID); err != nil {
		logger.Error("story archive failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Story archived successfully"})
}

// Delete handles DELETE /stories/{id} requests. Likes, comments and share
// links on the story cascade away with it.
func (h StoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	storyID, ok := storyIDFromPath(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	if !h.requireOwnership(w, r, storyID) {
		return
	}

	if err := h.Stories.Delete(ctx, storyID); err != nil {
		logger.Error("story deletion failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Story deleted successfully"})
}

// requireOwnership checks that the story exists and belongs to the caller,
// writing the 404/403 itself when not. Existence is checked first so an
// outsider probing another user's story learns it exists but no more.
func (h StoryHandler) requireOwnership(w http.ResponseWriter, r *http.Request, storyID int64) bool {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return false
	}

	story, err := h.Stories.Get(ctx, storyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return false
		}
		logger.Error("story lookup failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return false
	}
	if story.UserID != identity.UserID {
		respondError(ctx, w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

func storyIDFromPath(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseQueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
