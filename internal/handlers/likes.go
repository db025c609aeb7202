package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/middleware"
	"github.com/meomeo/backend/internal/repositories"
)

// LikeHandler implements liking, unliking and like-status lookups.
type LikeHandler struct {
	Likes   repositories.LikeRepository
	Stories repositories.StoryRepository
	Scores  ScoreProvider
}

type likeRequest struct {
	StoryID int64 `json:"story_id"`
}

type likeMutationResponse struct {
	IsLiked          bool  `json:"isLiked"`
	LikeCount        int   `json:"likeCount"`
	DailyMeoMeoScore int   `json:"daily_meomeo_score"`
	UpdatedUserID    int64 `json:"updated_user_id"`
}

type likeStatusResponse struct {
	IsLiked   bool `json:"isLiked"`
	LikeCount int  `json:"likeCount"`
}

// Like handles POST /likes requests. The unique (user, story) constraint in
// storage is the duplicate check, so concurrent double-likes cannot slip
// through.
func (h LikeHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req likeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid like payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StoryID <= 0 {
		respondError(ctx, w, http.StatusBadRequest, "story_id is required")
		return
	}

	story, err := h.Stories.Get(ctx, req.StoryID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return
		}
		logger.Error("story lookup failed", "error", err, "storyId", req.StoryID)
		respondInternalError(ctx, w)
		return
	}

	if err := h.Likes.Like(ctx, identity.UserID, req.StoryID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			respondError(ctx, w, http.StatusBadRequest, "Story already liked")
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "Story not found")
		default:
			logger.Error("like insert failed", "error", err, "storyId", req.StoryID)
			respondInternalError(ctx, w)
		}
		return
	}

	h.respondMutation(w, r, story.UserID, req.StoryID, true)
}

// Unlike handles DELETE /likes?story_id= requests. Removing an absent like
// succeeds quietly.
func (h LikeHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	storyID, ok := storyIDFromQuery(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "story_id query parameter is required")
		return
	}

	story, err := h.Stories.Get(ctx, storyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return
		}
		logger.Error("story lookup failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	if err := h.Likes.Unlike(ctx, identity.UserID, storyID); err != nil {
		logger.Error("like removal failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	h.respondMutation(w, r, story.UserID, storyID, false)
}

// Status handles GET /likes?story_id= requests.
func (h LikeHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	storyID, ok := storyIDFromQuery(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "story_id query parameter is required")
		return
	}

	liked, err := h.Likes.IsLiked(ctx, identity.UserID, storyID)
	if err != nil {
		logger.Error("like status lookup failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}
	count, err := h.Likes.CountForStory(ctx, storyID)
	if err != nil {
		logger.Error("like count failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, likeStatusResponse{IsLiked: liked, LikeCount: count})
}

// respondMutation reports the post-mutation like count along with the story
// author's recomputed daily score.
func (h LikeHandler) respondMutation(w http.ResponseWriter, r *http.Request, authorID, storyID int64, liked bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	count, err := h.Likes.CountForStory(ctx, storyID)
	if err != nil {
		logger.Error("like count failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, authorID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", authorID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, likeMutationResponse{
		IsLiked:          liked,
		LikeCount:        count,
		DailyMeoMeoScore: score,
		UpdatedUserID:    authorID,
	})
}

func storyIDFromQuery(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("story_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
