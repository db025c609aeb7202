package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/middleware"
	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

const maxCommentLength = 2000

// CommentHandler implements the append-only comment surface.
type CommentHandler struct {
	Comments repositories.CommentRepository
	Stories  repositories.StoryRepository
	Scores   ScoreProvider
}

type createCommentRequest struct {
	StoryID int64  `json:"story_id"`
	Content string `json:"content"`
}

type commentJSON struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	StoryID   int64     `json:"story_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type commentWithAuthorJSON struct {
	commentJSON
	Username string `json:"username"`
}

type createCommentResponse struct {
	commentJSON
	CommentCount     int   `json:"commentCount"`
	DailyMeoMeoScore int   `json:"daily_meomeo_score"`
	UpdatedUserID    int64 `json:"updated_user_id"`
}

type listCommentsResponse struct {
	Comments []commentWithAuthorJSON `json:"comments"`
	Total    int                     `json:"total"`
}

func commentToJSON(c models.Comment) commentJSON {
	return commentJSON{
		ID:        c.ID,
		UserID:    c.UserID,
		StoryID:   c.StoryID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// Create handles POST /comments requests.
func (h CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid comment payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.StoryID <= 0 {
		respondError(ctx, w, http.StatusBadRequest, "story_id is required")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(ctx, w, http.StatusBadRequest, "Content is required and cannot be empty")
		return
	}
	if len(req.Content) > maxCommentLength {
		respondError(ctx, w, http.StatusBadRequest, "Content must be 2000 characters or less")
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

	comment, err := h.Comments.Create(ctx, identity.UserID, req.StoryID, content)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return
		}
		logger.Error("comment creation failed", "error", err, "storyId", req.StoryID)
		respondInternalError(ctx, w)
		return
	}

	count, err := h.Comments.CountForStory(ctx, req.StoryID)
	if err != nil {
		logger.Error("comment count failed", "error", err, "storyId", req.StoryID)
		respondInternalError(ctx, w)
		return
	}

	score, err := h.Scores.DailyScore(ctx, story.UserID)
	if err != nil {
		logger.Error("daily score computation failed", "error", err, "userId", story.UserID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, createCommentResponse{
		commentJSON:      commentToJSON(comment),
		CommentCount:     count,
		DailyMeoMeoScore: score,
		UpdatedUserID:    story.UserID,
	})
}

// List handles GET /comments?story_id= requests, oldest first.
func (h CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	storyID, ok := storyIDFromQuery(r)
	if !ok {
		respondError(ctx, w, http.StatusBadRequest, "story_id query parameter is required")
		return
	}

	comments, err := h.Comments.ListForStory(ctx, storyID)
	if err != nil {
		logger.Error("comments query failed", "error", err, "storyId", storyID)
		respondInternalError(ctx, w)
		return
	}

	out := make([]commentWithAuthorJSON, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentWithAuthorJSON{
			commentJSON: commentToJSON(c.Comment),
			Username:    c.Username,
		})
	}

	respondJSON(ctx, w, http.StatusOK, listCommentsResponse{Comments: out, Total: len(out)})
}
