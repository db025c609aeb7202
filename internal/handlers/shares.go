package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/repositories"
)

// ShareHandler implements link-based story sharing. Any authenticated user
// can mint a link for an existing story; resolving the token is public so a
// recipient without an account can follow it.
type ShareHandler struct {
	Shares  repositories.ShareRepository
	Stories repositories.StoryRepository
	TTL     time.Duration
	NowFunc func() time.Time
}

type createShareRequest struct {
	StoryID int64 `json:"story_id"`
}

type createShareResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type resolveShareResponse struct {
	StoryID    int64  `json:"story_id"`
	Visibility string `json:"visibility"`
}

// Create handles POST /shares requests.
func (h ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid share payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StoryID <= 0 {
		respondError(ctx, w, http.StatusBadRequest, "story_id is required")
		return
	}

	if _, err := h.Stories.Get(ctx, req.StoryID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return
		}
		logger.Error("story lookup failed", "error", err, "storyId", req.StoryID)
		respondInternalError(ctx, w)
		return
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logger.Error("share token generation failed", "error", err)
		respondInternalError(ctx, w)
		return
	}
	token := hex.EncodeToString(buf)
	expiresAt := h.now().Add(h.ttl())

	share, err := h.Shares.Create(ctx, req.StoryID, token, expiresAt)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Story not found")
			return
		}
		logger.Error("share creation failed", "error", err, "storyId", req.StoryID)
		respondInternalError(ctx, w)
		return
	}

	respondJSON(ctx, w, http.StatusOK, createShareResponse{
		Token:     share.Token,
		ExpiresAt: share.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /shares/{token} requests. A link resolves any number
// of times until its expiry, after which it is Gone.
func (h ShareHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(ctx, w, http.StatusBadRequest, "Share token is required")
		return
	}

	resolution, err := h.Shares.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Share link not found")
			return
		}
		logger.Error("share resolution failed", "error", err)
		respondInternalError(ctx, w)
		return
	}

	if h.now().After(resolution.ExpiresAt) {
		respondError(ctx, w, http.StatusGone, "Share link has expired")
		return
	}

	respondJSON(ctx, w, http.StatusOK, resolveShareResponse{
		StoryID:    resolution.StoryID,
		Visibility: resolution.Visibility,
	})
}

func (h ShareHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func (h ShareHandler) ttl() time.Duration {
	if h.TTL > 0 {
		return h.TTL
	}
	return 30 * 24 * time.Hour
}
