package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/meomeo/backend/internal/models"
)

func TestLikeAndUnlike(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	fan := env.store.addUser("whiskers")
	story := env.store.addStory(author.ID, "like me", models.VisibilityPublic)
	env.scores.scores[author.ID] = 2

	rec := env.request(t, http.MethodPost, "/likes", env.tokenFor(fan), likeRequest{StoryID: story.ID})
	requireStatus(t, rec, http.StatusOK)

	var resp likeMutationResponse
	decodeBody(t, rec, &resp)

	if !resp.IsLiked || resp.LikeCount != 1 {
		t.Fatalf("unexpected like state: %+v", resp)
	}
	// The score fields refer to the story author, not the liker.
	if resp.DailyMeoMeoScore != 2 || resp.UpdatedUserID != author.ID {
		t.Fatalf("unexpected score fields: %+v", resp)
	}

	rec = env.request(t, http.MethodDelete, fmt.Sprintf("/likes?story_id=%d", story.ID), env.tokenFor(fan), nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &resp)
	if resp.IsLiked || resp.LikeCount != 0 {
		t.Fatalf("unexpected state after unlike: %+v", resp)
	}

	// Unliking an already-unliked story is quiet.
	rec = env.request(t, http.MethodDelete, fmt.Sprintf("/likes?story_id=%d", story.ID), env.tokenFor(fan), nil)
	requireStatus(t, rec, http.StatusOK)
}

func TestLikeFailures(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	fan := env.store.addUser("whiskers")
	story := env.store.addStory(author.ID, "like me", models.VisibilityPublic)
	token := env.tokenFor(fan)

	rec := env.request(t, http.MethodPost, "/likes", token, likeRequest{StoryID: 999})
	requireErrorMessage(t, rec, http.StatusNotFound, "Story not found")

	rec = env.request(t, http.MethodPost, "/likes", token, likeRequest{})
	requireErrorMessage(t, rec, http.StatusBadRequest, "story_id is required")

	rec = env.request(t, http.MethodPost, "/likes", token, likeRequest{StoryID: story.ID})
	requireStatus(t, rec, http.StatusOK)

	rec = env.request(t, http.MethodPost, "/likes", token, likeRequest{StoryID: story.ID})
	requireErrorMessage(t, rec, http.StatusBadRequest, "Story already liked")

	rec = env.request(t, http.MethodPost, "/likes", "", likeRequest{StoryID: story.ID})
	requireErrorMessage(t, rec, http.StatusUnauthorized, "Authentication required")
}

func TestLikeStatus(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	fan := env.store.addUser("whiskers")
	story := env.store.addStory(author.ID, "like me", models.VisibilityPublic)

	env.store.likes[likeKey(author.ID, story.ID)] = true
	env.store.likes[likeKey(fan.ID, story.ID)] = true

	rec := env.request(t, http.MethodGet, fmt.Sprintf("/likes?story_id=%d", story.ID), env.tokenFor(fan), nil)
	requireStatus(t, rec, http.StatusOK)

	var resp likeStatusResponse
	decodeBody(t, rec, &resp)
	if !resp.IsLiked || resp.LikeCount != 2 {
		t.Fatalf("unexpected status: %+v", resp)
	}

	// The status view is caller-specific.
	third := env.store.addUser("shadow")
	rec = env.request(t, http.MethodGet, fmt.Sprintf("/likes?story_id=%d", story.ID), env.tokenFor(third), nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &resp)
	if resp.IsLiked || resp.LikeCount != 2 {
		t.Fatalf("unexpected status for non-liker: %+v", resp)
	}

	rec = env.request(t, http.MethodGet, "/likes", env.tokenFor(fan), nil)
	requireErrorMessage(t, rec, http.StatusBadRequest, "story_id query parameter is required")

	rec = env.request(t, http.MethodGet, fmt.Sprintf("/likes?story_id=%d", story.ID), "", nil)
	requireErrorMessage(t, rec, http.StatusUnauthorized, "Authentication required")
}
