package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/meomeo/backend/internal/models"
)

func TestShareCreateAndResolve(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	story := env.store.addStory(author.ID, "shared", models.VisibilityPrivate)

	rec := env.request(t, http.MethodPost, "/shares", env.tokenFor(author), createShareRequest{StoryID: story.ID})
	requireStatus(t, rec, http.StatusOK)

	var created createShareResponse
	decodeBody(t, rec, &created)

	if len(created.Token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(created.Token), created.Token)
	}
	expires, err := time.Parse(time.RFC3339, created.ExpiresAt)
	if err != nil {
		t.Fatalf("expected RFC3339 expiry, got %q", created.ExpiresAt)
	}
	if until := time.Until(expires); until < 29*24*time.Hour || until > 31*24*time.Hour {
		t.Fatalf("expected ~30 day expiry, got %s", until)
	}

	// Resolution is public and repeatable; private visibility is reported
	// so the client can render the appropriate view.
	for i := 0; i < 2; i++ {
		rec = env.request(t, http.MethodGet, "/shares/"+created.Token, "", nil)
		requireStatus(t, rec, http.StatusOK)

		var resolved resolveShareResponse
		decodeBody(t, rec, &resolved)
		if resolved.StoryID != story.ID || resolved.Visibility != models.VisibilityPrivate {
			t.Fatalf("unexpected resolution: %+v", resolved)
		}
	}
}

func TestShareCreateFailures(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	story := env.store.addStory(author.ID, "shared", models.VisibilityPublic)

	rec := env.request(t, http.MethodPost, "/shares", env.tokenFor(author), createShareRequest{StoryID: 999})
	requireErrorMessage(t, rec, http.StatusNotFound, "Story not found")

	rec = env.request(t, http.MethodPost, "/shares", env.tokenFor(author), createShareRequest{})
	requireErrorMessage(t, rec, http.StatusBadRequest, "story_id is required")

	rec = env.request(t, http.MethodPost, "/shares", "", createShareRequest{StoryID: story.ID})
	requireErrorMessage(t, rec, http.StatusUnauthorized, "Authentication required")
}

func TestShareResolveExpired(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	story := env.store.addStory(author.ID, "shared", models.VisibilityPublic)

	env.store.shares["expiredtoken"] = models.Share{
		ID:        1,
		StoryID:   story.ID,
		Token:     "expiredtoken",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}

	rec := env.request(t, http.MethodGet, "/shares/expiredtoken", "", nil)
	requireErrorMessage(t, rec, http.StatusGone, "Share link has expired")

	rec = env.request(t, http.MethodGet, "/shares/unknowntoken", "", nil)
	requireErrorMessage(t, rec, http.StatusNotFound, "Share link not found")
}
