package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/meomeo/backend/internal/models"
)

func TestCommentCreate(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	commenter := env.store.addUser("whiskers")
	story := env.store.addStory(author.ID, "discuss", models.VisibilityPublic)
	env.scores.scores[author.ID] = 3

	rec := env.request(t, http.MethodPost, "/comments", env.tokenFor(commenter), createCommentRequest{
		StoryID: story.ID,
		Content: "  great story  ",
	})
	requireStatus(t, rec, http.StatusCreated)

	var resp createCommentResponse
	decodeBody(t, rec, &resp)

	if resp.Content != "great story" || resp.UserID != commenter.ID || resp.StoryID != story.ID {
		t.Fatalf("unexpected comment: %+v", resp.commentJSON)
	}
	if resp.CommentCount != 1 {
		t.Fatalf("expected count 1 got %d", resp.CommentCount)
	}
	// Engagement credit goes to the story author.
	if resp.DailyMeoMeoScore != 3 || resp.UpdatedUserID != author.ID {
		t.Fatalf("unexpected score fields: %+v", resp)
	}
}

func TestCommentCreateFailures(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	story := env.store.addStory(author.ID, "discuss", models.VisibilityPublic)
	token := env.tokenFor(author)

	cases := []struct {
		name    string
		body    createCommentRequest
		status  int
		message string
	}{
		{
			name:    "missing story id",
			body:    createCommentRequest{Content: "hello"},
			status:  http.StatusBadRequest,
			message: "story_id is required",
		},
		{
			name:    "empty content",
			body:    createCommentRequest{StoryID: story.ID, Content: "   "},
			status:  http.StatusBadRequest,
			message: "Content is required and cannot be empty",
		},
		{
			name:    "content too long",
			body:    createCommentRequest{StoryID: story.ID, Content: strings.Repeat("x", 2001)},
			status:  http.StatusBadRequest,
			message: "Content must be 2000 characters or less",
		},
		{
			name:    "missing story",
			body:    createCommentRequest{StoryID: 999, Content: "hello"},
			status:  http.StatusNotFound,
			message: "Story not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/comments", token, tc.body)
			requireErrorMessage(t, rec, tc.status, tc.message)
		})
	}

	rec := env.request(t, http.MethodPost, "/comments", "", createCommentRequest{StoryID: story.ID, Content: "hi"})
	requireErrorMessage(t, rec, http.StatusUnauthorized, "Authentication required")
}

func TestCommentList(t *testing.T) {
	env := newTestEnv(t)
	author := env.store.addUser("mittens")
	commenter := env.store.addUser("whiskers")
	story := env.store.addStory(author.ID, "discuss", models.VisibilityPublic)
	other := env.store.addStory(author.ID, "unrelated", models.VisibilityPublic)

	comments := memCommentStore{store: env.store}
	first, _ := comments.Create(context.Background(), commenter.ID, story.ID, "first")
	second, _ := comments.Create(context.Background(), author.ID, story.ID, "second")
	comments.Create(context.Background(), author.ID, other.ID, "elsewhere")

	// Comment listing is public.
	rec := env.request(t, http.MethodGet, fmt.Sprintf("/comments?story_id=%d", story.ID), "", nil)
	requireStatus(t, rec, http.StatusOK)

	var resp listCommentsResponse
	decodeBody(t, rec, &resp)

	if resp.Total != 2 || len(resp.Comments) != 2 {
		t.Fatalf("expected 2 comments got total=%d len=%d", resp.Total, len(resp.Comments))
	}
	if resp.Comments[0].ID != first.ID || resp.Comments[1].ID != second.ID {
		t.Fatalf("expected oldest-first ordering: %+v", resp.Comments)
	}
	if resp.Comments[0].Username != "whiskers" || resp.Comments[1].Username != "mittens" {
		t.Fatalf("expected commenter usernames: %+v", resp.Comments)
	}

	rec = env.request(t, http.MethodGet, "/comments", "", nil)
	requireErrorMessage(t, rec, http.StatusBadRequest, "story_id query parameter is required")
}
