package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/meomeo/backend/internal/auth"
	"github.com/meomeo/backend/internal/models"
	"github.com/meomeo/backend/internal/repositories"
)

// memStore is an in-memory stand-in for every repository, shared by the
// handler tests so a single fixture can express multi-entity scenarios.
type memStore struct {
	users    map[int64]models.User
	stories  map[int64]models.Story
	likes    map[string]bool // "<userID>:<storyID>"
	comments map[int64]models.Comment
	shares   map[string]models.Share

	nextUserID    int64
	nextStoryID   int64
	nextCommentID int64
	nextShareID   int64

	now time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]models.User),
		stories:  make(map[int64]models.Story),
		likes:    make(map[string]bool),
		comments: make(map[int64]models.Comment),
		shares:   make(map[string]models.Share),
		now:      time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) addUser(username string) models.User {
	s.nextUserID++
	user := models.User{
		ID:              s.nextUserID,
		Username:        username,
		PasswordHash:    "hash:password123",
		AvatarBgColor:   "#1a1a1a",
		ThemePreference: "default",
		CreatedAt:       s.now,
		UpdatedAt:       s.now,
	}
	s.users[user.ID] = user
	return user
}

func (s *memStore) addStory(userID int64, content, visibility string) models.Story {
	s.nextStoryID++
	story := models.Story{
		ID:         s.nextStoryID,
		UserID:     userID,
		Content:    content,
		Visibility: visibility,
		CreatedAt:  s.now.Add(time.Duration(s.nextStoryID) * time.Minute),
		UpdatedAt:  s.now,
	}
	s.stories[story.ID] = story
	return story
}

func likeKey(userID, storyID int64) string {
	return fmt.Sprintf("%d:%d", userID, storyID)
}

// UserRepository

func (s *memStore) FindByID(_ context.Context, id int64) (models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *memStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	for _, user := range s.users {
		if strings.EqualFold(user.Username, username) {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *memStore) FindByGoogleID(_ context.Context, googleID string) (models.User, error) {
	for _, user := range s.users {
		if user.GoogleID == googleID {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *memStore) FindByGoogleEmailUnlinked(_ context.Context, email string) (models.User, error) {
	for _, user := range s.users {
		if user.GoogleEmail == email && user.GoogleID == "" {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *memStore) FindByRefreshTokenID(_ context.Context, tokenID string) (models.User, error) {
	for _, user := range s.users {
		if user.RefreshTokenID == tokenID {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *memStore) CreateProvisional(_ context.Context, googleID, googleEmail, tempUsername string, onboardingExpiresAt time.Time) (models.User, error) {
	for _, user := range s.users {
		if user.GoogleID == googleID {
			return models.User{}, repositories.ErrConflict
		}
	}
	s.nextUserID++
	expires := onboardingExpiresAt
	user := models.User{
		ID:                  s.nextUserID,
		Username:            tempUsername,
		GoogleID:            googleID,
		GoogleEmail:         googleEmail,
		AvatarBgColor:       "#1a1a1a",
		ThemePreference:     "default",
		OnboardingExpiresAt: &expires,
		CreatedAt:           s.now,
		UpdatedAt:           s.now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *memStore) LinkGoogle(_ context.Context, userID int64, googleID, googleEmail string) error {
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.GoogleID = googleID
	user.GoogleEmail = googleEmail
	s.users[userID] = user
	return nil
}

func (s *memStore) SetRefreshToken(_ context.Context, userID int64, token repositories.StoredRefreshToken) error {
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	expires := token.ExpiresAt
	user.RefreshTokenID = token.ID
	user.RefreshTokenHash = token.SecretHash
	user.RefreshTokenExpiresAt = &expires
	s.users[userID] = user
	return nil
}

func (s *memStore) CompleteOnboarding(_ context.Context, userID int64, completion repositories.OnboardingCompletion) (models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	for id, other := range s.users {
		if id != userID && strings.EqualFold(other.Username, completion.Username) {
			return models.User{}, repositories.ErrConflict
		}
	}
	expires := completion.RefreshToken.ExpiresAt
	user.Username = completion.Username
	user.AvatarBgColor = completion.AvatarBgColor
	user.OnboardingExpiresAt = nil
	user.RefreshTokenID = completion.RefreshToken.ID
	user.RefreshTokenHash = completion.RefreshToken.SecretHash
	user.RefreshTokenExpiresAt = &expires
	s.users[userID] = user
	return user, nil
}

func (s *memStore) UsernameTaken(_ context.Context, username string, excludeID int64) (bool, error) {
	for id, user := range s.users {
		if id != excludeID && strings.EqualFold(user.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) UpdateProfile(_ context.Context, userID int64, update repositories.ProfileUpdate) (models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	if update.AvatarURL != nil {
		user.AvatarURL = *update.AvatarURL
	}
	if update.DisplayName != nil {
		user.DisplayName = *update.DisplayName
	}
	if update.AvatarBgColor != nil {
		user.AvatarBgColor = *update.AvatarBgColor
	}
	s.users[userID] = user
	return user, nil
}

func (s *memStore) UpdateTheme(_ context.Context, userID int64, theme string) (models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	user.ThemePreference = theme
	s.users[userID] = user
	return user, nil
}

func (s *memStore) List(_ context.Context) ([]models.User, error) {
	var out []models.User
	for _, user := range s.users {
		if !user.Provisional() {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// StoryRepository

func (s *memStore) Create(_ context.Context, userID int64, content, visibility string) (models.Story, error) {
	return s.addStory(userID, content, visibility), nil
}

func (s *memStore) Get(_ context.Context, id int64) (models.Story, error) {
	story, ok := s.stories[id]
	if !ok {
		return models.Story{}, repositories.ErrNotFound
	}
	return story, nil
}

func (s *memStore) feedItem(story models.Story) models.StoryFeedItem {
	author := s.users[story.UserID]
	displayName := author.DisplayName
	if displayName == "" {
		displayName = author.Username
	}
	likeCount := 0
	for key, liked := range s.likes {
		if liked && strings.HasSuffix(key, ":"+strconv.FormatInt(story.ID, 10)) {
			likeCount++
		}
	}
	commentCount := 0
	for _, comment := range s.comments {
		if comment.StoryID == story.ID {
			commentCount++
		}
	}
	return models.StoryFeedItem{
		Story:         story,
		Username:      author.Username,
		DisplayName:   displayName,
		AvatarURL:     author.AvatarURL,
		AvatarBgColor: author.AvatarBgColor,
		LikeCount:     likeCount,
		CommentCount:  commentCount,
	}
}

func (s *memStore) GetDetail(_ context.Context, id int64) (models.StoryFeedItem, error) {
	story, ok := s.stories[id]
	if !ok {
		return models.StoryFeedItem{}, repositories.ErrNotFound
	}
	return s.feedItem(story), nil
}

func (s *memStore) publicStories() []models.Story {
	var out []models.Story
	for _, story := range s.stories {
		if story.Visibility == models.VisibilityPublic && !story.Archived {
			out = append(out, story)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memStore) PublicFeed(_ context.Context, limit, offset int) ([]models.StoryFeedItem, error) {
	stories := s.publicStories()
	if offset >= len(stories) {
		return nil, nil
	}
	stories = stories[offset:]
	if limit < len(stories) {
		stories = stories[:limit]
	}
	out := make([]models.StoryFeedItem, 0, len(stories))
	for _, story := range stories {
		out = append(out, s.feedItem(story))
	}
	return out, nil
}

func (s *memStore) CountPublic(_ context.Context) (int, error) {
	return len(s.publicStories()), nil
}

func (s *memStore) ListByUser(_ context.Context, userID int64) ([]models.StoryFeedItem, error) {
	var stories []models.Story
	for _, story := range s.stories {
		if story.UserID == userID {
			stories = append(stories, story)
		}
	}
	sort.Slice(stories, func(i, j int) bool { return stories[i].CreatedAt.After(stories[j].CreatedAt) })
	out := make([]models.StoryFeedItem, 0, len(stories))
	for _, story := range stories {
		out = append(out, s.feedItem(story))
	}
	return out, nil
}

func (s *memStore) UpdateVisibility(_ context.Context, id int64, visibility string) error {
	story, ok := s.stories[id]
	if !ok {
		return repositories.ErrNotFound
	}
	story.Visibility = visibility
	s.stories[id] = story
	return nil
}

func (s *memStore) Archive(_ context.Context, id int64) error {
	story, ok := s.stories[id]
	if !ok {
		return repositories.ErrNotFound
	}
	story.Archived = true
	s.stories[id] = story
	return nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.stories[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.stories, id)
	return nil
}

// LikeRepository

func (s *memStore) Like(_ context.Context, userID, storyID int64) error {
	if _, ok := s.stories[storyID]; !ok {
		return repositories.ErrNotFound
	}
	key := likeKey(userID, storyID)
	if s.likes[key] {
		return repositories.ErrConflict
	}
	s.likes[key] = true
	return nil
}

func (s *memStore) Unlike(_ context.Context, userID, storyID int64) error {
	delete(s.likes, likeKey(userID, storyID))
	return nil
}

func (s *memStore) IsLiked(_ context.Context, userID, storyID int64) (bool, error) {
	return s.likes[likeKey(userID, storyID)], nil
}

func (s *memStore) CountForStory(_ context.Context, storyID int64) (int, error) {
	count := 0
	suffix := ":" + strconv.FormatInt(storyID, 10)
	for key, liked := range s.likes {
		if liked && strings.HasSuffix(key, suffix) {
			count++
		}
	}
	return count, nil
}

// memCommentStore wraps memStore because CommentRepository and LikeRepository
// both declare CountForStory.
type memCommentStore struct {
	store *memStore
}

func (c memCommentStore) Create(_ context.Context, userID, storyID int64, content string) (models.Comment, error) {
	if _, ok := c.store.stories[storyID]; !ok {
		return models.Comment{}, repositories.ErrNotFound
	}
	c.store.nextCommentID++
	comment := models.Comment{
		ID:        c.store.nextCommentID,
		UserID:    userID,
		StoryID:   storyID,
		Content:   content,
		CreatedAt: c.store.now.Add(time.Duration(c.store.nextCommentID) * time.Second),
		UpdatedAt: c.store.now,
	}
	c.store.comments[comment.ID] = comment
	return comment, nil
}

func (c memCommentStore) ListForStory(_ context.Context, storyID int64) ([]models.CommentWithAuthor, error) {
	var out []models.CommentWithAuthor
	for _, comment := range c.store.comments {
		if comment.StoryID != storyID {
			continue
		}
		out = append(out, models.CommentWithAuthor{
			Comment:  comment,
			Username: c.store.users[comment.UserID].Username,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c memCommentStore) CountForStory(_ context.Context, storyID int64) (int, error) {
	count := 0
	for _, comment := range c.store.comments {
		if comment.StoryID == storyID {
			count++
		}
	}
	return count, nil
}

// ShareRepository

type memShareStore struct {
	store *memStore
}

func (s memShareStore) Create(_ context.Context, storyID int64, token string, expiresAt time.Time) (models.Share, error) {
	if _, ok := s.store.stories[storyID]; !ok {
		return models.Share{}, repositories.ErrNotFound
	}
	if _, ok := s.store.shares[token]; ok {
		return models.Share{}, repositories.ErrConflict
	}
	s.store.nextShareID++
	share := models.Share{
		ID:        s.store.nextShareID,
		StoryID:   storyID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: s.store.now,
	}
	s.store.shares[token] = share
	return share, nil
}

func (s memShareStore) Resolve(_ context.Context, token string) (repositories.ShareResolution, error) {
	share, ok := s.store.shares[token]
	if !ok {
		return repositories.ShareResolution{}, repositories.ErrNotFound
	}
	story, ok := s.store.stories[share.StoryID]
	if !ok {
		return repositories.ShareResolution{}, repositories.ErrNotFound
	}
	return repositories.ShareResolution{
		StoryID:    share.StoryID,
		Visibility: story.Visibility,
		ExpiresAt:  share.ExpiresAt,
	}, nil
}

// Auth collaborators

type fakeTokens struct{}

func (fakeTokens) Issue(userID int64, username string) (string, error) {
	return fmt.Sprintf("access:%d:%s", userID, username), nil
}

func (fakeTokens) TTL() time.Duration { return time.Hour }

func (fakeTokens) Verify(token string) (auth.Identity, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] != "access" {
		return auth.Identity{}, auth.ErrTokenInvalid
	}
	if parts[2] == "expired" {
		return auth.Identity{}, auth.ErrTokenExpired
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return auth.Identity{}, auth.ErrTokenInvalid
	}
	return auth.Identity{UserID: userID, Username: parts[2]}, nil
}

type fakeRefresh struct {
	store    *memStore
	mintSeq  int
	redeemed map[string]int64
}

func (f *fakeRefresh) Mint() (string, auth.StoredRefreshToken, error) {
	f.mintSeq++
	id := fmt.Sprintf("rt-%d", f.mintSeq)
	stored := auth.StoredRefreshToken{
		ID:         id,
		SecretHash: "hash:" + id,
		ExpiresAt:  time.Now().UTC().Add(30 * 24 * time.Hour),
	}
	return id + ".secret", stored, nil
}

func (f *fakeRefresh) Redeem(_ context.Context, plaintext string) (models.User, error) {
	id, _, ok := strings.Cut(plaintext, ".")
	if !ok {
		return models.User{}, auth.ErrRefreshTokenInvalid
	}
	for _, user := range f.store.users {
		if user.RefreshTokenID == id {
			if user.RefreshTokenExpiresAt != nil && time.Now().UTC().After(*user.RefreshTokenExpiresAt) {
				return models.User{}, auth.ErrRefreshTokenExpired
			}
			return user, nil
		}
	}
	return models.User{}, auth.ErrRefreshTokenInvalid
}

type plainPasswords struct{}

// Verify treats "hash:<plaintext>" as the stored form.
func (plainPasswords) Verify(hash, plaintext string) bool {
	return hash == "hash:"+plaintext
}

type fakeScores struct {
	scores map[int64]int
	err    error
}

func (f *fakeScores) DailyScore(_ context.Context, userID int64) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[userID], nil
}

type fakeGoogle struct {
	identities map[string]auth.GoogleIdentity
}

func (f *fakeGoogle) VerifyIDToken(_ context.Context, raw string) (auth.GoogleIdentity, error) {
	identity, ok := f.identities[raw]
	if !ok {
		return auth.GoogleIdentity{}, auth.ErrIdentityTokenInvalid
	}
	if identity.Email == "" {
		return auth.GoogleIdentity{}, auth.ErrIdentityMissingEmail
	}
	return identity, nil
}

type fakeAvatars struct {
	keys         []string
	contentTypes []string
}

func (f *fakeAvatars) Upload(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.contentTypes = append(f.contentTypes, contentType)
	return "https://cdn.example.com/" + key, nil
}

type staticLimiter struct {
	allow bool
}

func (l staticLimiter) Allow(string) bool { return l.allow }

// testEnv wires the fakes into a full router the way the server does.
type testEnv struct {
	store   *memStore
	scores  *fakeScores
	google  *fakeGoogle
	refresh *fakeRefresh
	limiter *staticLimiter
	avatars *fakeAvatars
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	scores := &fakeScores{scores: make(map[int64]int)}
	google := &fakeGoogle{identities: make(map[string]auth.GoogleIdentity)}
	refresh := &fakeRefresh{store: store}
	limiter := &staticLimiter{allow: true}
	avatars := &fakeAvatars{}

	deps := Dependencies{
		Users:         store,
		Stories:       store,
		Likes:         store,
		Comments:      memCommentStore{store: store},
		Shares:        memShareStore{store: store},
		Scores:        scores,
		Tokens:        fakeTokens{},
		Verifier:      fakeTokens{},
		Refresh:       refresh,
		Google:        google,
		Passwords:     plainPasswords{},
		Avatars:       avatars,
		AuthLimiter:   limiter,
		OnboardingTTL: 24 * time.Hour,
		ShareTokenTTL: 30 * 24 * time.Hour,
	}

	return &testEnv{
		store:   store,
		scores:  scores,
		google:  google,
		refresh: refresh,
		limiter: limiter,
		avatars: avatars,
		router:  NewRouter(deps),
	}
}

func (e *testEnv) tokenFor(user models.User) string {
	return fmt.Sprintf("access:%d:%s", user.ID, user.Username)
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func requireErrorMessage(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	requireStatus(t, rec, status)

	var resp models.ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Message != message {
		t.Fatalf("expected message %q got %q", message, resp.Message)
	}
	if resp.StatusCode != status {
		t.Fatalf("expected statusCode %d got %d", status, resp.StatusCode)
	}
}
