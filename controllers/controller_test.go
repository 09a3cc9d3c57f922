package controller_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"econsensus/config"
	"econsensus/models"
	"econsensus/routes"
	"econsensus/service"
	"econsensus/testutil"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiFixture struct {
	app    *fiber.App
	db     *gorm.DB
	sender *testutil.RecordingSender

	alice, bob, mallory *models.User
	org                 *models.Organization
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := testutil.NewDB(t)
	config.AppConfig.RateLimitWrites = 1000
	config.AppConfig.Redis.Enabled = false

	f := &apiFixture{db: db, sender: &testutil.RecordingSender{}}
	hub := utils.NewActivityHub()
	services := service.New(service.Options{
		DB:               db,
		Notifier:         testutil.NewNotifier(db, f.sender),
		Activity:         hub,
		DefaultFromEmail: testutil.DefaultFromEmail,
		Logger:           testutil.Logger(),
	})

	f.app = fiber.New()
	routes.SetupRoutes(f.app, db, services, hub)

	f.alice = testutil.CreateUser(t, db, "alice")
	f.bob = testutil.CreateUser(t, db, "bob")
	f.mallory = testutil.CreateUser(t, db, "mallory")
	f.org = testutil.CreateOrganization(t, db, "acme", f.alice, f.bob)
	return f
}

func token(t *testing.T, user *models.User) string {
	t.Helper()
	tok, err := utils.GenerateJWTToken(user)
	require.NoError(t, err)
	return tok
}

// call sends a JSON request and returns the status with the decoded body
func (f *apiFixture) call(t *testing.T, method, path, tok string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    T      `json:"data"`
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuthFlow(t *testing.T) {
	f := newAPIFixture(t)

	var registered struct {
		AccessToken string      `json:"access_token"`
		User        models.User `json:"user"`
	}
	status := f.call(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "dana",
		"email":    "Dana@Example.org",
		"password": "correct horse",
	}, &registered)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "dana@example.org", registered.User.Email)
	assert.NotEmpty(t, registered.AccessToken)

	t.Run("duplicate username", func(t *testing.T) {
		status := f.call(t, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "dana", "email": "other@example.org", "password": "correct horse",
		}, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("invalid payload", func(t *testing.T) {
		status := f.call(t, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "erin", "email": "not-an-email", "password": "short",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("wrong password", func(t *testing.T) {
		status := f.call(t, http.MethodPost, "/auth/login", "", map[string]string{
			"username": "dana", "password": "battery staple",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	var me models.User
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/auth/me", registered.AccessToken, nil, &me))
	assert.Equal(t, "dana", me.Username)

	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/auth/logout", registered.AccessToken, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, "/auth/me", registered.AccessToken, nil, nil))

	var loggedIn struct {
		AccessToken string `json:"access_token"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "dana", "password": "correct horse",
	}, &loggedIn))
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/auth/me", loggedIn.AccessToken, nil, nil))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	path := fmt.Sprintf("/api/v1/organizations/%d/decisions", f.org.ID)

	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, path, "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, path, "garbage", nil, nil))

	testutil.Deactivate(t, f.db, f.bob)
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, path, token(t, f.bob), nil, nil))
}

func TestDecisionEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, f.alice)
	listPath := fmt.Sprintf("/api/v1/organizations/%d/decisions", f.org.ID)

	var created envelope[models.Decision]
	status := f.call(t, http.MethodPost, listPath, alice, map[string]interface{}{
		"description": "<p>Buy a <b>kettle</b> for the office</p>",
		"status":      "discussion",
		"deadline":    "2026-11-01",
		"tags":        "kitchen   office",
	}, &created)
	require.Equal(t, http.StatusCreated, status, created.Error)
	assert.Equal(t, "Buy a kettle for the office", created.Data.Excerpt)
	assert.Equal(t, models.DiscussionStatus, created.Data.Status)
	require.NotNil(t, created.Data.Deadline)
	assert.Equal(t, "2026-11-01", created.Data.Deadline.Format(utils.DateLayout))
	require.NotNil(t, created.Data.Tags)
	assert.Equal(t, "kitchen office", *created.Data.Tags)

	var second envelope[models.Decision]
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, listPath, alice, map[string]interface{}{
		"description": "Adopt a four day week",
	}, &second))
	assert.Equal(t, models.ProposalStatus, second.Data.Status)

	t.Run("missing description", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, listPath, alice, map[string]interface{}{"status": "proposal"}, nil))
	})

	t.Run("invalid status", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, listPath, alice, map[string]interface{}{
			"description": "x", "status": "maybe",
		}, nil))
	})

	t.Run("list filters by status", func(t *testing.T) {
		var all envelope[[]models.Decision]
		require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, listPath, alice, nil, &all))
		assert.Len(t, all.Data, 2)

		var discussion envelope[[]models.Decision]
		require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, listPath+"?status=discussion", alice, nil, &discussion))
		require.Len(t, discussion.Data, 1)
		assert.Equal(t, created.Data.ID, discussion.Data[0].ID)

		assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodGet, listPath+"?status=bogus", alice, nil, nil))
		assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodGet, listPath+"?sort=password", alice, nil, nil))
	})

	t.Run("list sorts by id", func(t *testing.T) {
		var sorted envelope[[]models.Decision]
		require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, listPath+"?sort=-id", alice, nil, &sorted))
		require.Len(t, sorted.Data, 2)
		assert.Equal(t, second.Data.ID, sorted.Data[0].ID)
	})

	t.Run("non members are rejected", func(t *testing.T) {
		mallory := token(t, f.mallory)
		assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, listPath, mallory, nil, nil))
		assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, fmt.Sprintf("/api/v1/decisions/%d", created.Data.ID), mallory, nil, nil))
		assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, listPath, mallory, map[string]interface{}{"description": "x"}, nil))
	})

	t.Run("update records last status", func(t *testing.T) {
		var updated envelope[models.Decision]
		status := f.call(t, http.MethodPut, fmt.Sprintf("/api/v1/decisions/%d", created.Data.ID), token(t, f.bob), map[string]interface{}{
			"status": "decision",
		}, &updated)
		require.Equal(t, http.StatusOK, status, updated.Error)
		assert.Equal(t, models.DecisionStatus, updated.Data.Status)
		assert.Equal(t, models.DiscussionStatus, updated.Data.LastStatus)
		require.NotNil(t, updated.Data.EditorID)
		assert.Equal(t, f.bob.ID, *updated.Data.EditorID)
	})

	t.Run("detail includes summary and watching", func(t *testing.T) {
		var detail envelope[struct {
			ID                 uint             `json:"ID"`
			FeedbackCount      int64            `json:"feedback_count"`
			FeedbackStatistics map[string]int64 `json:"feedback_statistics"`
			Watching           bool             `json:"watching"`
			TagList            []string         `json:"tag_list"`
		}]
		require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, fmt.Sprintf("/api/v1/decisions/%d", created.Data.ID), alice, nil, &detail))
		assert.Equal(t, created.Data.ID, detail.Data.ID)
		assert.True(t, detail.Data.Watching)
		assert.Equal(t, []string{"kitchen", "office"}, detail.Data.TagList)
		assert.Zero(t, detail.Data.FeedbackCount)
		assert.Contains(t, detail.Data.FeedbackStatistics, "danger")
	})

	t.Run("unwatch", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/decisions/%d/watch", created.Data.ID)
		require.Equal(t, http.StatusOK, f.call(t, http.MethodDelete, path, alice, nil, nil))
		watching, err := models.IsWatching(f.db, &created.Data, f.alice.ID)
		require.NoError(t, err)
		assert.False(t, watching)
	})

	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodGet, "/api/v1/decisions/9999", alice, nil, nil))
}

func TestFeedbackAndCommentEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	alice, bob := token(t, f.alice), token(t, f.bob)

	var decision envelope[models.Decision]
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost,
		fmt.Sprintf("/api/v1/organizations/%d/decisions", f.org.ID), alice,
		map[string]interface{}{"description": "Buy a kettle"}, &decision))

	feedbackPath := fmt.Sprintf("/api/v1/decisions/%d/feedback", decision.Data.ID)

	var fb envelope[struct {
		ID          uint   `json:"ID"`
		Rating      int    `json:"rating"`
		RatingLabel string `json:"rating_label"`
		AuthorName  string `json:"author_name"`
	}]
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, feedbackPath, bob, map[string]interface{}{
		"description": "Which kettle?",
		"rating":      models.QuestionRating,
	}, &fb))
	assert.Equal(t, "question", fb.Data.RatingLabel)
	assert.Equal(t, "bob", fb.Data.AuthorName)

	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, feedbackPath, alice, map[string]interface{}{
		"description": "Looks good",
	}, nil))

	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, feedbackPath, alice, map[string]interface{}{
		"description": "??", "rating": 9,
	}, nil))

	var questions envelope[[]json.RawMessage]
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, feedbackPath+"?rating=question", alice, nil, &questions))
	assert.Len(t, questions.Data, 1)

	commentsPath := fmt.Sprintf("/api/v1/feedback/%d/comments", fb.Data.ID)
	var comment envelope[models.Comment]
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, commentsPath, alice, map[string]interface{}{
		"comment": "The blue one",
	}, &comment))
	assert.Equal(t, "The blue one", comment.Data.Comment)

	t.Run("only the commenter edits", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/comments/%d", comment.Data.ID)
		assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPut, path, bob, map[string]interface{}{"comment": "hijack"}, nil))
		assert.Equal(t, http.StatusOK, f.call(t, http.MethodPut, path, alice, map[string]interface{}{"comment": "The red one"}, nil))
	})

	var comments envelope[[]models.Comment]
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, commentsPath, bob, nil, &comments))
	require.Len(t, comments.Data, 1)
	assert.Equal(t, "The red one", comments.Data[0].Comment)

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, commentsPath, token(t, f.mallory), nil, nil))
}

func TestNotificationSettingsEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, f.alice)
	path := fmt.Sprintf("/api/v1/organizations/%d/notification-settings", f.org.ID)

	type settings struct {
		NotificationLevel int  `json:"notification_level"`
		Inherited         bool `json:"inherited"`
	}

	var before envelope[settings]
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, path, alice, nil, &before))
	assert.Equal(t, models.MainItemsNotificationsOnly, before.Data.NotificationLevel)
	assert.True(t, before.Data.Inherited)

	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPut, path, alice, map[string]int{"level": 7}, nil))
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, path, alice, map[string]int{"level": models.NoNotifications}, nil))

	var after envelope[settings]
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, path, alice, nil, &after))
	assert.Equal(t, models.NoNotifications, after.Data.NotificationLevel)
	assert.False(t, after.Data.Inherited)

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, path, token(t, f.mallory), nil, nil))
}

func TestNoticesEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, f.alice)

	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost,
		fmt.Sprintf("/api/v1/organizations/%d/decisions", f.org.ID), alice,
		map[string]interface{}{"description": "Buy a kettle"}, nil))

	var notices struct {
		Data  []models.Notice `json:"data"`
		Total int64           `json:"total"`
	}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/notices?unseen=true", token(t, f.bob), nil, &notices))
	require.Equal(t, int64(1), notices.Total)

	path := fmt.Sprintf("/api/v1/notices/%d/seen", notices.Data[0].ID)
	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPut, path, alice, nil, nil))
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, path, token(t, f.bob), nil, nil))

	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/notices?unseen=true", token(t, f.bob), nil, &notices))
	assert.Zero(t, notices.Total)
}

func TestOrganizationEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	mallory := token(t, f.mallory)

	var org envelope[models.Organization]
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, "/api/v1/organizations", mallory, map[string]string{
		"name": "Mallory Inc", "slug": "Mallory-Inc",
	}, &org))
	assert.Equal(t, "mallory-inc", org.Data.Slug)

	assert.Equal(t, http.StatusConflict, f.call(t, http.MethodPost, "/api/v1/organizations", mallory, map[string]string{
		"name": "Again", "slug": "mallory-inc",
	}, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, "/api/v1/organizations", mallory, map[string]string{
		"name": "Bad", "slug": "no spaces",
	}, nil))

	membersPath := fmt.Sprintf("/api/v1/organizations/%d/members", org.Data.ID)
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPost, membersPath, token(t, f.alice), map[string]string{"username": "alice"}, nil))
	require.Equal(t, http.StatusCreated, f.call(t, http.MethodPost, membersPath, mallory, map[string]string{"username": "alice"}, nil))
	assert.Equal(t, http.StatusConflict, f.call(t, http.MethodPost, membersPath, mallory, map[string]string{"username": "alice"}, nil))

	var orgs envelope[[]models.Organization]
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/v1/organizations", token(t, f.alice), nil, &orgs))
	assert.Len(t, orgs.Data, 2)

	settingsPath := fmt.Sprintf("/api/v1/organizations/%d/settings", org.Data.ID)
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodPut, settingsPath, token(t, f.alice), map[string]int{"level": 2}, nil))
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, settingsPath, mallory, map[string]int{"level": 2}, nil))

	level, err := models.EffectiveNotificationLevel(f.db, f.alice.ID, org.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
}

func TestPostByEmailSettingsEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.db.Model(f.alice).Update("is_admin", true).Error)
	admin := token(t, f.alice)
	path := "/api/v1/settings/post-by-email"

	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, path, token(t, f.bob), nil, nil))

	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, path, admin, map[string]interface{}{
		"username":    "acme",
		"password":    "s3cret",
		"server":      "imap.example.org",
		"port":        993,
		"ssl_enabled": true,
	}, nil))

	// omitting the password keeps the stored one
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPut, path, admin, map[string]interface{}{
		"username": "acme", "server": "imap.example.org", "port": 993, "ssl_enabled": true,
	}, nil))

	var got envelope[struct {
		Values      utils.PostByEmailSettings `json:"values"`
		PasswordSet bool                      `json:"password_set"`
	}]
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, path, admin, nil, &got))
	assert.True(t, got.Data.PasswordSet)
	assert.Empty(t, got.Data.Values.Password)
	assert.Equal(t, "imap.example.org", got.Data.Values.Server)

	stored, err := utils.LoadPostByEmail(f.db)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", stored.Password)

	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPut, path, admin, map[string]interface{}{
		"server": "not a host!", "port": 70000,
	}, nil))
}
