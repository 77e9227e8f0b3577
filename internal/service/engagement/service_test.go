package engagement_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nestmatch/engine/internal/cache"
	"github.com/nestmatch/engine/internal/config"
	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/repository"
	"github.com/nestmatch/engine/internal/server"
	"github.com/nestmatch/engine/internal/service/engagement"
	"github.com/nestmatch/engine/internal/session"
	"github.com/nestmatch/engine/internal/stream"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(
		&db.Profile{}, &db.Preference{}, &db.Like{},
		&db.Match{}, &db.Message{}, &db.ConversationRead{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Engine.PageSize = 2
	cfg.Engine.DebounceWindow = 10 * time.Millisecond
	redisCache := cache.NewRedisCache(cfg)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := stream.NewRedisPublisher(redisCache.Client, log)

	profiles := repository.NewProfileRepository(database)
	likes := repository.NewLikeRepository(database, pub, log)
	matches := repository.NewMatchRepository(database, pub, log)
	messages := repository.NewMessageRepository(database, pub, log)
	swipes := repository.NewSwipeStore(likes, matches, log)
	sessions := session.NewManager(cfg, profiles, likes, matches, messages, swipes, redisCache, nil, log)
	t.Cleanup(sessions.CloseAll)

	seed := []db.Profile{
		{Role: db.RoleSeeker, DisplayName: "Sam", Email: "sam@x.io", PasswordHash: "h", Active: true},
		{Role: db.RoleOfferer, DisplayName: "Olive", Email: "olive@x.io", PasswordHash: "h", Budget: 800, Active: true},
		{Role: db.RoleOfferer, DisplayName: "Omar", Email: "omar@x.io", PasswordHash: "h", Budget: 950, Active: true},
		{Role: db.RoleOfferer, DisplayName: "Ona", Email: "ona@x.io", PasswordHash: "h", Budget: 700, Active: true},
	}
	for i := range seed {
		require.NoError(t, database.Create(&seed[i]).Error)
	}

	svc := engagement.NewService(cfg, profiles, sessions, log)
	srv := server.New(cfg, log, svc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, userID uint64, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &fields)
	}
	return resp, fields
}

func TestIdentityRequired(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doRequest(t, ts, http.MethodGet, "/v1/feed", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodPost, "/v1/session", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	ts := setupServer(t)

	resp, fields := doRequest(t, ts, http.MethodPost, "/v1/session", 1, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `"seeker"`, string(fields["role"]))

	resp, _ = doRequest(t, ts, http.MethodDelete, "/v1/session", 1, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// operations on a closed session are gone
	resp, _ = doRequest(t, ts, http.MethodGet, "/v1/counts", 1, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodDelete, "/v1/session", 1, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestSessionUnknownIdentity(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doRequest(t, ts, http.MethodPost, "/v1/session", 999, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedPaginationTokenRoundTrip(t *testing.T) {
	ts := setupServer(t)

	resp, fields := doRequest(t, ts, http.MethodGet, "/v1/feed", 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var candidates []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fields["candidates"], &candidates))
	assert.Len(t, candidates, 2, "page size 2")

	var token string
	require.NoError(t, json.Unmarshal(fields["next_token"], &token))
	require.NotEmpty(t, token)

	resp, fields = doRequest(t, ts, http.MethodGet, "/v1/feed?page_token="+token, 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(fields["candidates"], &candidates))
	assert.Len(t, candidates, 1, "second page has the remaining offerer")

	resp, _ = doRequest(t, ts, http.MethodGet, "/v1/feed?page_token=!!!", 1, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSwipeAndUndoFlow(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doRequest(t, ts, http.MethodPost, "/v1/session", 1, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, fields := doRequest(t, ts, http.MethodPost, "/v1/swipes", 1,
		map[string]string{"direction": "right"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `1`, string(fields["position"]))
	assert.Contains(t, string(fields["event"]), `"direction":"right"`)

	resp, fields = doRequest(t, ts, http.MethodPost, "/v1/swipes/undo", 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `0`, string(fields["position"]))

	// only the most recent swipe is undoable
	resp, _ = doRequest(t, ts, http.MethodPost, "/v1/swipes/undo", 1, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodPost, "/v1/swipes", 1,
		map[string]string{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCountsAndNotifications(t *testing.T) {
	ts := setupServer(t)

	resp, _ := doRequest(t, ts, http.MethodPost, "/v1/session", 2, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, fields := doRequest(t, ts, http.MethodGet, "/v1/counts", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `0`, string(fields["likes"]))

	resp, fields = doRequest(t, ts, http.MethodGet, "/v1/notifications", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `true`, string(fields["live"]))

	resp, _ = doRequest(t, ts, http.MethodPost, "/v1/notifications/nope/read", 2, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
