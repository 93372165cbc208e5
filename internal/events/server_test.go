package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeknystautas/hgrun/internal/history"
	"github.com/sergeknystautas/hgrun/internal/notify"
)

type fakeHistory struct {
	entries []history.Entry
	err     error
	repo    string
	limit   int
}

func (f *fakeHistory) Recent(ctx context.Context, repo string, n int) ([]history.Entry, error) {
	f.repo, f.limit = repo, n
	return f.entries, f.err
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEvents_StreamsNotifications(t *testing.T) {
	b := notify.NewBroadcaster(8)
	ts := httptest.NewServer(New(b, nil, nil).Router())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.WorkingCopyChanged("/repo")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.TypeWorkingCopyChanged, ev.Type)
	assert.Equal(t, "/repo", ev.Repo)
	assert.NotEmpty(t, ev.ID)
}

func TestEvents_RepoFilter(t *testing.T) {
	b := notify.NewBroadcaster(8)
	ts := httptest.NewServer(New(b, nil, nil).Router())
	defer ts.Close()

	conn := dial(t, ts, "?repo=/wanted")
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.WorkingCopyChanged("/other")
	b.WorkingCopyChanged("/wanted")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "/wanted", ev.Repo)
}

func TestEvents_UnsubscribesOnDisconnect(t *testing.T) {
	b := notify.NewBroadcaster(8)
	ts := httptest.NewServer(New(b, nil, nil).Router())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	b := notify.NewBroadcaster(8)
	ts := httptest.NewServer(New(b, nil, nil).Router())
	defer ts.Close()

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:7338", true},
		{"http://127.0.0.1:3000", true},
		{"http://[::1]:3000", true},
		{"https://example.com", false},
		{"::bad", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/events", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, localOrigin(r), tt.origin)
	}
}

func TestHealth(t *testing.T) {
	b := notify.NewBroadcaster(1)
	rec := httptest.NewRecorder()
	New(b, nil, nil).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["subscribers"])
}

func TestHistory(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := &fakeHistory{entries: []history.Entry{
		{ID: "1", Repo: "/r", Subcommand: "pull", Args: []string{"pull", "https://hg.example.com/x"}, ExitCode: 0, Duration: 2 * time.Second, StartedAt: started},
	}}
	router := New(notify.NewBroadcaster(1), h, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?repo=/r&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/r", h.repo)
	assert.Equal(t, 5, h.limit)

	var items []historyItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "pull", items[0].Subcommand)
	assert.Equal(t, int64(2000), items[0].DurationMs)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.err = errors.New("db closed")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 50, h.limit)
}

func TestHistory_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	New(notify.NewBroadcaster(1), nil, nil).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(notify.NewBroadcaster(1), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
