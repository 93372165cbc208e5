package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sergeknystautas/hgrun/internal/events"
	"github.com/sergeknystautas/hgrun/internal/notify"
)

func TestURLFor(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:7338": "http://127.0.0.1:7338",
		":7338":          "http://127.0.0.1:7338",
		"localhost:9000": "http://localhost:9000",
	}
	for listen, want := range tests {
		if got := URLFor(listen); got != want {
			t.Errorf("URLFor(%q) = %q, want %q", listen, got, want)
		}
	}
}

func TestNewEventsClient(t *testing.T) {
	client := NewEventsClient("http://example.com:8080/")

	if client.baseURL != "http://example.com:8080" {
		t.Errorf("baseURL = %q, want trailing slash dropped", client.baseURL)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", client.httpClient.Timeout)
	}
}

func TestClient_IsRunning(t *testing.T) {
	t.Run("returns true when healthz returns 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/healthz" {
				t.Errorf("path = %q, want /healthz", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		if !NewEventsClient(server.URL).IsRunning() {
			t.Error("expected true")
		}
	})

	t.Run("returns false when healthz returns non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		if NewEventsClient(server.URL).IsRunning() {
			t.Error("expected false")
		}
	})

	t.Run("returns false when server is not reachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		if NewEventsClient(url).IsRunning() {
			t.Error("expected false")
		}
	})
}

func TestClient_History(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expected := []HistoryItem{
		{ID: "a", Repo: "/repo", Subcommand: "status", Args: []string{"status"}, StartedAt: started},
		{ID: "b", Repo: "/repo", Subcommand: "pull", ExitCode: 255, ErrorKind: "authentication failed", StartedAt: started},
	}

	t.Run("returns items on success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/history" {
				t.Errorf("path = %q, want /history", r.URL.Path)
			}
			if got := r.URL.Query().Get("repo"); got != "/repo" {
				t.Errorf("repo = %q, want /repo", got)
			}
			if got := r.URL.Query().Get("limit"); got != "2" {
				t.Errorf("limit = %q, want 2", got)
			}
			json.NewEncoder(w).Encode(expected)
		}))
		defer server.Close()

		items, err := NewEventsClient(server.URL).History(context.Background(), "/repo", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("len = %d, want 2", len(items))
		}
		if items[1].ErrorKind != "authentication failed" {
			t.Errorf("ErrorKind = %q", items[1].ErrorKind)
		}
		if !items[0].StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", items[0].StartedAt, started)
		}
	})

	t.Run("omits empty query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				t.Errorf("query = %q, want empty", r.URL.RawQuery)
			}
			w.Write([]byte("[]"))
		}))
		defer server.Close()

		if _, err := NewEventsClient(server.URL).History(context.Background(), "", 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("returns error on non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"history disabled"}`))
		}))
		defer server.Close()

		if _, err := NewEventsClient(server.URL).History(context.Background(), "", 0); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("returns error on invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("invalid json"))
		}))
		defer server.Close()

		if _, err := NewEventsClient(server.URL).History(context.Background(), "", 0); err == nil {
			t.Error("expected error")
		}
	})
}

func TestClient_Follow(t *testing.T) {
	b := notify.NewBroadcaster(8)
	server := httptest.NewServer(events.New(b, nil, nil).Router())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- NewEventsClient(server.URL).Follow(ctx, "/repo", func(ev Event) { got <- ev })
	}()

	deadline := time.Now().Add(5 * time.Second)
	for b.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.WorkingCopyChanged("/other")
	b.WorkingCopyChanged("/repo")

	select {
	case ev := <-got:
		if ev.Repo != "/repo" {
			t.Errorf("Repo = %q, want /repo", ev.Repo)
		}
		if ev.Type != notify.TypeWorkingCopyChanged {
			t.Errorf("Type = %q", ev.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
