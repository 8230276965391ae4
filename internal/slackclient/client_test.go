package slackclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestPostMessageReturnsTS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Fatalf("path mismatch: got %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Fatalf("auth header mismatch: got %q", got)
		}
		var req postMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ThreadTS != "111.000" {
			t.Fatalf("thread_ts mismatch: got %q", req.ThreadTS)
		}
		_ = json.NewEncoder(w).Encode(postMessageResponse{OK: true, TS: "222.000"})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	ts, err := c.PostMessage(context.Background(), "C1", "hello", "111.000")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if ts != "222.000" {
		t.Fatalf("ts mismatch: got %q want %q", ts, "222.000")
	}
}

func TestPostMessageRetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(postMessageResponse{OK: false, Error: "ratelimited"})
			return
		}
		_ = json.NewEncoder(w).Encode(postMessageResponse{OK: true, TS: "1.0"})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "xoxb-test", "")
	ts, err := c.PostMessage(context.Background(), "C1", "hello", "")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if ts != "1.0" {
		t.Fatalf("ts mismatch: got %q", ts)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("attempt count mismatch: got %d want 2", got)
	}
}

func TestUpdateMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.update" {
			t.Fatalf("path mismatch: got %q", r.URL.Path)
		}
		var req updateMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TS != "111.000" || req.Channel != "C1" {
			t.Fatalf("request mismatch: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(postMessageResponse{OK: true, TS: req.TS})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "xoxb-test", "")
	if err := c.UpdateMessage(context.Background(), "C1", "111.000", "edited"); err != nil {
		t.Fatalf("UpdateMessage() error = %v", err)
	}
}

func TestOpenConversation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.open" {
			t.Fatalf("path mismatch: got %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ok":true,"channel":{"id":"D42"}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "xoxb-test", "")
	id, err := c.OpenConversation(context.Background(), "U1")
	if err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}
	if id != "D42" {
		t.Fatalf("dm channel mismatch: got %q want %q", id, "D42")
	}
}

func TestOpenConversationAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"user_not_found"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "xoxb-test", "")
	if _, err := c.OpenConversation(context.Background(), "U1"); err == nil {
		t.Fatalf("expected error for ok=false response")
	}
}
