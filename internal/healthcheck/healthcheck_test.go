package healthcheck

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNormalizeListen(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"off", ""},
		{"disabled", ""},
		{"8080", ":8080"},
		{":8080", ":8080"},
		{"127.0.0.1:9090", "127.0.0.1:9090"},
	}
	for _, tc := range cases {
		if got := NormalizeListen(tc.in); got != tc.want {
			t.Fatalf("NormalizeListen(%q) mismatch: got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestStartServerServesHealthz(t *testing.T) {
	t.Parallel()

	server, err := StartServer(context.Background(), nil, "127.0.0.1:0", "bot")
	if err != nil {
		t.Fatalf("StartServer() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	resp, err := http.Get("http://" + server.Addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status mismatch: got %d want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok bot") {
		t.Fatalf("body mismatch: %q", string(body))
	}
}
