// Package healthcheck runs the optional liveness HTTP listener.
package healthcheck

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// NormalizeListen turns a configured listen value into a net listen
// address. Empty (or "off") disables the listener; a bare port gets a
// leading colon.
func NormalizeListen(addr string) string {
	addr = strings.TrimSpace(addr)
	switch strings.ToLower(addr) {
	case "", "off", "disabled", "false", "0":
		return ""
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}

// StartServer serves GET /healthz on addr in the background and
// returns the server for shutdown. The component name is echoed in the
// response body and the start log line.
func StartServer(ctx context.Context, logger *slog.Logger, addr, component string) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok " + component + "\n"))
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	// Reflect the bound address so callers see the real port when addr
	// asked for an ephemeral one.
	server.Addr = listener.Addr().String()
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Warn("health_server_error", "component", component, "addr", addr, "error", err.Error())
		}
	}()
	logger.Info("health_server_started", "component", component, "addr", server.Addr)
	return server, nil
}
