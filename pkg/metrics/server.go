package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/httpserver"
)

// Serve exposes /metrics on its own port until ctx is cancelled, then shuts
// the listener down gracefully.
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	slog.Info("metrics server listening", "addr", server.Addr)
	return httpserver.ListenAndRun(ctx, server, 5*time.Second)
}
