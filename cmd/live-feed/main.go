// live-feed is the long-lived counterpart of the request/response functions:
// it holds the Firestore snapshot listeners open and relays every emission to
// dashboard clients over SSE. One watch per connected client; disconnecting
// releases the server-side watch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ecosignal/signaldesk/internal/gcp"
	"github.com/ecosignal/signaldesk/internal/models"
	"github.com/ecosignal/signaldesk/internal/services"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	ctx := context.Background()
	signalSvc, err := services.NewSignalService(ctx)
	if err != nil {
		slog.Error("Failed to initialize signal service", "error", err)
		os.Exit(1)
	}
	statsSvc, err := services.NewStatsService(ctx)
	if err != nil {
		slog.Error("Failed to initialize stats service", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/feed/signals", func(w http.ResponseWriter, r *http.Request) {
		serveFeed(w, r, func(ctx context.Context, emit func(interface{})) *services.Subscription {
			return signalSvc.WatchSignals(ctx, models.SignalFilters{
				Status:     r.URL.Query().Get("status"),
				Priority:   r.URL.Query().Get("priority"),
				AssignedTo: r.URL.Query().Get("assignedTo"),
			}, func(signals []models.Signal) { emit(signals) })
		})
	})
	mux.HandleFunc("/feed/stats", func(w http.ResponseWriter, r *http.Request) {
		serveFeed(w, r, func(ctx context.Context, emit func(interface{})) *services.Subscription {
			return statsSvc.WatchStats(ctx, func(stats models.SnapshotStats) { emit(stats) })
		})
	})

	addr := ":" + gcp.GetEnv("PORT", "8081")
	slog.Info("live-feed listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// serveFeed bridges one subscription onto an SSE response. Snapshots arriving
// faster than the client drains are dropped in favor of the newest; every
// emission is a complete snapshot so skipping loses nothing.
func serveFeed(w http.ResponseWriter, r *http.Request, subscribe func(context.Context, func(interface{})) *services.Subscription) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan []byte, 1)
	sub := subscribe(r.Context(), func(v interface{}) {
		b, err := json.Marshal(v)
		if err != nil {
			slog.Error("Failed to marshal feed snapshot", "error", err)
			return
		}
		for {
			select {
			case events <- b:
				return
			default:
				select {
				case <-events:
				default:
				}
			}
		}
	})
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case b := <-events:
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}
