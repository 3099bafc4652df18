package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/ecosignal/signaldesk/internal/services"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	statsSvc *services.StatsService
	once     sync.Once
	initErr  error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	functions.HTTP("StatsReporter", handleStatsReporter)
}

// main is required by the Go Functions Framework.
func main() {}

// handleStatsReporter serves the aggregation views:
// GET ?view=snapshot | trends | top | dashboard (&days=, &limit=)
func handleStatsReporter(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		statsSvc, initErr = services.NewStatsService(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logCtx := slog.With("requestId", uuid.NewString())

	q := r.URL.Query()
	days, err := parseCount(q.Get("days"))
	if err != nil {
		http.Error(w, "Bad Request: invalid days", http.StatusBadRequest)
		return
	}
	limit, err := parseCount(q.Get("limit"))
	if err != nil {
		http.Error(w, "Bad Request: invalid limit", http.StatusBadRequest)
		return
	}
	view := q.Get("view")
	if view == "" {
		view = "dashboard"
	}

	var payload interface{}
	switch view {
	case "snapshot":
		payload, err = statsSvc.SnapshotStats(r.Context())
	case "trends":
		payload, err = statsSvc.Trends(r.Context(), days)
	case "top":
		payload, err = statsSvc.TopReporters(r.Context(), limit)
	case "dashboard":
		payload, err = statsSvc.Dashboard(r.Context(), days, limit)
	default:
		http.Error(w, "Bad Request: unknown view", http.StatusBadRequest)
		return
	}
	if err != nil {
		logCtx.Error("Failed to compute stats view", "view", view, "error", err)
		http.Error(w, "failed to compute stats", errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logCtx.Error("Failed to write response", "error", err)
	}
}

// parseCount reads an optional positive integer query value; empty means
// "use the service default".
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("want a positive integer")
	}
	return n, nil
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConnectivity):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
