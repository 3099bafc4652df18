package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/ecosignal/signaldesk/internal/models"
	"github.com/ecosignal/signaldesk/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	collectorSvc *services.CollectorService
	adminSvc     *services.AdminService
	once         sync.Once
	initErr      error

	validate = validator.New()
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	functions.HTTP("CollectorRoster", handleCollectorRoster)
}

// main is required by the Go Functions Framework.
func main() {}

// handleCollectorRoster manages the collector roster:
// GET            list roster
// POST {email}   add a collector (admin only)
// DELETE ?id=    remove a collector (admin only)
func handleCollectorRoster(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		collectorSvc, initErr = services.NewCollectorService(context.Background())
		if initErr == nil {
			adminSvc, initErr = services.NewAdminService(context.Background())
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	logCtx := slog.With("requestId", uuid.NewString())

	switch r.Method {
	case http.MethodGet:
		collectors, err := collectorSvc.ListCollectors(r.Context())
		if err != nil {
			logCtx.Error("Failed to list collectors", "error", err)
			http.Error(w, "failed to list collectors", errStatus(err))
			return
		}
		writeJSON(w, collectors)

	case http.MethodPost:
		if !requireAdmin(w, r, logCtx) {
			return
		}
		var req models.CollectorAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		id, err := collectorSvc.AddCollector(r.Context(), req.Email)
		if err != nil {
			logCtx.Error("Failed to add collector", "email", req.Email, "error", err)
			http.Error(w, "failed to add collector", errStatus(err))
			return
		}
		logCtx.Info("Collector added", "collectorId", id)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": id})

	case http.MethodDelete:
		if !requireAdmin(w, r, logCtx) {
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Bad Request: missing id", http.StatusBadRequest)
			return
		}
		if err := collectorSvc.RemoveCollector(r.Context(), id); err != nil {
			logCtx.Error("Failed to remove collector", "collectorId", id, "error", err)
			http.Error(w, "failed to remove collector", errStatus(err))
			return
		}
		logCtx.Info("Collector removed", "collectorId", id)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func requireAdmin(w http.ResponseWriter, r *http.Request, logCtx *slog.Logger) bool {
	email := r.Header.Get("X-Admin-Email")
	if email == "" {
		http.Error(w, "missing caller identity", http.StatusForbidden)
		return false
	}
	ok, err := adminSvc.HasAccess(r.Context(), email)
	if err != nil {
		logCtx.Error("Admin check failed", "email", email, "error", err)
		http.Error(w, "admin check failed", http.StatusForbidden)
		return false
	}
	if !ok {
		logCtx.Warn("Rejected non-admin caller", "email", email)
		http.Error(w, "admin access required", http.StatusForbidden)
		return false
	}
	return true
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrConnectivity):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
