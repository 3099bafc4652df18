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
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/ecosignal/signaldesk/internal/models"
	"github.com/ecosignal/signaldesk/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	signalSvc *services.SignalService
	adminSvc  *services.AdminService
	once      sync.Once
	initErr   error

	validate = validator.New()
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	functions.HTTP("SignalAdmin", handleSignalAdmin)
}

// main is required by the Go Functions Framework.
func main() {}

// handleSignalAdmin serves the signal read and update paths:
// GET ?id=...            one signal
// GET ?status=&priority=&assignedTo=&start=&end=&limit=&cursor=   a page
// PATCH {signalId, patch}  transactional update (admin only)
func handleSignalAdmin(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		signalSvc, initErr = services.NewSignalService(context.Background())
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
		if id := r.URL.Query().Get("id"); id != "" {
			sig, err := signalSvc.GetSignal(r.Context(), id)
			if err != nil {
				logCtx.Error("Failed to get signal", "signalId", id, "error", err)
				http.Error(w, "failed to get signal", errStatus(err))
				return
			}
			writeJSON(w, sig)
			return
		}

		filters, limit, cursor, err := parseListQuery(r)
		if err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		page, err := signalSvc.ListSignals(r.Context(), filters, limit, cursor)
		if err != nil {
			logCtx.Error("Failed to list signals", "error", err)
			http.Error(w, "failed to list signals", errStatus(err))
			return
		}
		writeJSON(w, page)

	case http.MethodPatch, http.MethodPost:
		if !requireAdmin(w, r, logCtx) {
			return
		}

		var req models.SignalUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logCtx.Error("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}

		sig, err := signalSvc.UpdateSignal(r.Context(), req.SignalID, req.Patch)
		if err != nil {
			logCtx.Error("Failed to update signal", "signalId", req.SignalID, "error", err)
			http.Error(w, "failed to update signal", errStatus(err))
			return
		}
		logCtx.Info("Signal updated", "signalId", req.SignalID)
		writeJSON(w, models.SignalUpdateResponse{Status: "success", Signal: *sig})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// parseListQuery reads filters, page size and cursor from the URL. Dates are
// calendar days (2006-01-02); the end date is inclusive.
func parseListQuery(r *http.Request) (models.SignalFilters, int, string, error) {
	q := r.URL.Query()
	filters := models.SignalFilters{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		AssignedTo: q.Get("assignedTo"),
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filters, 0, "", errors.New("invalid start date, want YYYY-MM-DD")
		}
		filters.StartDate = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filters, 0, "", errors.New("invalid end date, want YYYY-MM-DD")
		}
		filters.EndDate = t
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filters, 0, "", errors.New("invalid limit")
		}
		limit = n
	}
	return filters, limit, q.Get("cursor"), nil
}

// requireAdmin enforces the access-control contract at the HTTP boundary:
// the gateway forwards the caller's verified email, and membership in the
// admins collection gates every mutation.
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
