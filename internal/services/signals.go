package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/ecosignal/signaldesk/internal/gcp"
	"github.com/ecosignal/signaldesk/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore collection names.
const (
	signalsCollection    = "signals"
	userStatsCollection  = "userStats"
	collectorsCollection = "collectors"
	adminsCollection     = "admins"
)

const defaultPageSize = 50

// SignalConfig holds configuration for the signal service.
type SignalConfig struct {
	ProjectID    string
	SignPhotoURL bool
	PhotoURLTTL  time.Duration
}

// SignalService is the repository and transactional update engine for the
// signals collection.
type SignalService struct {
	fs            *firestore.Client
	storageClient *storage.Client
	config        SignalConfig
}

// NewSignalService creates a SignalService from the environment. Called by
// the function entry points.
func NewSignalService(ctx context.Context) (*SignalService, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := SignalConfig{
		ProjectID:    projectID,
		SignPhotoURL: gcp.GetEnv("SIGN_PHOTO_URLS", "") == "true",
		PhotoURLTTL:  time.Hour,
	}
	if ttl := gcp.GetEnv("PHOTO_URL_TTL_MINUTES", ""); ttl != "" {
		d, err := time.ParseDuration(ttl + "m")
		if err != nil {
			return nil, fmt.Errorf("invalid PHOTO_URL_TTL_MINUTES: %w", err)
		}
		config.PhotoURLTTL = d
	}

	fs, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}

	svc := &SignalService{fs: fs, config: config}
	if config.SignPhotoURL {
		svc.storageClient, err = gcp.NewStorageClient(ctx)
		if err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// newSignalService wraps an existing client; used by tests.
func newSignalService(fs *firestore.Client) *SignalService {
	return &SignalService{fs: fs}
}

// GetSignal fetches one signal by id.
func (s *SignalService) GetSignal(ctx context.Context, signalID string) (*models.Signal, error) {
	snap, err := s.fs.Collection(signalsCollection).Doc(signalID).Get(ctx)
	if err != nil {
		return nil, classifyStoreErr(fmt.Sprintf("get signal %s", signalID), err)
	}
	var sig models.Signal
	if err := snap.DataTo(&sig); err != nil {
		return nil, fmt.Errorf("decode signal %s: %w", signalID, err)
	}
	sig.ID = snap.Ref.ID
	s.resolvePhotoURL(&sig)
	return &sig, nil
}

// ListSignals returns one page of signals, newest first, narrowed by the
// given filters. The cursor is the id of the previous page's last document.
func (s *SignalService) ListSignals(ctx context.Context, filters models.SignalFilters, limit int, cursor string) (*models.SignalListResponse, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	// The document id breaks createdAt ties, so a cursor on the boundary of
	// several same-timestamp signals never skips its siblings.
	q := s.filteredQuery(filters).OrderBy(firestore.DocumentID, firestore.Desc)

	if cursor != "" {
		cursorSnap, err := s.fs.Collection(signalsCollection).Doc(cursor).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, fmt.Errorf("list signals: unknown cursor %q: %w", cursor, ErrValidation)
			}
			return nil, classifyStoreErr("list signals: resolve cursor", err)
		}
		createdAt, err := cursorSnap.DataAt("createdAt")
		if err != nil {
			return nil, fmt.Errorf("list signals: cursor %q has no createdAt: %w", cursor, ErrValidation)
		}
		q = q.StartAfter(createdAt, cursorSnap.Ref.ID)
	}

	it := q.Limit(limit).Documents(ctx)
	defer it.Stop()

	resp := &models.SignalListResponse{Signals: []models.Signal{}}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreErr("list signals", err)
		}
		var sig models.Signal
		if err := snap.DataTo(&sig); err != nil {
			return nil, fmt.Errorf("decode signal %s: %w", snap.Ref.ID, err)
		}
		sig.ID = snap.Ref.ID
		s.resolvePhotoURL(&sig)
		resp.Signals = append(resp.Signals, sig)
	}

	if n := len(resp.Signals); n > 0 {
		resp.Cursor = resp.Signals[n-1].ID
		resp.HasMore = n == limit
	}
	return resp, nil
}

// filteredQuery builds the shared listing/watch query: equality filters,
// createdAt range, newest first.
func (s *SignalService) filteredQuery(filters models.SignalFilters) firestore.Query {
	q := s.fs.Collection(signalsCollection).Query
	if filters.Status != "" {
		q = q.Where("status", "==", filters.Status)
	}
	if filters.Priority != "" {
		q = q.Where("priority", "==", filters.Priority)
	}
	if filters.AssignedTo != "" {
		q = q.Where("assignedTo", "==", filters.AssignedTo)
	}
	if !filters.StartDate.IsZero() {
		q = q.Where("createdAt", ">=", filters.StartDate)
	}
	if !filters.EndDate.IsZero() {
		q = q.Where("createdAt", "<=", endOfDay(filters.EndDate))
	}
	return q.OrderBy("createdAt", firestore.Desc)
}

// UpdateSignal applies an operator patch to a signal inside one Firestore
// transaction, keeping the author's stats rollup in step with any status
// transition. All reads happen before any write, as the transaction API
// requires, and the body holds no state outside the transaction so it is
// safe for the client's conflict retries to re-run it.
func (s *SignalService) UpdateSignal(ctx context.Context, signalID string, patch models.SignalPatch) (*models.Signal, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("update signal %s: empty patch: %w", signalID, ErrValidation)
	}

	signalRef := s.fs.Collection(signalsCollection).Doc(signalID)

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(signalRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("signal %s: %w", signalID, ErrNotFound)
			}
			return err
		}

		var current models.Signal
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode signal %s: %w", signalID, err)
		}

		oldStatus := current.Status
		newStatus := oldStatus
		if patch.Status != nil {
			newStatus = *patch.Status
		}

		// Read the author's rollup now, before any write is issued. Only an
		// actual status transition touches it.
		var statsRef *firestore.DocumentRef
		var statsSnap *firestore.DocumentSnapshot
		if oldStatus != newStatus && current.UserID != "" {
			statsRef = s.fs.Collection(userStatsCollection).Doc(current.UserID)
			statsSnap, err = tx.Get(statsRef)
			if err != nil {
				if status.Code(err) != codes.NotFound {
					return err
				}
				statsSnap = nil
			}
		}

		if err := tx.Update(signalRef, buildSignalUpdates(patch, oldStatus, newStatus)); err != nil {
			return err
		}

		// A reporter without a rollup record keeps none: the rollup is
		// best-effort and this path never creates it.
		if statsSnap != nil && statsSnap.Exists() {
			var stats models.UserStats
			if err := statsSnap.DataTo(&stats); err != nil {
				return fmt.Errorf("decode user stats %s: %w", current.UserID, err)
			}
			shiftStatsBuckets(&stats, oldStatus, newStatus)
			if err := tx.Update(statsRef, []firestore.Update{
				{Path: "pendingReports", Value: stats.PendingReports},
				{Path: "inProgressReports", Value: stats.InProgressReports},
				{Path: "resolvedReports", Value: stats.ResolvedReports},
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isKindErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update signal %s: %w: %v", signalID, ErrTransaction, err)
	}

	return s.GetSignal(ctx, signalID)
}

// buildSignalUpdates translates a patch and the observed status transition
// into the field writes for the signal document.
func buildSignalUpdates(patch models.SignalPatch, oldStatus, newStatus string) []firestore.Update {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if patch.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *patch.Status})
	}
	if patch.Priority != nil {
		updates = append(updates, firestore.Update{Path: "priority", Value: *patch.Priority})
	}
	if patch.AssignedTo != nil {
		updates = append(updates, firestore.Update{Path: "assignedTo", Value: *patch.AssignedTo})
	}
	if patch.AdminNotes != nil {
		updates = append(updates, firestore.Update{Path: "adminNotes", Value: *patch.AdminNotes})
	}

	// resolvedAt tracks the status transition, never a no-op update.
	if newStatus == models.StatusResolved && oldStatus != models.StatusResolved {
		updates = append(updates, firestore.Update{Path: "resolvedAt", Value: firestore.ServerTimestamp})
	}
	if oldStatus == models.StatusResolved && newStatus != models.StatusResolved {
		updates = append(updates, firestore.Update{Path: "resolvedAt", Value: nil})
	}
	return updates
}

// shiftStatsBuckets moves one report between status buckets. Decrements are
// floored at zero so a previously drifted rollup never goes negative.
func shiftStatsBuckets(stats *models.UserStats, oldStatus, newStatus string) {
	switch oldStatus {
	case models.StatusPending:
		stats.PendingReports = max(0, stats.PendingReports-1)
	case models.StatusInProgress:
		stats.InProgressReports = max(0, stats.InProgressReports-1)
	case models.StatusResolved:
		stats.ResolvedReports = max(0, stats.ResolvedReports-1)
	}
	switch newStatus {
	case models.StatusPending:
		stats.PendingReports++
	case models.StatusInProgress:
		stats.InProgressReports++
	case models.StatusResolved:
		stats.ResolvedReports++
	}
}

// isKindErr reports whether err already carries one of the sentinel kinds,
// so transaction wrapping does not re-label a NotFound as TransactionError.
func isKindErr(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrAlreadyExists, ErrConnectivity} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// endOfDay extends a date filter to the last instant of that calendar day,
// matching how the console's end-date picker behaves.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func (s *SignalService) resolvePhotoURL(sig *models.Signal) {
	if s.storageClient == nil || !strings.HasPrefix(sig.ImageURL, "gs://") {
		return
	}
	signed, err := gcp.SignObjectURL(s.storageClient, sig.ImageURL, s.config.PhotoURLTTL)
	if err != nil {
		// The console falls back to its placeholder image; a broken photo
		// link must not fail the read path.
		slog.Warn("Failed to sign photo URL", "signalId", sig.ID, "error", err)
		return
	}
	sig.ImageURL = signed
}
