package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/ecosignal/signaldesk/internal/gcp"
	"github.com/ecosignal/signaldesk/internal/models"
	"google.golang.org/api/iterator"
)

// ReconcilerService rebuilds the userStats rollup from the signals
// collection. The inline update engine only moves counters on records that
// already exist, so a reporter whose rollup was never created (or drifted)
// stays wrong until this runs. Scheduled out-of-band; never part of the
// request path.
type ReconcilerService struct {
	fs *firestore.Client
}

// NewReconciler creates a ReconcilerService from the environment.
func NewReconciler(ctx context.Context) (*ReconcilerService, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	fs, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &ReconcilerService{fs: fs}, nil
}

func newReconciler(fs *firestore.Client) *ReconcilerService {
	return &ReconcilerService{fs: fs}
}

// Process recounts every reporter's signals and overwrites their rollup
// buckets. Signals without a userId are skipped; statuses outside the known
// set count toward totalReports only, matching the snapshot fold.
func (r *ReconcilerService) Process(ctx context.Context) (*models.ReconcileResult, error) {
	logCtx := slog.With("job", "stats-reconcile")
	logCtx.Info("Starting rollup rebuild.")

	type authorFacts struct {
		UserID string `firestore:"userId"`
		Status string `firestore:"status"`
	}

	counts := map[string]*models.UserStats{}
	order := []string{}
	signalsRead := 0

	it := r.fs.Collection(signalsCollection).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreErr("rollup rebuild: scan signals", err)
		}
		var facts authorFacts
		if err := snap.DataTo(&facts); err != nil {
			return nil, fmt.Errorf("rollup rebuild: decode signal %s: %w", snap.Ref.ID, err)
		}
		signalsRead++
		if facts.UserID == "" {
			continue
		}

		stats, ok := counts[facts.UserID]
		if !ok {
			stats = &models.UserStats{}
			counts[facts.UserID] = stats
			order = append(order, facts.UserID)
		}
		stats.TotalReports++
		switch facts.Status {
		case models.StatusPending:
			stats.PendingReports++
		case models.StatusInProgress:
			stats.InProgressReports++
		case models.StatusResolved:
			stats.ResolvedReports++
		}
	}

	bw := r.fs.BulkWriter(ctx)
	jobs := make(map[string]*firestore.BulkWriterJob, len(order))
	for _, userID := range order {
		stats := counts[userID]
		job, err := bw.Set(r.fs.Collection(userStatsCollection).Doc(userID), map[string]interface{}{
			"totalReports":      stats.TotalReports,
			"pendingReports":    stats.PendingReports,
			"inProgressReports": stats.InProgressReports,
			"resolvedReports":   stats.ResolvedReports,
			"updatedAt":         firestore.ServerTimestamp,
		}, firestore.MergeAll)
		if err != nil {
			return nil, fmt.Errorf("rollup rebuild: enqueue %s: %w", userID, err)
		}
		jobs[userID] = job
	}
	bw.End()

	written := 0
	var firstErr error
	for userID, job := range jobs {
		if _, err := job.Results(); err != nil {
			logCtx.Error("Rollup write failed", "userId", userID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	if firstErr != nil {
		return nil, fmt.Errorf("rollup rebuild: %d of %d writes failed: %w", len(jobs)-written, len(jobs), firstErr)
	}

	logCtx.Info("Rollup rebuild complete.", "signalsRead", signalsRead, "usersWritten", written)
	return &models.ReconcileResult{
		Status:       "success",
		SignalsRead:  signalsRead,
		UsersWritten: written,
	}, nil
}
