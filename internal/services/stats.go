package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ecosignal/signaldesk/internal/gcp"
	"github.com/ecosignal/signaldesk/internal/models"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

const (
	defaultTrendWindowDays = 30
	defaultLeaderboardSize = 10
)

// StatsService is the aggregation engine: snapshot fold, trend bucketing and
// the rollup-backed leaderboard.
type StatsService struct {
	fs *firestore.Client
}

// NewStatsService creates a StatsService from the environment.
func NewStatsService(ctx context.Context) (*StatsService, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	fs, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &StatsService{fs: fs}, nil
}

func newStatsService(fs *firestore.Client) *StatsService {
	return &StatsService{fs: fs}
}

// signalFacts is the slice of a signal document the aggregations look at.
type signalFacts struct {
	Status    string    `firestore:"status"`
	Priority  string    `firestore:"priority"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// SnapshotStats folds the whole signals collection into per-status and
// per-priority counts. Always recomputed from scratch; the rollup collection
// carries no priority information and is never consulted here.
func (s *StatsService) SnapshotStats(ctx context.Context) (*models.SnapshotStats, error) {
	it := s.fs.Collection(signalsCollection).Documents(ctx)
	defer it.Stop()

	var stats models.SnapshotStats
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreErr("snapshot stats", err)
		}
		var facts signalFacts
		if err := snap.DataTo(&facts); err != nil {
			return nil, fmt.Errorf("snapshot stats: decode signal %s: %w", snap.Ref.ID, err)
		}
		countSignal(&stats, facts.Status, facts.Priority)
	}
	return &stats, nil
}

// countSignal adds one signal to the snapshot counters. Values outside the
// known status/priority sets count toward the total only.
func countSignal(stats *models.SnapshotStats, signalStatus, priority string) {
	stats.Total++

	switch signalStatus {
	case models.StatusPending:
		stats.Pending++
	case models.StatusInProgress:
		stats.InProgress++
	case models.StatusResolved:
		stats.Resolved++
	}

	switch priority {
	case models.PriorityHigh:
		stats.HighPriority++
	case models.PriorityNormal:
		stats.NormalPriority++
	case models.PriorityLow:
		stats.LowPriority++
	}
}

// Trends buckets the trailing windowDays of signals by UTC calendar day of
// creation. Buckets come back ascending by date; days without signals are
// not emitted.
func (s *StatsService) Trends(ctx context.Context, windowDays int) ([]models.TrendBucket, error) {
	if windowDays <= 0 {
		windowDays = defaultTrendWindowDays
	}
	start := time.Now().AddDate(0, 0, -windowDays)

	it := s.fs.Collection(signalsCollection).
		Where("createdAt", ">=", start).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var acc trendAccumulator
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreErr("signal trends", err)
		}
		var facts signalFacts
		if err := snap.DataTo(&facts); err != nil {
			return nil, fmt.Errorf("signal trends: decode signal %s: %w", snap.Ref.ID, err)
		}
		acc.add(facts.CreatedAt, facts.Status)
	}
	if acc.buckets == nil {
		return []models.TrendBucket{}, nil
	}
	return acc.buckets, nil
}

// trendAccumulator groups signals by creation day, preserving the ascending
// first-seen order of the underlying query.
type trendAccumulator struct {
	buckets []models.TrendBucket
	index   map[string]int
}

func (a *trendAccumulator) add(createdAt time.Time, signalStatus string) {
	date := createdAt.UTC().Format(time.DateOnly)
	if a.index == nil {
		a.index = make(map[string]int)
	}
	i, ok := a.index[date]
	if !ok {
		i = len(a.buckets)
		a.buckets = append(a.buckets, models.TrendBucket{Date: date})
		a.index[date] = i
	}

	b := &a.buckets[i]
	b.Total++
	switch signalStatus {
	case models.StatusPending:
		b.Pending++
	case models.StatusInProgress:
		b.InProgress++
	case models.StatusResolved:
		b.Resolved++
	}
}

// TopReporters returns the leaderboard straight from the userStats rollup,
// ordered by totalReports. It deliberately never recounts the signals
// collection: a stale or missing rollup record means a stale or absent row.
func (s *StatsService) TopReporters(ctx context.Context, limit int) ([]models.UserStats, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}

	it := s.fs.Collection(userStatsCollection).
		OrderBy("totalReports", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	reporters := []models.UserStats{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreErr("top reporters", err)
		}
		var stats models.UserStats
		if err := snap.DataTo(&stats); err != nil {
			return nil, fmt.Errorf("top reporters: decode stats %s: %w", snap.Ref.ID, err)
		}
		stats.UserID = snap.Ref.ID
		reporters = append(reporters, stats)
	}
	return reporters, nil
}

// Dashboard fetches the three aggregation views concurrently for the stats
// page.
func (s *StatsService) Dashboard(ctx context.Context, windowDays, topLimit int) (*models.DashboardResponse, error) {
	var resp models.DashboardResponse

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		stats, err := s.SnapshotStats(gctx)
		if err != nil {
			return err
		}
		resp.Stats = *stats
		return nil
	})
	eg.Go(func() error {
		trends, err := s.Trends(gctx, windowDays)
		if err != nil {
			return err
		}
		resp.Trends = trends
		return nil
	})
	eg.Go(func() error {
		top, err := s.TopReporters(gctx, topLimit)
		if err != nil {
			return err
		}
		resp.TopReporters = top
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &resp, nil
}
