package services

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ecosignal/signaldesk/internal/models"
	"google.golang.org/api/iterator"
)

// watchRetryDelay spaces out re-establishing a snapshot listener after the
// client's own stream retries have given up.
const watchRetryDelay = 5 * time.Second

// Subscription is the handle for a live feed. Unsubscribe releases the
// server-side watch and returns once the feed goroutine has exited.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Unsubscribe stops the feed and waits for the feed goroutine to exit.
// Safe to call more than once, but never from inside the emission callback:
// the callback runs on the feed goroutine, so waiting there deadlocks.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

// WatchSignals streams the filtered signal list. Every change to the result
// set delivers the full current list, not a diff, so consumers keep no
// incremental state. The feed survives transient stream failures by logging
// and re-establishing the watch.
func (s *SignalService) WatchSignals(ctx context.Context, filters models.SignalFilters, fn func([]models.Signal)) *Subscription {
	sub, watchCtx := newSubscription(ctx)

	go runWatch(watchCtx, sub.done, "signals", s.filteredQuery(filters), func(qsnap *firestore.QuerySnapshot) error {
		signals := []models.Signal{}
		for {
			snap, err := qsnap.Documents.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			var sig models.Signal
			if err := snap.DataTo(&sig); err != nil {
				return err
			}
			sig.ID = snap.Ref.ID
			s.resolvePhotoURL(&sig)
			signals = append(signals, sig)
		}
		fn(signals)
		return nil
	})
	return sub
}

// WatchStats streams snapshot statistics. Each emission re-folds the entire
// current signal collection rather than patching the previous counts.
func (s *StatsService) WatchStats(ctx context.Context, fn func(models.SnapshotStats)) *Subscription {
	sub, watchCtx := newSubscription(ctx)

	go runWatch(watchCtx, sub.done, "stats", s.fs.Collection(signalsCollection).Query, func(qsnap *firestore.QuerySnapshot) error {
		var stats models.SnapshotStats
		for {
			snap, err := qsnap.Documents.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			var facts signalFacts
			if err := snap.DataTo(&facts); err != nil {
				return err
			}
			countSignal(&stats, facts.Status, facts.Priority)
		}
		fn(stats)
		return nil
	})
	return sub
}

func newSubscription(ctx context.Context) (*Subscription, context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	return &Subscription{cancel: cancel, done: make(chan struct{})}, watchCtx
}

// runWatch drives one snapshot listener until the context is cancelled.
func runWatch(ctx context.Context, done chan struct{}, name string, q firestore.Query, handle func(*firestore.QuerySnapshot) error) {
	defer close(done)
	for {
		it := q.Snapshots(ctx)
		for {
			qsnap, err := it.Next()
			if err != nil {
				it.Stop()
				if !isTransientStreamErr(ctx, err) {
					if ctx.Err() == nil {
						slog.Error("Feed terminated", "feed", name, "error", err)
					}
					return
				}
				slog.Warn("Feed interrupted, re-establishing watch", "feed", name, "error", err)
				break
			}
			if err := handle(qsnap); err != nil {
				slog.Error("Failed to process feed snapshot", "feed", name, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetryDelay):
		}
	}
}
