package services

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ecosignal/signaldesk/internal/models"
)

func strPtr(s string) *string { return &s }

func findUpdate(t *testing.T, updates []firestore.Update, path string) (firestore.Update, bool) {
	t.Helper()
	for _, u := range updates {
		if u.Path == path {
			return u, true
		}
	}
	return firestore.Update{}, false
}

func TestBuildSignalUpdatesResolvedAt(t *testing.T) {
	tests := []struct {
		name       string
		patch      models.SignalPatch
		oldStatus  string
		newStatus  string
		wantSet    bool // resolvedAt = server timestamp
		wantClear  bool // resolvedAt = nil
	}{
		{
			name:      "transition to resolved stamps resolvedAt",
			patch:     models.SignalPatch{Status: strPtr(models.StatusResolved)},
			oldStatus: models.StatusPending,
			newStatus: models.StatusResolved,
			wantSet:   true,
		},
		{
			name:      "transition away from resolved clears resolvedAt",
			patch:     models.SignalPatch{Status: strPtr(models.StatusPending)},
			oldStatus: models.StatusResolved,
			newStatus: models.StatusPending,
			wantClear: true,
		},
		{
			name:      "re-resolving an already resolved signal leaves resolvedAt alone",
			patch:     models.SignalPatch{Status: strPtr(models.StatusResolved)},
			oldStatus: models.StatusResolved,
			newStatus: models.StatusResolved,
		},
		{
			name:      "patch without status never touches resolvedAt",
			patch:     models.SignalPatch{AdminNotes: strPtr("checked")},
			oldStatus: models.StatusResolved,
			newStatus: models.StatusResolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updates := buildSignalUpdates(tt.patch, tt.oldStatus, tt.newStatus)

			u, found := findUpdate(t, updates, "resolvedAt")
			switch {
			case tt.wantSet:
				if !found {
					t.Fatal("expected resolvedAt update, got none")
				}
				if u.Value != firestore.ServerTimestamp {
					t.Errorf("resolvedAt = %v, want server timestamp", u.Value)
				}
			case tt.wantClear:
				if !found {
					t.Fatal("expected resolvedAt update, got none")
				}
				if u.Value != nil {
					t.Errorf("resolvedAt = %v, want nil", u.Value)
				}
			default:
				if found {
					t.Errorf("unexpected resolvedAt update: %v", u.Value)
				}
			}
		})
	}
}

func TestBuildSignalUpdatesPatchFields(t *testing.T) {
	patch := models.SignalPatch{
		Priority:   strPtr(models.PriorityHigh),
		AssignedTo: strPtr("crew@town.org"),
	}
	updates := buildSignalUpdates(patch, models.StatusPending, models.StatusPending)

	if _, found := findUpdate(t, updates, "status"); found {
		t.Error("status update written without a status in the patch")
	}
	if u, found := findUpdate(t, updates, "priority"); !found || u.Value != models.PriorityHigh {
		t.Errorf("priority update = %v, %v; want high, true", u.Value, found)
	}
	if u, found := findUpdate(t, updates, "assignedTo"); !found || u.Value != "crew@town.org" {
		t.Errorf("assignedTo update = %v, %v; want crew@town.org, true", u.Value, found)
	}
	if u, found := findUpdate(t, updates, "updatedAt"); !found || u.Value != firestore.ServerTimestamp {
		t.Error("every update must stamp updatedAt with the server timestamp")
	}
}

func TestShiftStatsBuckets(t *testing.T) {
	tests := []struct {
		name      string
		start     models.UserStats
		oldStatus string
		newStatus string
		want      models.UserStats
	}{
		{
			name:      "pending to in_progress",
			start:     models.UserStats{PendingReports: 2, InProgressReports: 1},
			oldStatus: models.StatusPending,
			newStatus: models.StatusInProgress,
			want:      models.UserStats{PendingReports: 1, InProgressReports: 2},
		},
		{
			name:      "in_progress to resolved",
			start:     models.UserStats{InProgressReports: 1},
			oldStatus: models.StatusInProgress,
			newStatus: models.StatusResolved,
			want:      models.UserStats{ResolvedReports: 1},
		},
		{
			name:      "drifted rollup never goes negative",
			start:     models.UserStats{},
			oldStatus: models.StatusPending,
			newStatus: models.StatusResolved,
			want:      models.UserStats{ResolvedReports: 1},
		},
		{
			name:      "unknown old status decrements nothing",
			start:     models.UserStats{PendingReports: 3},
			oldStatus: "archived",
			newStatus: models.StatusPending,
			want:      models.UserStats{PendingReports: 4},
		},
		{
			name:      "unknown new status increments nothing",
			start:     models.UserStats{PendingReports: 3},
			oldStatus: models.StatusPending,
			newStatus: "archived",
			want:      models.UserStats{PendingReports: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := tt.start
			shiftStatsBuckets(&stats, tt.oldStatus, tt.newStatus)
			if stats != tt.want {
				t.Errorf("got %+v, want %+v", stats, tt.want)
			}
		})
	}
}

func TestShiftStatsBucketsRoundTrips(t *testing.T) {
	// Walking one signal through the full lifecycle and back must leave the
	// bucket sum unchanged.
	stats := models.UserStats{PendingReports: 1}
	transitions := [][2]string{
		{models.StatusPending, models.StatusInProgress},
		{models.StatusInProgress, models.StatusResolved},
		{models.StatusResolved, models.StatusPending},
	}
	for _, tr := range transitions {
		shiftStatsBuckets(&stats, tr[0], tr[1])
		if stats.PendingReports < 0 || stats.InProgressReports < 0 || stats.ResolvedReports < 0 {
			t.Fatalf("negative bucket after %v: %+v", tr, stats)
		}
	}
	if sum := stats.PendingReports + stats.InProgressReports + stats.ResolvedReports; sum != 1 {
		t.Errorf("bucket sum = %d after round trip, want 1", sum)
	}
	if stats.PendingReports != 1 {
		t.Errorf("got %+v, want the single report back in pending", stats)
	}
}

func TestEndOfDay(t *testing.T) {
	in := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	got := endOfDay(in)
	want := time.Date(2024, 3, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Errorf("endOfDay(%v) = %v, want %v", in, got, want)
	}
}
