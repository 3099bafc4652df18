package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/ecosignal/signaldesk/internal/services"
)

var (
	reconcilerInstance *services.ReconcilerService
	once               sync.Once
	initErr            error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by Cloud Scheduler through Pub/Sub; the event payload carries
	// nothing we need.
	functions.CloudEvent("ReconcileUserStats", reconcileUserStats)
}

// main is required by the Go Functions Framework.
func main() {}

func reconcileUserStats(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		reconcilerInstance, initErr = services.NewReconciler(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	logCtx := slog.With("eventId", e.ID())

	result, err := reconcilerInstance.Process(ctx)
	if err != nil {
		logCtx.Error("Rollup rebuild failed", "error", err)
		return err
	}

	logCtx.Info("Rollup rebuild finished", "signalsRead", result.SignalsRead, "usersWritten", result.UsersWritten)
	return nil
}
