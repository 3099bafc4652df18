package services

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/ecosignal/signaldesk/internal/gcp"
	"github.com/ecosignal/signaldesk/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CollectorService manages the collector roster.
type CollectorService struct {
	fs *firestore.Client
}

// NewCollectorService creates a CollectorService from the environment.
func NewCollectorService(ctx context.Context) (*CollectorService, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	fs, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &CollectorService{fs: fs}, nil
}

func newCollectorService(fs *firestore.Client) *CollectorService {
	return &CollectorService{fs: fs}
}

// ListCollectors returns the roster ordered by email.
func (s *CollectorService) ListCollectors(ctx context.Context) ([]models.Collector, error) {
	it := s.fs.Collection(collectorsCollection).OrderBy("email", firestore.Asc).Documents(ctx)
	defer it.Stop()

	collectors := []models.Collector{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreErr("list collectors", err)
		}
		var c models.Collector
		if err := snap.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode collector %s: %w", snap.Ref.ID, err)
		}
		c.ID = snap.Ref.ID
		collectors = append(collectors, c)
	}
	return collectors, nil
}

// AddCollector adds a roster entry for the given email and returns the new
// document id. Emails are stored lowercased and trimmed; duplicates are
// rejected.
func (s *CollectorService) AddCollector(ctx context.Context, email string) (string, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("add collector: empty email: %w", ErrValidation)
	}

	existing, err := s.fs.Collection(collectorsCollection).
		Where("email", "==", normalized).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return "", classifyStoreErr("add collector: duplicate check", err)
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("add collector: %s: %w", normalized, ErrAlreadyExists)
	}

	ref, _, err := s.fs.Collection(collectorsCollection).Add(ctx, map[string]interface{}{
		"email":     normalized,
		"createdAt": firestore.ServerTimestamp,
	})
	if err != nil {
		return "", classifyStoreErr("add collector", err)
	}
	return ref.ID, nil
}

// RemoveCollector deletes a roster entry by id.
func (s *CollectorService) RemoveCollector(ctx context.Context, collectorID string) error {
	ref := s.fs.Collection(collectorsCollection).Doc(collectorID)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("remove collector %s: %w", collectorID, ErrNotFound)
		}
		return classifyStoreErr(fmt.Sprintf("remove collector %s", collectorID), err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return classifyStoreErr(fmt.Sprintf("remove collector %s", collectorID), err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
