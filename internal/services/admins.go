package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/ecosignal/signaldesk/internal/gcp"
)

// AdminService answers membership checks against the admins collection. The
// HTTP layer consults it before mutations; the engines themselves stay
// authorization-free.
type AdminService struct {
	fs *firestore.Client
}

// NewAdminService creates an AdminService from the environment.
func NewAdminService(ctx context.Context) (*AdminService, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	fs, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &AdminService{fs: fs}, nil
}

func newAdminService(fs *firestore.Client) *AdminService {
	return &AdminService{fs: fs}
}

// HasAccess reports whether an admins document exists for the given email.
func (s *AdminService) HasAccess(ctx context.Context, email string) (bool, error) {
	docs, err := s.fs.Collection(adminsCollection).
		Where("email", "==", normalizeEmail(email)).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return false, classifyStoreErr("check admin access", err)
	}
	return len(docs) > 0, nil
}
