package services

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel kinds for repository and engine errors. Callers classify with
// errors.Is; the wrapped message carries the operation and target id.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
	ErrTransaction   = errors.New("transaction failed")
	ErrConnectivity  = errors.New("store unreachable")
)

// classifyStoreErr maps a Firestore client error to one of the sentinel
// kinds, keeping the original error in the chain.
func classifyStoreErr(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w: %v", op, ErrConnectivity, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isTransientStreamErr reports whether a snapshot-listener error is worth
// riding out by re-establishing the watch.
func isTransientStreamErr(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch status.Code(err) {
	case codes.Canceled:
		return false
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unknown:
		return true
	}
	return false
}
