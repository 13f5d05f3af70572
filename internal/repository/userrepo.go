// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/ayzhao/gradesync/internal/model"
)

// UserRepository provides the user access the sync engine needs.
type UserRepository interface {
	// GetByStudentID loads a user by portal login identifier.
	GetByStudentID(ctx context.Context, studentID string) (*model.User, error)
	// ListStale returns active users never synced or last synced before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]model.User, error)
	// Deactivate clears is_active, stopping future automatic sync attempts.
	Deactivate(ctx context.Context, id uuid.UUID) error
}
