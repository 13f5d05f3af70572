package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/ayzhao/gradesync/internal/model"
)

// CourseRepository reconciles extracted course data against persisted records.
type CourseRepository interface {
	// Reconcile diffs extracted courses against the user's stored records
	// and applies inserts, updates, and deletes in one transaction, then
	// advances the user's last_synced_at. On error no state changes.
	Reconcile(ctx context.Context, userID uuid.UUID, extracted []model.Course, now time.Time) (model.ReconcileResult, error)
}
