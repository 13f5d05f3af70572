package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/ayzhao/gradesync/internal/errs"
	"github.com/ayzhao/gradesync/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// GetByStudentID selects a user by portal login identifier.
func (r *UserRepo) GetByStudentID(ctx context.Context, studentID string) (*model.User, error) {
	const q = `
SELECT id, student_id, password_enc, last_synced_at, is_active, created_at
FROM users WHERE student_id=$1`
	row := r.db.Pool.QueryRow(ctx, q, studentID)
	var u model.User
	if err := row.Scan(&u.ID, &u.StudentID, &u.PasswordEnc, &u.LastSyncedAt, &u.IsActive, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListStale returns active users never synced or last synced before cutoff.
func (r *UserRepo) ListStale(ctx context.Context, cutoff time.Time) ([]model.User, error) {
	const q = `
SELECT id, student_id, password_enc, last_synced_at, is_active, created_at
FROM users
WHERE is_active AND (last_synced_at IS NULL OR last_synced_at < $1)
ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err = rows.Scan(&u.ID, &u.StudentID, &u.PasswordEnc, &u.LastSyncedAt, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Deactivate clears is_active for a user whose credentials the portal rejected.
func (r *UserRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET is_active=false WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}
