package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/ayzhao/gradesync/internal/model"
)

// CourseRepo implements CourseRepository using PostgreSQL.
type CourseRepo struct{ db *DB }

// NewCourseRepo constructs a course repository.
func NewCourseRepo(db *DB) *CourseRepo { return &CourseRepo{db: db} }

// Reconcile applies one user's extracted courses in a single transaction:
// drop records whose stored window no longer contains now, drop records
// absent from the extraction, upsert the rest by (code, school_identifier),
// then advance last_synced_at. is_anonymous and id are never rewritten.
func (r *CourseRepo) Reconcile(
	ctx context.Context, userID uuid.UUID, extracted []model.Course, now time.Time,
) (res model.ReconcileResult, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const delWindow = `DELETE FROM courses WHERE user_id=$1 AND (end_time < $2 OR start_time > $2)`
	const delAbsent = `DELETE FROM courses WHERE user_id=$1 AND NOT (code = ANY($2))`
	const delAll = `DELETE FROM courses WHERE user_id=$1`
	const sel = `
SELECT id, name, link, overall_mark FROM courses
WHERE user_id=$1 AND code=$2 AND school_identifier=$3 FOR UPDATE`
	const upd = `
UPDATE courses SET name=$2, block=$3, room=$4, start_time=$5, end_time=$6,
dropped_time=$7, overall_mark=$8, is_final=$9, is_midterm=$10, link=$11
WHERE id=$1`
	const ins = `
INSERT INTO courses (id, user_id, code, name, block, room, start_time, end_time,
dropped_time, overall_mark, is_final, is_midterm, link, school_identifier)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	const touch = `UPDATE users SET last_synced_at=$2 WHERE id=$1`

	// Courses outside their stored enrollment window are past or future
	// terms, dropped regardless of what the extraction contains.
	tag, err := tx.Exec(ctx, delWindow, userID, now)
	if err != nil {
		return res, err
	}
	res.Deleted += int(tag.RowsAffected())

	// Courses missing from the extraction were dropped upstream. An empty
	// extraction clears the remainder.
	if len(extracted) > 0 {
		codes := make([]string, len(extracted))
		for i, c := range extracted {
			codes[i] = c.Code
		}
		tag, err = tx.Exec(ctx, delAbsent, userID, codes)
	} else {
		tag, err = tx.Exec(ctx, delAll, userID)
	}
	if err != nil {
		return res, err
	}
	res.Deleted += int(tag.RowsAffected())

	for _, c := range extracted {
		var (
			id       uuid.UUID
			prevName *string
			prevLink *string
			prevMark *float64
		)
		scanErr := tx.QueryRow(ctx, sel, userID, c.Code, c.SchoolIdentifier).
			Scan(&id, &prevName, &prevLink, &prevMark)
		switch {
		case scanErr == nil:
			// Nullable fields fall back to the stored value.
			name, link, mark := c.Name, c.Link, c.Mark.OverallMark
			if name == nil {
				name = prevName
			}
			if link == nil {
				link = prevLink
			}
			if mark == nil {
				mark = prevMark
			}
			if !marksEqual(prevMark, mark) {
				res.MarkChanges = append(res.MarkChanges, model.MarkChange{
					Code: c.Code, PreviousMark: prevMark, NewMark: mark,
				})
			}
			if _, err = tx.Exec(ctx, upd,
				id, name, c.Block, c.Room, c.Times.StartTime, c.Times.EndTime,
				c.Times.DroppedTime, mark, c.Mark.IsFinal, c.Mark.IsMidterm, link,
			); err != nil {
				return res, err
			}
			res.Updated++
		case errors.Is(scanErr, pgx.ErrNoRows):
			if id, err = uuid.NewV4(); err != nil {
				return res, err
			}
			if _, err = tx.Exec(ctx, ins,
				id, userID, c.Code, c.Name, c.Block, c.Room,
				c.Times.StartTime, c.Times.EndTime, c.Times.DroppedTime,
				c.Mark.OverallMark, c.Mark.IsFinal, c.Mark.IsMidterm,
				c.Link, c.SchoolIdentifier,
			); err != nil {
				return res, err
			}
			res.Inserted++
		default:
			err = scanErr
			return res, err
		}
	}

	if _, err = tx.Exec(ctx, touch, userID, now); err != nil {
		return res, err
	}
	return res, nil
}

func marksEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
