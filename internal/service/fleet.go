package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayzhao/gradesync/internal/errs"
	"github.com/ayzhao/gradesync/internal/model"
	"github.com/ayzhao/gradesync/internal/repository"
)

// DefaultConcurrency bounds parallel per-user syncs so a fleet run does not
// overwhelm the portal or the connection pool.
const DefaultConcurrency = 8

// DefaultStaleAfter matches the scheduled job's staleness cutoff.
const DefaultStaleAfter = 27 * 24 * time.Hour

// UserSyncer is the single-user sync contract the fleet runs. Implemented by
// *SyncService.
type UserSyncer interface {
	SyncStored(ctx context.Context, u *model.User, bypass bool) (model.SyncReport, error)
}

// FleetService synchronizes all stale users with bounded concurrency,
// isolating per-user failures.
type FleetService struct {
	users       repository.UserRepository
	syncer      UserSyncer
	log         *zap.Logger
	concurrency int
}

// NewFleetService constructs the fleet orchestrator.
func NewFleetService(users repository.UserRepository, syncer UserSyncer, log *zap.Logger, concurrency int) *FleetService {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &FleetService{users: users, syncer: syncer, log: log, concurrency: concurrency}
}

// SyncAll syncs every active user whose last sync is older than staleAfter
// (or who never synced), bypassing the per-user gate. One user's failure
// never cancels others. Users the portal rejects are deactivated and not
// counted as errors; all other failures leave the user active for the next
// run. Individual failures never surface as an error from SyncAll.
func (f *FleetService) SyncAll(ctx context.Context, staleAfter time.Duration) model.BatchReport {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	cutoff := time.Now().Add(-staleAfter)

	users, err := f.users.ListStale(ctx, cutoff)
	if err != nil {
		f.log.Error("fleet: list stale users", zap.Error(err))
		return model.BatchReport{}
	}

	report := model.BatchReport{Total: len(users)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)

	for _, u := range users {
		if !u.HasCredential() {
			report.Skipped++
			f.log.Warn("fleet: missing credential, skipping", zap.String("student_id", u.StudentID))
			continue
		}
		report.Attempted++

		u := u
		g.Go(func() error {
			_, syncErr := f.syncer.SyncStored(ctx, &u, true)

			switch {
			case syncErr == nil:
				mu.Lock()
				report.Success++
				mu.Unlock()
			case errors.Is(syncErr, errs.ErrInvalidCredentials):
				// Stop automatic attempts until the user updates their
				// credentials; not a generic error.
				if derr := f.users.Deactivate(ctx, u.ID); derr != nil {
					f.log.Error("fleet: deactivate user",
						zap.String("student_id", u.StudentID), zap.Error(derr))
				}
				f.log.Warn("fleet: credentials rejected, user deactivated",
					zap.String("student_id", u.StudentID))
				mu.Lock()
				report.Deactivated++
				mu.Unlock()
			default:
				f.log.Error("fleet: sync failed",
					zap.String("student_id", u.StudentID), zap.Error(syncErr))
				mu.Lock()
				report.Failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	f.log.Info("fleet: sync batch complete",
		zap.Int("total", report.Total),
		zap.Int("attempted", report.Attempted),
		zap.Int("success", report.Success),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("deactivated", report.Deactivated),
	)
	return report
}
