// Package service contains the single-user sync orchestrator and the fleet
// orchestrator that runs it across the user population.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayzhao/gradesync/internal/crypto"
	"github.com/ayzhao/gradesync/internal/errs"
	"github.com/ayzhao/gradesync/internal/gate"
	"github.com/ayzhao/gradesync/internal/model"
	"github.com/ayzhao/gradesync/internal/portal"
	"github.com/ayzhao/gradesync/internal/repository"
)

// PortalClient performs the credentialed login against the portal.
type PortalClient interface {
	Login(ctx context.Context, studentID, password string) (string, error)
}

// SyncService runs one user's sync: lookup, gate, login, extract, reconcile.
type SyncService struct {
	users   repository.UserRepository
	courses repository.CourseRepository
	portal  PortalClient
	credKey []byte

	extract func(html string) []model.Course
	now     func() time.Time
}

// NewSyncService constructs the single-user orchestrator. credKey is the
// derived key for stored portal credentials.
func NewSyncService(
	users repository.UserRepository,
	courses repository.CourseRepository,
	client PortalClient,
	credKey []byte,
) *SyncService {
	return &SyncService{
		users:   users,
		courses: courses,
		portal:  client,
		credKey: credKey,
		extract: portal.ExtractCourses,
		now:     time.Now,
	}
}

// Sync runs a full sync for the user identified by src. The gate is skipped
// when bypass is set (administrative and bulk contexts). Any step's failure
// aborts the sync with its classification intact; persisted records are
// untouched on failure.
func (s *SyncService) Sync(ctx context.Context, src model.CredentialSource, bypass bool) (model.SyncReport, error) {
	if src == nil || src.Student() == "" {
		return model.SyncReport{}, errs.ErrUserNotFound
	}

	u, err := s.users.GetByStudentID(ctx, src.Student())
	if err != nil {
		return model.SyncReport{}, err
	}

	now := s.now()
	if allowed, wait := gate.Allow(u.LastSyncedAt, now, bypass); !allowed {
		return model.SyncReport{}, &errs.RateLimitedError{
			NextAllowedAt: now.Add(wait),
			Wait:          wait,
		}
	}

	var html string
	switch v := src.(type) {
	case model.ByCredentials:
		if html, err = s.portal.Login(ctx, v.StudentID, v.Password); err != nil {
			return model.SyncReport{}, err
		}
	case model.ByRawContent:
		html = v.HTML
	default:
		return model.SyncReport{}, fmt.Errorf("unsupported credential source %T", src)
	}

	courses := s.extract(html)

	res, err := s.courses.Reconcile(ctx, u.ID, courses, now)
	if err != nil {
		return model.SyncReport{}, fmt.Errorf("reconcile: %w", err)
	}
	return model.SyncReport{StudentID: u.StudentID, ReconcileResult: res}, nil
}

// SyncStored runs a sync from the user's stored encrypted credential.
func (s *SyncService) SyncStored(ctx context.Context, u *model.User, bypass bool) (model.SyncReport, error) {
	if !u.HasCredential() {
		return model.SyncReport{}, errs.ErrMissingCredential
	}
	password, err := crypto.DecryptPassword(s.credKey, u.PasswordEnc)
	if err != nil {
		return model.SyncReport{}, fmt.Errorf("decrypt credential: %w", err)
	}
	return s.Sync(ctx, model.ByCredentials{StudentID: u.StudentID, Password: password}, bypass)
}
