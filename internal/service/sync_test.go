package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/ayzhao/gradesync/internal/crypto"
	"github.com/ayzhao/gradesync/internal/errs"
	"github.com/ayzhao/gradesync/internal/model"
	"github.com/ayzhao/gradesync/internal/repository"
)

type fakeUserRepo struct {
	mu          sync.Mutex
	users       map[string]*model.User
	stale       []model.User
	staleErr    error
	deactivated []uuid.UUID
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) GetByStudentID(_ context.Context, studentID string) (*model.User, error) {
	if u, ok := f.users[studentID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errs.ErrUserNotFound
}

func (f *fakeUserRepo) ListStale(_ context.Context, _ time.Time) ([]model.User, error) {
	return append([]model.User(nil), f.stale...), f.staleErr
}

func (f *fakeUserRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, id)
	return nil
}

type fakeCourseRepo struct {
	inUserID  uuid.UUID
	inCourses []model.Course
	out       model.ReconcileResult
	err       error
}

var _ repository.CourseRepository = (*fakeCourseRepo)(nil)

func (f *fakeCourseRepo) Reconcile(_ context.Context, userID uuid.UUID, extracted []model.Course, _ time.Time) (model.ReconcileResult, error) {
	f.inUserID = userID
	f.inCourses = append([]model.Course(nil), extracted...)
	return f.out, f.err
}

type fakePortal struct {
	html     string
	err      error
	calls    int
	lastUser string
	lastPass string
}

func (f *fakePortal) Login(_ context.Context, studentID, password string) (string, error) {
	f.calls++
	f.lastUser, f.lastPass = studentID, password
	return f.html, f.err
}

func newTestService(users *fakeUserRepo, courses *fakeCourseRepo, client *fakePortal) *SyncService {
	s := NewSyncService(users, courses, client, crypto.DeriveKey("test-secret"))
	s.extract = func(string) []model.Course {
		return []model.Course{{Code: "AFM4U-1", SchoolIdentifier: "MSS"}}
	}
	return s
}

func activeUser(studentID string, lastSynced *time.Time) *model.User {
	return &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		StudentID:    studentID,
		IsActive:     true,
		LastSyncedAt: lastSynced,
	}
}

func TestSync_UserNotFound(t *testing.T) {
	svc := newTestService(&fakeUserRepo{users: map[string]*model.User{}}, &fakeCourseRepo{}, &fakePortal{})

	_, err := svc.Sync(context.Background(), model.ByCredentials{StudentID: "000", Password: "x"}, false)
	require.ErrorIs(t, err, errs.ErrUserNotFound)
}

func TestSync_GateDenies(t *testing.T) {
	last := time.Now().Add(-time.Hour)
	users := &fakeUserRepo{users: map[string]*model.User{
		"350999123": activeUser("350999123", &last),
	}}
	portal := &fakePortal{html: "ok"}
	svc := newTestService(users, &fakeCourseRepo{}, portal)

	_, err := svc.Sync(context.Background(), model.ByCredentials{StudentID: "350999123", Password: "x"}, false)
	require.ErrorIs(t, err, errs.ErrRateLimited)

	var rl *errs.RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.InDelta(t, (11 * time.Hour).Hours(), rl.Wait.Hours(), 0.01)
	require.Zero(t, portal.calls, "gate denial must not reach the portal")
}

func TestSync_BypassSkipsGate(t *testing.T) {
	last := time.Now().Add(-time.Hour)
	users := &fakeUserRepo{users: map[string]*model.User{
		"350999123": activeUser("350999123", &last),
	}}
	courses := &fakeCourseRepo{out: model.ReconcileResult{Updated: 1}}
	portal := &fakePortal{html: "report"}
	svc := newTestService(users, courses, portal)

	report, err := svc.Sync(context.Background(), model.ByCredentials{StudentID: "350999123", Password: "pw"}, true)
	require.NoError(t, err)
	require.Equal(t, 1, portal.calls)
	require.Equal(t, "pw", portal.lastPass)
	require.Equal(t, 1, report.Updated)
	require.Equal(t, "350999123", report.StudentID)
	require.Len(t, courses.inCourses, 1)
}

func TestSync_RawContentSkipsLogin(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"350999123": activeUser("350999123", nil),
	}}
	courses := &fakeCourseRepo{}
	portal := &fakePortal{}
	svc := newTestService(users, courses, portal)

	var gotHTML string
	svc.extract = func(html string) []model.Course {
		gotHTML = html
		return nil
	}

	_, err := svc.Sync(context.Background(), model.ByRawContent{StudentID: "350999123", HTML: "<table/>"}, false)
	require.NoError(t, err)
	require.Zero(t, portal.calls)
	require.Equal(t, "<table/>", gotHTML)
}

func TestSync_InvalidCredentialsPropagates(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"350999123": activeUser("350999123", nil),
	}}
	courses := &fakeCourseRepo{}
	svc := newTestService(users, courses, &fakePortal{err: errs.ErrInvalidCredentials})

	_, err := svc.Sync(context.Background(), model.ByCredentials{StudentID: "350999123", Password: "bad"}, true)
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	require.Empty(t, courses.inCourses, "failed login must not reconcile")
}

func TestSync_ReconcileFailure(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"350999123": activeUser("350999123", nil),
	}}
	boom := errors.New("deadlock detected")
	svc := newTestService(users, &fakeCourseRepo{err: boom}, &fakePortal{html: "report"})

	_, err := svc.Sync(context.Background(), model.ByCredentials{StudentID: "350999123", Password: "pw"}, true)
	require.ErrorIs(t, err, boom)
}

func TestSyncStored_DecryptsCredential(t *testing.T) {
	key := crypto.DeriveKey("test-secret")
	enc, err := crypto.EncryptPassword(key, "hunter2")
	require.NoError(t, err)

	u := activeUser("350999123", nil)
	u.PasswordEnc = enc
	users := &fakeUserRepo{users: map[string]*model.User{"350999123": u}}
	portal := &fakePortal{html: "report"}
	svc := newTestService(users, &fakeCourseRepo{}, portal)

	_, err = svc.SyncStored(context.Background(), u, true)
	require.NoError(t, err)
	require.Equal(t, "hunter2", portal.lastPass)
}

func TestSyncStored_MissingCredential(t *testing.T) {
	u := activeUser("350999123", nil)
	svc := newTestService(&fakeUserRepo{users: map[string]*model.User{}}, &fakeCourseRepo{}, &fakePortal{})

	_, err := svc.SyncStored(context.Background(), u, true)
	require.ErrorIs(t, err, errs.ErrMissingCredential)
}
