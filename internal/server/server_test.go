package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayzhao/gradesync/internal/errs"
	"github.com/ayzhao/gradesync/internal/model"
)

type fakeUserSync struct {
	report model.SyncReport
	err    error
}

func (f *fakeUserSync) Sync(_ context.Context, src model.CredentialSource, _ bool) (model.SyncReport, error) {
	if f.err != nil {
		return model.SyncReport{}, f.err
	}
	r := f.report
	r.StudentID = src.Student()
	return r, nil
}

type fakeFleetSync struct {
	report model.BatchReport
	calls  int
}

func (f *fakeFleetSync) SyncAll(context.Context, time.Duration) model.BatchReport {
	f.calls++
	return f.report
}

func newTestServer(us UserSync, fs FleetSync, token string) *Server {
	return New(us, fs, token, time.Hour, zap.NewNop())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeUserSync{}, &fakeFleetSync{}, "tok")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSync_OK(t *testing.T) {
	srv := newTestServer(&fakeUserSync{report: model.SyncReport{
		ReconcileResult: model.ReconcileResult{Updated: 2},
	}}, &fakeFleetSync{}, "tok")

	body := `{"studentId":"350999123","password":"pw"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"updated":2`)
	require.Contains(t, rec.Body.String(), `"studentId":"350999123"`)
}

func TestSync_BadRequest(t *testing.T) {
	srv := newTestServer(&fakeUserSync{}, &fakeFleetSync{}, "tok")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSync_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"rate limited", &errs.RateLimitedError{Wait: 90 * time.Minute}, http.StatusTooManyRequests},
		{"invalid credentials", errs.ErrInvalidCredentials, http.StatusUnauthorized},
		{"portal down", errs.ErrPortalUnavailable, http.StatusServiceUnavailable},
		{"unknown user", errs.ErrUserNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeUserSync{err: tt.err}, &fakeFleetSync{}, "tok")

			body := `{"studentId":"350999123","password":"pw"}`
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", strings.NewReader(body)))
			require.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestSync_RateLimitedReportsWait(t *testing.T) {
	srv := newTestServer(&fakeUserSync{err: &errs.RateLimitedError{Wait: 90 * time.Minute}}, &fakeFleetSync{}, "tok")

	body := `{"studentId":"350999123","password":"pw"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", strings.NewReader(body)))
	require.Contains(t, rec.Body.String(), "1h 30m")
}

func TestSyncAll_RequiresToken(t *testing.T) {
	fleet := &fakeFleetSync{report: model.BatchReport{Success: 3}}
	srv := newTestServer(&fakeUserSync{}, fleet, "tok")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks/sync-all", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, fleet.calls)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks/sync-all", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, fleet.calls)
	require.Contains(t, rec.Body.String(), `"success":3`)
}

func TestSyncAll_DisabledWithoutToken(t *testing.T) {
	srv := newTestServer(&fakeUserSync{}, &fakeFleetSync{}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks/sync-all", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
