// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TimeWindow is the enrollment period for a course. DroppedTime is set only
// when the student dropped the course before EndTime.
type TimeWindow struct {
	StartTime   time.Time
	EndTime     time.Time
	DroppedTime *time.Time
}

// Contains reports whether t falls inside the enrollment window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.StartTime) && !t.After(w.EndTime)
}

// Mark is the reported standing for a course. Both flags false means an
// in-progress (current) mark. OverallMark is nil when the portal reports
// no numeric mark.
type Mark struct {
	OverallMark *float64
	IsFinal     bool
	IsMidterm   bool
}

// Course is one enrollment record for a user in one section at one school.
// (Code, SchoolIdentifier) is the natural key within a user; ID is stable
// across re-syncs.
type Course struct {
	ID               uuid.UUID
	UserID           uuid.UUID // FK -> users.id
	Code             string
	Name             *string // portal sometimes omits the display name
	Block            int
	Room             string
	Times            TimeWindow
	Mark             Mark
	Link             *string // portal-internal reference to assignment detail
	SchoolIdentifier string
	IsAnonymous      bool // owned by the user, never touched by sync
}

// User is the sync-relevant subset of an account.
type User struct {
	ID           uuid.UUID // PK
	StudentID    string    // portal login identifier, immutable once set
	PasswordEnc  string    // opaque ciphertext of the portal password
	LastSyncedAt *time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// HasCredential reports whether the user carries enough stored state for an
// unattended sync.
func (u *User) HasCredential() bool {
	return u.StudentID != "" && u.PasswordEnc != ""
}

// MarkChange records one course whose stored mark changed during a sync.
type MarkChange struct {
	Code         string   `json:"code"`
	PreviousMark *float64 `json:"previousMark"`
	NewMark      *float64 `json:"newMark"`
}

// ReconcileResult summarizes one reconciliation transaction.
type ReconcileResult struct {
	Inserted    int          `json:"inserted"`
	Updated     int          `json:"updated"`
	Deleted     int          `json:"deleted"`
	MarkChanges []MarkChange `json:"markChanges"`
}

// SyncReport is the outcome of a successful single-user sync.
type SyncReport struct {
	StudentID string `json:"studentId"`
	ReconcileResult
}

// BatchReport summarizes one fleet run.
type BatchReport struct {
	Total       int `json:"total"`     // stale users selected
	Attempted   int `json:"attempted"` // users with a stored credential
	Success     int `json:"success"`
	Skipped     int `json:"skipped"` // missing credential
	Failed      int `json:"failed"`
	Deactivated int `json:"deactivated"` // credentials rejected by the portal
}

// CredentialSource is the input variant for a single-user sync: either a
// credential pair to log in with, or pre-fetched portal markup.
type CredentialSource interface {
	// Student returns the portal login identifier the sync is for.
	Student() string
}

// ByCredentials requests a fresh portal login.
type ByCredentials struct {
	StudentID string
	Password  string
}

// ByRawContent supplies already-fetched portal markup, skipping login.
type ByRawContent struct {
	StudentID string
	HTML      string
}

func (c ByCredentials) Student() string { return c.StudentID }
func (c ByRawContent) Student() string  { return c.StudentID }
