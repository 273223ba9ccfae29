package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newResetTokenRepo(t *testing.T) (*repositories.ResetTokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewResetTokenRepository(db), mock
}

// ---------------------------------------------------------------------------
// NewResetTokenJanitor: construction and interval defaulting
// ---------------------------------------------------------------------------

func TestNewResetTokenJanitor_DefaultInterval(t *testing.T) {
	j := NewResetTokenJanitor(nil, 0)
	if j == nil {
		t.Fatal("NewResetTokenJanitor returned nil")
	}
	if j.interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", j.interval)
	}
}

func TestNewResetTokenJanitor_NegativeInterval_Defaults6h(t *testing.T) {
	j := NewResetTokenJanitor(nil, -3)
	if j.interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", j.interval)
	}
}

func TestNewResetTokenJanitor_CustomInterval(t *testing.T) {
	j := NewResetTokenJanitor(nil, 12)
	if j.interval != 12*time.Hour {
		t.Errorf("interval = %v, want 12h", j.interval)
	}
}

// ---------------------------------------------------------------------------
// runPurge
// ---------------------------------------------------------------------------

func TestResetTokenJanitor_RunPurge_DeletesStaleTokens(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	j := NewResetTokenJanitor(repo, 6)

	mock.ExpectExec("DELETE FROM password_reset_tokens").
		WillReturnResult(sqlmock.NewResult(0, 3))

	j.runPurge(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResetTokenJanitor_RunPurge_DBErrorDoesNotPanic(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	j := NewResetTokenJanitor(repo, 6)

	mock.ExpectExec("DELETE FROM password_reset_tokens").
		WillReturnError(errors.New("db error"))

	// Must log and continue, never panic.
	j.runPurge(context.Background())
}

// ---------------------------------------------------------------------------
// Start / Stop lifecycle
// ---------------------------------------------------------------------------

func TestResetTokenJanitor_StartRunsImmediatePurgeAndStops(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	j := NewResetTokenJanitor(repo, 6)

	mock.ExpectExec("DELETE FROM password_reset_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	// Give the immediate purge time to run, then stop.
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop within 1s of Stop()")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResetTokenJanitor_ContextCancelStopsLoop(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	j := NewResetTokenJanitor(repo, 6)

	mock.ExpectExec("DELETE FROM password_reset_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop within 1s of context cancel")
	}
}
