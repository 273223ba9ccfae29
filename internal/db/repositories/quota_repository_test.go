package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var quotaCols = []string{"id", "user_id", "provider", "used_calls", "max_calls", "updated_at"}

func newQuotaRepo(t *testing.T) (*QuotaRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewQuotaRepository(db), mock
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestQuotaGet_Found(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("SELECT.*FROM user_quotas.*WHERE user_id").
		WithArgs("user-1", "gemini").
		WillReturnRows(sqlmock.NewRows(quotaCols).
			AddRow("q-1", "user-1", "gemini", 3, nil, time.Now()))

	q, err := repo.Get(context.Background(), "user-1", "gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.UsedCalls != 3 {
		t.Errorf("UsedCalls = %d, want 3", q.UsedCalls)
	}
	if q.Limit(10) != 10 {
		t.Errorf("Limit(10) = %d, want default 10", q.Limit(10))
	}
}

func TestQuotaGet_NotFound(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("SELECT.*FROM user_quotas.*WHERE user_id").
		WithArgs("user-1", "openai").
		WillReturnRows(sqlmock.NewRows(quotaCols))

	_, err := repo.Get(context.Background(), "user-1", "openai")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Increment
// ---------------------------------------------------------------------------

func TestQuotaIncrement_CreatesRow(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("INSERT INTO user_quotas.*ON CONFLICT.*RETURNING").
		WillReturnRows(sqlmock.NewRows(quotaCols).
			AddRow("q-1", "user-1", "gemini", 1, nil, time.Now()))

	q, err := repo.Increment(context.Background(), "user-1", "gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.UsedCalls != 1 {
		t.Errorf("UsedCalls = %d, want 1 for a fresh ledger row", q.UsedCalls)
	}
}

func TestQuotaIncrement_ExistingRow(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("INSERT INTO user_quotas.*ON CONFLICT.*RETURNING").
		WillReturnRows(sqlmock.NewRows(quotaCols).
			AddRow("q-1", "user-1", "gemini", 7, nil, time.Now()))

	q, err := repo.Increment(context.Background(), "user-1", "gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.UsedCalls != 7 {
		t.Errorf("UsedCalls = %d, want 7", q.UsedCalls)
	}
}

func TestQuotaIncrement_DBError(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("INSERT INTO user_quotas").
		WillReturnError(errDB)

	_, err := repo.Increment(context.Background(), "user-1", "gemini")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Reset
// ---------------------------------------------------------------------------

func TestQuotaReset(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectExec("UPDATE user_quotas SET used_calls = 0").
		WithArgs("user-1", "gemini").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Reset(context.Background(), "user-1", "gemini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuotaReset_NoRowIsNoOp(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectExec("UPDATE user_quotas SET used_calls = 0").
		WithArgs("user-1", "openai").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Resetting an untouched pair succeeds: the user is already at zero.
	if err := repo.Reset(context.Background(), "user-1", "openai"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// SetLimit
// ---------------------------------------------------------------------------

func TestQuotaSetLimit(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectExec("INSERT INTO user_quotas.*ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(1, 1))

	limit := 50
	if err := repo.SetLimit(context.Background(), "user-1", "gemini", &limit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuotaSetLimit_ClearOverride(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectExec("INSERT INTO user_quotas.*ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.SetLimit(context.Background(), "user-1", "gemini", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestQuotaList(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM user_quotas").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery("SELECT.*FROM user_quotas.*ORDER BY updated_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(quotaCols).
			AddRow("q-1", "user-1", "gemini", 4, nil, time.Now()).
			AddRow("q-2", "user-2", "openai", 12, nil, time.Now()))

	quotas, total, err := repo.List(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
	if len(quotas) != 2 {
		t.Errorf("len(quotas) = %d, want 2", len(quotas))
	}
}

func TestQuotaList_Empty(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM user_quotas").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT.*FROM user_quotas.*ORDER BY updated_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(quotaCols))

	quotas, total, err := repo.List(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(quotas) != 0 {
		t.Errorf("got total %d with %d rows, want an empty page", total, len(quotas))
	}
}

// ---------------------------------------------------------------------------
// ListByUser
// ---------------------------------------------------------------------------

func TestQuotaListByUser(t *testing.T) {
	repo, mock := newQuotaRepo(t)
	override := 25
	mock.ExpectQuery("SELECT.*FROM user_quotas.*WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(quotaCols).
			AddRow("q-1", "user-1", "gemini", 4, nil, time.Now()).
			AddRow("q-2", "user-1", "openai", 25, override, time.Now()))

	quotas, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotas) != 2 {
		t.Fatalf("len(quotas) = %d, want 2", len(quotas))
	}
	if quotas[1].Remaining(10) != 0 {
		t.Errorf("Remaining = %d, want 0 for exhausted override", quotas[1].Remaining(10))
	}
}
