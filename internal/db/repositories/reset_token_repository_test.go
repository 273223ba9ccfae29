package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

func newResetTokenRepo(t *testing.T) (*ResetTokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewResetTokenRepository(db), mock
}

func TestResetTokenCreate(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	mock.ExpectExec("INSERT INTO password_reset_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.ResetToken{UserID: "user-1", TokenHash: "hash", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestResetTokenGetByHash_Found(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	cols := []string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}
	mock.ExpectQuery("SELECT.*FROM password_reset_tokens.*WHERE token_hash").
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t-1", "user-1", "hash", time.Now().Add(time.Hour), nil, time.Now()))

	token, err := repo.GetByHash(context.Background(), "hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !token.Usable(time.Now()) {
		t.Error("expected token to be usable")
	}
}

func TestResetTokenGetByHash_NotFound(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	cols := []string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}
	mock.ExpectQuery("SELECT.*FROM password_reset_tokens.*WHERE token_hash").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := repo.GetByHash(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResetTokenMarkUsed_SecondRedemptionFails(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	mock.ExpectExec("UPDATE password_reset_tokens SET used_at").
		WithArgs("t-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkUsed(context.Background(), "t-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for already used token, got %v", err)
	}
}

func TestResetTokenDeleteExpired(t *testing.T) {
	repo, mock := newResetTokenRepo(t)
	mock.ExpectExec("DELETE FROM password_reset_tokens WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
}
