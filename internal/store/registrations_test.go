package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var registrationRows = []string{
	"id", "url", "secret", "events", "max_retries", "initial_delay_ms",
	"backoff_multiplier", "headers", "timeout_ms", "active", "created_at", "updated_at",
}

func registrationRow(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(registrationRows).AddRow(
		id, "https://consumer.example.com/hooks", "s3cret", []byte(`["publish.succeeded"]`),
		3, int64(1000), 2.0, []byte(`{"X-Team":"growth"}`), int64(30000), true, now, now,
	)
}

func TestGetRegistrationDecodesDurations(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewRegistrationStore(mockDB)

	mock.ExpectQuery("FROM helmsman.webhook_registrations").
		WithArgs("reg-1").
		WillReturnRows(registrationRow("reg-1"))

	reg, err := s.Get(context.Background(), "reg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Retry.InitialDelay != time.Second {
		t.Fatalf("expected 1s initial delay, got %v", reg.Retry.InitialDelay)
	}
	if reg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", reg.Timeout)
	}
	if reg.Headers["X-Team"] != "growth" {
		t.Fatalf("expected headers decoded, got %v", reg.Headers)
	}
	if len(reg.Events) != 1 || reg.Events[0] != "publish.succeeded" {
		t.Fatalf("expected events decoded, got %v", reg.Events)
	}
}

func TestListActiveRegistrations(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewRegistrationStore(mockDB)

	mock.ExpectQuery("WHERE active = TRUE").
		WillReturnRows(registrationRow("reg-1"))

	regs, err := s.ListActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regs) != 1 || regs[0].ID != "reg-1" {
		t.Fatalf("expected one active registration, got %+v", regs)
	}
}

func TestDeleteRegistrationNotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewRegistrationStore(mockDB)

	mock.ExpectExec("DELETE FROM helmsman.webhook_registrations").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
