package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signalcast/api_scheduler/pkg/models"
)

func TestListPendingDue(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewDeliveryStore(mockDB)
	now := time.Now()
	retryAt := now.Add(-time.Second)

	rows := sqlmock.NewRows([]string{
		"id", "registration_id", "event_type", "payload", "status", "attempts", "max_attempts",
		"next_retry_at", "response_status", "response_headers", "error", "created_at", "updated_at", "delivered_at",
	}).AddRow(
		"del-1", "reg-1", "publish.succeeded", []byte(`{}`), models.DeliveryStatusPending, 1, 4,
		retryAt, 503, []byte(`{}`), "endpoint returned status 503", now, now, nil,
	)

	mock.ExpectQuery("FROM helmsman.webhook_deliveries").
		WithArgs(now, 200).
		WillReturnRows(rows)

	recs, err := s.ListPendingDue(context.Background(), now, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 pending delivery, got %d", len(recs))
	}
	if recs[0].NextRetryAt == nil {
		t.Fatal("expected next_retry_at decoded")
	}
	if recs[0].DeliveredAt != nil {
		t.Fatal("expected nil delivered_at")
	}
}

func TestDeliveryStats(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewDeliveryStore(mockDB)

	mock.ExpectQuery("FROM helmsman.webhook_deliveries").
		WithArgs("reg-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "delivered", "failed", "pending"}).AddRow(10, 7, 2, 1))

	stats, err := s.Stats(context.Background(), "reg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 10 || stats.Delivered != 7 || stats.Failed != 2 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
