package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signalcast/api_scheduler/internal/lifecycle"
	"signalcast/api_scheduler/pkg/models"
)

var contentRows = []string{
	"id", "owner_id", "topic", "audience_segment_id", "payloads", "channels", "status",
	"publish_attempts", "scheduled_at", "posted_at", "last_error", "created_at", "updated_at",
}

func contentRow(id, status string, scheduledAt time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(contentRows).AddRow(
		id, "owner-1", "launch post", nil, []byte(`{"default":{"text":"hi"}}`), []byte(`["twitter"]`),
		status, 0, scheduledAt, nil, "", now, now,
	)
}

func TestClaimForPublish(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewContentStore(mockDB)
	scheduledAt := time.Now().Add(-time.Minute)

	mock.ExpectQuery("UPDATE helmsman.content_items").
		WithArgs("item-1").
		WillReturnRows(contentRow("item-1", models.ContentStatusPosting, scheduledAt))

	item, err := s.ClaimForPublish(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != models.ContentStatusPosting {
		t.Fatalf("expected posting status, got %s", item.Status)
	}
	if len(item.Channels) != 1 || item.Channels[0] != "twitter" {
		t.Fatalf("expected channels decoded, got %v", item.Channels)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimForPublishLosesRace(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewContentStore(mockDB)

	// No row matches when another dispatcher already claimed the item.
	mock.ExpectQuery("UPDATE helmsman.content_items").
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows(contentRows))

	_, err = s.ClaimForPublish(context.Background(), "item-1")
	if !errors.Is(err, lifecycle.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestListDue(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewContentStore(mockDB)
	now := time.Now()
	scheduledAt := now.Add(-5 * time.Minute)

	rows := contentRow("item-1", models.ContentStatusScheduled, scheduledAt)
	mock.ExpectQuery("FROM helmsman.content_items").
		WithArgs(now, 100).
		WillReturnRows(rows)

	items, err := s.ListDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "item-1" {
		t.Fatalf("expected one due item, got %+v", items)
	}
	if items[0].ScheduledAt == nil {
		t.Fatal("expected scheduled_at decoded")
	}
}

func TestReturnToScheduled(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewContentStore(mockDB)

	mock.ExpectExec("UPDATE helmsman.content_items").
		WithArgs("item-1", 2, "adapter unavailable").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ReturnToScheduled(context.Background(), "item-1", 2, "adapter unavailable"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateScheduleRejectsNonSchedulable(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	s := NewContentStore(mockDB)

	// Item in posting/posted/failed state matches no row.
	mock.ExpectExec("UPDATE helmsman.content_items").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpdateSchedule(context.Background(), "item-1", time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for non-schedulable item")
	}
}
