package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"signalcast/api_scheduler/internal/analyzer"
	"signalcast/api_scheduler/internal/conflicts"
	"signalcast/api_scheduler/pkg/models"
)

type noHistoryStore struct{}

func (noHistoryStore) QueryEngagement(ctx context.Context, channel string, start, end time.Time) ([]models.EngagementRecord, error) {
	return nil, errors.New("no engagement history")
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestScheduler() *BulkScheduler {
	a := analyzer.New(noHistoryStore{}, testLogger())
	return NewBulkScheduler(a, conflicts.New(), testLogger())
}

var batchTopics = []string{
	"spring sale", "office move", "hiring news", "board update",
	"cloud launch", "press tour", "beta invite", "award winners",
}

func batchOf(n int) []models.ContentItem {
	items := make([]models.ContentItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.ContentItem{
			ID:      string(rune('a' + i)),
			OwnerID: "owner-1",
			Topic:   batchTopics[i%len(batchTopics)],
		})
	}
	return items
}

func TestScheduleEmptyBatch(t *testing.T) {
	bs := newTestScheduler()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	if got := bs.Schedule(context.Background(), nil, []string{"twitter"}, start, models.ScheduleOptions{}); got != nil {
		t.Fatalf("expected nil assignments for empty batch, got %d", len(got))
	}
	if got := bs.Schedule(context.Background(), batchOf(2), nil, start, models.ScheduleOptions{}); got != nil {
		t.Fatalf("expected nil assignments for no channels, got %d", len(got))
	}
}

func TestScheduleEvenSpacing(t *testing.T) {
	bs := newTestScheduler()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	assignments := bs.Schedule(context.Background(), batchOf(3), []string{"twitter"}, start, models.ScheduleOptions{
		Spacing:             models.SpacingEven,
		CustomIntervalHours: 6,
	})
	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}
	for i, a := range assignments {
		want := start.Add(time.Duration(i) * 6 * time.Hour)
		if !a.ScheduledAt.Equal(want) {
			t.Fatalf("assignment %d: expected %v, got %v", i, want, a.ScheduledAt)
		}
	}
}

func TestScheduleEvenDefaultInterval(t *testing.T) {
	bs := newTestScheduler()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	assignments := bs.Schedule(context.Background(), batchOf(2), []string{"twitter"}, start, models.ScheduleOptions{
		Spacing: models.SpacingEven,
	})
	gap := assignments[1].ScheduledAt.Sub(assignments[0].ScheduledAt)
	if gap != 4*time.Hour {
		t.Fatalf("expected default 4h interval, got %v", gap)
	}
}

func TestScheduleOptimalUsesRankedSlots(t *testing.T) {
	bs := newTestScheduler()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	items := batchOf(3)
	assignments := bs.Schedule(context.Background(), items, []string{"twitter"}, start, models.ScheduleOptions{})
	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}

	defaults := analyzer.DefaultSlots("twitter")
	for i, a := range assignments {
		slot := defaults[i%len(defaults)]
		if a.ScheduledAt.Weekday() != slot.DayOfWeek || a.ScheduledAt.Hour() != slot.HourOfDay {
			t.Fatalf("assignment %d: expected %v %02d:00 slot, got %v", i, slot.DayOfWeek, slot.HourOfDay, a.ScheduledAt)
		}
		if a.ScheduledAt.Before(start) {
			t.Fatalf("assignment %d scheduled in the past: %v", i, a.ScheduledAt)
		}
	}
}

func TestScheduleOptimalWrapsToNextWeek(t *testing.T) {
	bs := newTestScheduler()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	defaults := analyzer.DefaultSlots("twitter")
	items := batchOf(len(defaults) + 1)
	assignments := bs.Schedule(context.Background(), items, []string{"twitter"}, start, models.ScheduleOptions{})

	first := assignments[0].ScheduledAt
	wrapped := assignments[len(defaults)].ScheduledAt
	if !wrapped.Equal(first.AddDate(0, 0, 7)) {
		t.Fatalf("expected slot reuse to land a week out: first=%v wrapped=%v", first, wrapped)
	}
}

func TestScheduleAvoidWeekends(t *testing.T) {
	bs := newTestScheduler()
	// Friday 20:00 start with 12h spacing walks into the weekend.
	start := time.Date(2026, 9, 4, 20, 0, 0, 0, time.UTC)

	assignments := bs.Schedule(context.Background(), batchOf(5), []string{"twitter"}, start, models.ScheduleOptions{
		Spacing:             models.SpacingEven,
		CustomIntervalHours: 12,
		AvoidWeekends:       true,
	})
	for i, a := range assignments {
		wd := a.ScheduledAt.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("assignment %d landed on %v", i, wd)
		}
	}
}

func TestScheduleAvoidConflictsSpacesBatch(t *testing.T) {
	bs := newTestScheduler()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	// One-hour spacing on one channel guarantees timing conflicts; resolution
	// must spread the batch past the two-hour window within its bounded passes.
	assignments := bs.Schedule(context.Background(), batchOf(3), []string{"twitter"}, start, models.ScheduleOptions{
		Spacing:             models.SpacingEven,
		CustomIntervalHours: 1,
		AvoidConflicts:      true,
	})
	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}
	for i := range assignments {
		for j := i + 1; j < len(assignments); j++ {
			gap := assignments[i].ScheduledAt.Sub(assignments[j].ScheduledAt)
			if gap < 0 {
				gap = -gap
			}
			if gap < 2*time.Hour {
				t.Fatalf("assignments %d and %d still %v apart", i, j, gap)
			}
		}
	}
}

func TestMaterializeSlotNeverInPast(t *testing.T) {
	start := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC) // Tuesday 15:00
	slot := models.TimeSlot{DayOfWeek: time.Tuesday, HourOfDay: 9}

	at := materializeSlot(start, slot)
	if at.Before(start) {
		t.Fatalf("materialized slot %v is before start %v", at, start)
	}
	if at.Weekday() != time.Tuesday || at.Hour() != 9 {
		t.Fatalf("expected next Tuesday 09:00, got %v", at)
	}
}

func TestShiftOffWeekend(t *testing.T) {
	saturday := time.Date(2026, 9, 5, 11, 0, 0, 0, time.UTC)
	if got := shiftOffWeekend(saturday); got.Weekday() != time.Monday || got.Hour() != 11 {
		t.Fatalf("expected Saturday to shift to Monday 11:00, got %v", got)
	}

	sunday := time.Date(2026, 9, 6, 18, 0, 0, 0, time.UTC)
	if got := shiftOffWeekend(sunday); got.Weekday() != time.Monday || got.Hour() != 18 {
		t.Fatalf("expected Sunday to shift to Monday 18:00, got %v", got)
	}

	wednesday := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	if got := shiftOffWeekend(wednesday); !got.Equal(wednesday) {
		t.Fatalf("expected weekday unchanged, got %v", got)
	}
}
