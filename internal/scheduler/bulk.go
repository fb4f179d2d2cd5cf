package scheduler

import (
	"context"
	"time"

	"signalcast/api_scheduler/internal/analyzer"
	"signalcast/api_scheduler/internal/conflicts"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

const (
	defaultIntervalHours = 4
	defaultLookbackDays  = 30
	conflictShift        = 2 * time.Hour
	maxResolutionPasses  = 5
)

// BulkScheduler assigns publish timestamps to a batch of content items using
// analyzer slot rankings and conflict feedback. Persisting the resulting
// assignments is the caller's responsibility.
type BulkScheduler struct {
	analyzer *analyzer.Analyzer
	detector *conflicts.Detector
	logger   logging.Logger
}

// NewBulkScheduler creates a bulk scheduler.
func NewBulkScheduler(a *analyzer.Analyzer, d *conflicts.Detector, logger logging.Logger) *BulkScheduler {
	return &BulkScheduler{
		analyzer: a,
		detector: d,
		logger:   logger,
	}
}

// Schedule materializes one assignment per (item, channel) pair starting at
// start. An empty batch yields an empty result.
func (bs *BulkScheduler) Schedule(ctx context.Context, items []models.ContentItem, channels []string, start time.Time, opts models.ScheduleOptions) []models.ScheduleAssignment {
	if len(items) == 0 || len(channels) == 0 {
		return nil
	}

	var assignments []models.ScheduleAssignment
	switch opts.Spacing {
	case models.SpacingEven:
		assignments = bs.scheduleEven(items, channels, start, opts)
	default:
		assignments = bs.scheduleOptimal(ctx, items, channels, start, opts)
	}

	if opts.AvoidWeekends {
		for i := range assignments {
			assignments[i].ScheduledAt = shiftOffWeekend(assignments[i].ScheduledAt)
		}
	}

	if opts.AvoidConflicts {
		assignments = bs.resolveConflicts(items, assignments)
	}

	bs.logger.WithFields(logging.Fields{
		"items":       len(items),
		"channels":    len(channels),
		"assignments": len(assignments),
		"spacing":     opts.Spacing,
	}).Info("Bulk schedule computed")

	return assignments
}

// scheduleOptimal walks the ranked slot list round-robin across items so a
// batch does not cluster on the single best slot.
func (bs *BulkScheduler) scheduleOptimal(ctx context.Context, items []models.ContentItem, channels []string, start time.Time, opts models.ScheduleOptions) []models.ScheduleAssignment {
	assignments := make([]models.ScheduleAssignment, 0, len(items)*len(channels))

	for _, channel := range channels {
		slots := bs.analyzer.TopSlots(ctx, channel, defaultLookbackDays, opts.Timezone)
		if len(slots) == 0 {
			slots = analyzer.DefaultSlots(channel)
		}

		for idx, item := range items {
			slot := slots[idx%len(slots)]
			// Later rotations of the slot list land a week further out.
			weekOffset := idx / len(slots)
			at := materializeSlot(start, slot).AddDate(0, 0, 7*weekOffset)
			assignments = append(assignments, models.ScheduleAssignment{
				ItemID:      item.ID,
				Channel:     channel,
				ScheduledAt: at,
			})
		}
	}

	return assignments
}

func (bs *BulkScheduler) scheduleEven(items []models.ContentItem, channels []string, start time.Time, opts models.ScheduleOptions) []models.ScheduleAssignment {
	intervalHours := opts.CustomIntervalHours
	if intervalHours <= 0 {
		intervalHours = defaultIntervalHours
	}
	interval := time.Duration(intervalHours) * time.Hour

	assignments := make([]models.ScheduleAssignment, 0, len(items)*len(channels))
	for idx, item := range items {
		at := start.Add(time.Duration(idx) * interval)
		for _, channel := range channels {
			assignments = append(assignments, models.ScheduleAssignment{
				ItemID:      item.ID,
				Channel:     channel,
				ScheduledAt: at,
			})
		}
	}
	return assignments
}

// resolveConflicts pushes the later item of every conflicted pair forward by
// two hours and re-analyzes, bounded to a fixed number of passes to guarantee
// termination. Shifting only the later item keeps the earlier one anchored so
// pairs actually spread apart instead of moving in lockstep.
func (bs *BulkScheduler) resolveConflicts(items []models.ContentItem, assignments []models.ScheduleAssignment) []models.ScheduleAssignment {
	byID := make(map[string]models.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	for pass := 0; pass < maxResolutionPasses; pass++ {
		detected, _ := bs.detector.Detect(materialized(byID, assignments))
		if len(detected) == 0 {
			return assignments
		}

		earliest := make(map[string]time.Time, len(assignments))
		for _, a := range assignments {
			if at, ok := earliest[a.ItemID]; !ok || a.ScheduledAt.Before(at) {
				earliest[a.ItemID] = a.ScheduledAt
			}
		}

		implicated := make(map[string]struct{})
		for _, rec := range detected {
			later := rec.ItemIDB
			if earliest[rec.ItemIDA].After(earliest[rec.ItemIDB]) {
				later = rec.ItemIDA
			}
			implicated[later] = struct{}{}
		}

		for i := range assignments {
			if _, ok := implicated[assignments[i].ItemID]; ok {
				assignments[i].ScheduledAt = assignments[i].ScheduledAt.Add(conflictShift)
			}
		}

		bs.logger.WithFields(logging.Fields{
			"pass":      pass + 1,
			"conflicts": len(detected),
		}).Debug("Shifted conflicted assignments")
	}

	return assignments
}

// materialized builds synthetic items carrying the assignment timestamps so
// the detector can analyze the proposed batch.
func materialized(byID map[string]models.ContentItem, assignments []models.ScheduleAssignment) []models.ContentItem {
	out := make([]models.ContentItem, 0, len(assignments))
	for _, assignment := range assignments {
		item, ok := byID[assignment.ItemID]
		if !ok {
			continue
		}
		at := assignment.ScheduledAt
		item.ScheduledAt = &at
		item.Channels = models.StringSlice{assignment.Channel}
		out = append(out, item)
	}
	return out
}

// materializeSlot finds the nearest future date matching the slot's weekday
// and hour, at or after start.
func materializeSlot(start time.Time, slot models.TimeSlot) time.Time {
	candidate := time.Date(start.Year(), start.Month(), start.Day(), slot.HourOfDay, 0, 0, 0, start.Location())
	daysAhead := (int(slot.DayOfWeek) - int(start.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)
	if candidate.Before(start) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// shiftOffWeekend pushes Saturday two days and Sunday one day, landing on the
// following Monday at the same time of day.
func shiftOffWeekend(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}
