package analyzer

import (
	"context"
	"sort"
	"time"

	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

const (
	// Buckets with fewer samples than this across the whole window fall back
	// to the default slot table.
	minSampleCount = 10

	// Confidence saturates at this many samples per bucket.
	confidenceSaturation = 20

	maxSlots            = 10
	confidenceThreshold = 0.3

	absoluteWeight = 0.6
	rateWeight     = 0.4
)

// EngagementStore provides historical engagement records for a channel.
type EngagementStore interface {
	QueryEngagement(ctx context.Context, channel string, start, end time.Time) ([]models.EngagementRecord, error)
}

// Analyzer ranks candidate publish slots from historical engagement.
type Analyzer struct {
	store  EngagementStore
	logger logging.Logger
}

// New creates a time-slot analyzer backed by the given engagement store.
func New(store EngagementStore, logger logging.Logger) *Analyzer {
	return &Analyzer{
		store:  store,
		logger: logger,
	}
}

type bucket struct {
	day         time.Weekday
	hour        int
	count       int64
	engagement  int64
	impressions int64
}

// TopSlots returns up to 10 ranked slots for a channel over the lookback
// window, adjusted to the target timezone. Insufficient or unavailable history
// degrades to the built-in default table rather than erroring.
func (a *Analyzer) TopSlots(ctx context.Context, channel string, lookbackDays int, timezone string) []models.TimeSlot {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}

	end := time.Now()
	start := end.AddDate(0, 0, -lookbackDays)

	records, err := a.store.QueryEngagement(ctx, channel, start, end)
	if err != nil {
		a.logger.WithError(err).WithField("channel", channel).Warn("Engagement history unavailable, using default slots")
		return adjustTimezone(DefaultSlots(channel), timezone)
	}

	if len(records) < minSampleCount {
		a.logger.WithFields(logging.Fields{
			"channel": channel,
			"samples": len(records),
		}).Debug("Insufficient engagement history, using default slots")
		return adjustTimezone(DefaultSlots(channel), timezone)
	}

	buckets := make(map[[2]int]*bucket)
	for _, rec := range records {
		key := [2]int{int(rec.RecordedAt.Weekday()), rec.RecordedAt.Hour()}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{day: rec.RecordedAt.Weekday(), hour: rec.RecordedAt.Hour()}
			buckets[key] = b
		}
		b.count++
		b.engagement += rec.TotalEngagement()
		b.impressions += rec.Impressions
	}

	slots := make([]models.TimeSlot, 0, len(buckets))
	for _, b := range buckets {
		avgAbsolute := float64(b.engagement) / float64(b.count)

		var rate float64
		if b.impressions > 0 {
			rate = float64(b.engagement) / float64(b.impressions) * 100
		}

		confidence := float64(b.count) / confidenceSaturation
		if confidence > 1 {
			confidence = 1
		}
		if confidence <= confidenceThreshold {
			continue
		}

		slots = append(slots, models.TimeSlot{
			DayOfWeek:       b.day,
			HourOfDay:       b.hour,
			EngagementScore: absoluteWeight*avgAbsolute + rateWeight*rate,
			Confidence:      confidence,
		})
	}

	if len(slots) == 0 {
		return adjustTimezone(DefaultSlots(channel), timezone)
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].EngagementScore > slots[j].EngagementScore
	})
	if len(slots) > maxSlots {
		slots = slots[:maxSlots]
	}

	return adjustTimezone(slots, timezone)
}

// adjustTimezone reinterprets slot hours in the target timezone by converting
// a representative upcoming date at that hour. Best effort: not calendar-exact
// across DST transitions.
func adjustTimezone(slots []models.TimeSlot, timezone string) []models.TimeSlot {
	if timezone == "" || timezone == "UTC" {
		return slots
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return slots
	}

	now := time.Now().UTC()
	adjusted := make([]models.TimeSlot, len(slots))
	for i, slot := range slots {
		rep := nextWeekdayHour(now, slot.DayOfWeek, slot.HourOfDay).In(loc)
		adjusted[i] = models.TimeSlot{
			DayOfWeek:       rep.Weekday(),
			HourOfDay:       rep.Hour(),
			EngagementScore: slot.EngagementScore,
			Confidence:      slot.Confidence,
		}
	}
	return adjusted
}

// nextWeekdayHour returns the next instant at or after from with the given
// weekday and hour, in from's location.
func nextWeekdayHour(from time.Time, day time.Weekday, hour int) time.Time {
	candidate := time.Date(from.Year(), from.Month(), from.Day(), hour, 0, 0, 0, from.Location())
	daysAhead := (int(day) - int(from.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
