package analyzer

import (
	"time"

	"signalcast/api_scheduler/pkg/models"
)

// Default slot tables used when a channel has no usable engagement history.
// Scores are relative weights, not engagement predictions; confidence is kept
// above the filter threshold so defaults always survive ranking.
var defaultSlotTables = map[string][]models.TimeSlot{
	"twitter": {
		{DayOfWeek: time.Tuesday, HourOfDay: 9, EngagementScore: 85, Confidence: 0.5},
		{DayOfWeek: time.Wednesday, HourOfDay: 12, EngagementScore: 82, Confidence: 0.5},
		{DayOfWeek: time.Thursday, HourOfDay: 17, EngagementScore: 78, Confidence: 0.5},
		{DayOfWeek: time.Monday, HourOfDay: 8, EngagementScore: 74, Confidence: 0.5},
		{DayOfWeek: time.Friday, HourOfDay: 15, EngagementScore: 70, Confidence: 0.5},
	},
	"linkedin": {
		{DayOfWeek: time.Tuesday, HourOfDay: 10, EngagementScore: 88, Confidence: 0.5},
		{DayOfWeek: time.Wednesday, HourOfDay: 8, EngagementScore: 84, Confidence: 0.5},
		{DayOfWeek: time.Thursday, HourOfDay: 14, EngagementScore: 80, Confidence: 0.5},
		{DayOfWeek: time.Tuesday, HourOfDay: 16, EngagementScore: 75, Confidence: 0.5},
	},
	"instagram": {
		{DayOfWeek: time.Monday, HourOfDay: 11, EngagementScore: 86, Confidence: 0.5},
		{DayOfWeek: time.Wednesday, HourOfDay: 19, EngagementScore: 83, Confidence: 0.5},
		{DayOfWeek: time.Friday, HourOfDay: 13, EngagementScore: 79, Confidence: 0.5},
		{DayOfWeek: time.Sunday, HourOfDay: 18, EngagementScore: 72, Confidence: 0.5},
	},
	"facebook": {
		{DayOfWeek: time.Wednesday, HourOfDay: 13, EngagementScore: 84, Confidence: 0.5},
		{DayOfWeek: time.Thursday, HourOfDay: 9, EngagementScore: 80, Confidence: 0.5},
		{DayOfWeek: time.Saturday, HourOfDay: 11, EngagementScore: 76, Confidence: 0.5},
	},
}

var genericDefaultSlots = []models.TimeSlot{
	{DayOfWeek: time.Tuesday, HourOfDay: 10, EngagementScore: 80, Confidence: 0.5},
	{DayOfWeek: time.Wednesday, HourOfDay: 14, EngagementScore: 76, Confidence: 0.5},
	{DayOfWeek: time.Thursday, HourOfDay: 9, EngagementScore: 72, Confidence: 0.5},
	{DayOfWeek: time.Monday, HourOfDay: 12, EngagementScore: 68, Confidence: 0.5},
	{DayOfWeek: time.Friday, HourOfDay: 16, EngagementScore: 64, Confidence: 0.5},
}

// DefaultSlots returns the built-in slot table for a channel, or the generic
// table for unknown channels. Callers receive a copy safe to mutate.
func DefaultSlots(channel string) []models.TimeSlot {
	table, ok := defaultSlotTables[channel]
	if !ok {
		table = genericDefaultSlots
	}
	out := make([]models.TimeSlot, len(table))
	copy(out, table)
	return out
}
