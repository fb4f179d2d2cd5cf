package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"signalcast/api_scheduler/pkg/ctxkeys"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

const maxBulkItems = 500

// BulkSchedule computes and persists publish times for a batch of content
// items across the requested channels.
func BulkSchedule(c *gin.Context) {
	var req BulkScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.ItemIDs) == 0 || len(req.Channels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_ids and channels must be non-empty"})
		return
	}
	if len(req.ItemIDs) > maxBulkItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch too large"})
		return
	}

	items, err := contentStore.ListByIDs(c.Request.Context(), req.ItemIDs)
	if err != nil {
		logger.WithError(err).Error("Failed to load content items for bulk schedule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content items"})
		return
	}
	if len(items) != len(req.ItemIDs) {
		c.JSON(http.StatusNotFound, gin.H{"error": "One or more content items not found"})
		return
	}

	userID := c.GetString(string(ctxkeys.KeyUserID))
	role := c.GetString(string(ctxkeys.KeyRole))
	if role != "service" {
		for _, item := range items {
			if item.OwnerID != userID {
				c.JSON(http.StatusForbidden, gin.H{"error": "Content item belongs to another owner"})
				return
			}
		}
	}

	start := req.StartAt
	if start.IsZero() {
		start = time.Now().Add(time.Hour)
	}

	assignments := bulkScheduler.Schedule(c.Request.Context(), items, req.Channels, start, models.ScheduleOptions{
		Spacing:             req.Spacing,
		CustomIntervalHours: req.CustomIntervalHours,
		Timezone:            req.Timezone,
		AvoidWeekends:       req.AvoidWeekends,
		AvoidConflicts:      req.AvoidConflicts,
	})

	// An item publishing to several channels keeps one stored publish time:
	// the earliest of its assignments.
	earliest := make(map[string]time.Time, len(items))
	for _, a := range assignments {
		if at, ok := earliest[a.ItemID]; !ok || a.ScheduledAt.Before(at) {
			earliest[a.ItemID] = a.ScheduledAt
		}
	}
	for itemID, at := range earliest {
		if err := contentStore.UpdateSchedule(c.Request.Context(), itemID, at); err != nil {
			logger.WithError(err).WithField("item_id", itemID).Error("Failed to persist schedule")
			c.JSON(http.StatusConflict, gin.H{"error": "Failed to schedule item " + itemID})
			return
		}
	}

	conflicts, suggestions := detectOnAssignments(items, assignments)
	countConflicts(conflicts)

	metrics.SchedulesComputed.WithLabelValues(spacingLabel(req.Spacing)).Add(float64(len(earliest)))
	notifier.BatchScheduled(userID, len(earliest))

	logger.WithFields(logging.Fields{
		"items":    len(earliest),
		"channels": len(req.Channels),
	}).Info("Bulk schedule persisted")

	c.JSON(http.StatusOK, BulkScheduleResponse{
		Assignments: assignments,
		Conflicts:   conflicts,
		Suggestions: suggestions,
	})
}

// GetSlots returns ranked publish slots for a channel.
func GetSlots(c *gin.Context) {
	channel := c.Query("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel query parameter is required"})
		return
	}

	lookbackDays := 30
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		lookbackDays = n
	}

	slots := slotAnalyzer.TopSlots(c.Request.Context(), channel, lookbackDays, c.Query("timezone"))
	c.JSON(http.StatusOK, gin.H{"channel": channel, "slots": slots})
}

// AnalyzeConflicts runs the conflict detector over a set of existing items
// without mutating anything.
func AnalyzeConflicts(c *gin.Context) {
	var req ConflictAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	items, err := contentStore.ListByIDs(c.Request.Context(), req.ItemIDs)
	if err != nil {
		logger.WithError(err).Error("Failed to load content items for conflict analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content items"})
		return
	}

	records, suggestions := detector.Detect(items)
	countConflicts(records)
	c.JSON(http.StatusOK, ConflictAnalysisResponse{
		Conflicts:   records,
		Suggestions: suggestions,
	})
}

func detectOnAssignments(items []models.ContentItem, assignments []models.ScheduleAssignment) ([]models.ConflictRecord, []string) {
	byID := make(map[string]models.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	proposed := make([]models.ContentItem, 0, len(assignments))
	for _, a := range assignments {
		item, ok := byID[a.ItemID]
		if !ok {
			continue
		}
		at := a.ScheduledAt
		item.ScheduledAt = &at
		item.Channels = models.StringSlice{a.Channel}
		proposed = append(proposed, item)
	}
	return detector.Detect(proposed)
}

func countConflicts(records []models.ConflictRecord) {
	for _, rec := range records {
		metrics.ConflictsDetected.WithLabelValues(rec.Kind).Inc()
	}
}

func spacingLabel(spacing string) string {
	if spacing == models.SpacingEven {
		return models.SpacingEven
	}
	return models.SpacingOptimal
}
