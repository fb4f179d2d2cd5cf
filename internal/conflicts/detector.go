package conflicts

import (
	"fmt"
	"strings"
	"time"

	"signalcast/api_scheduler/pkg/models"
)

const (
	timingWindow       = 2 * time.Hour
	timingHighWindow   = 1 * time.Hour
	topicWindow        = 24 * time.Hour
	audienceWindow     = 4 * time.Hour
	topicSimilarityMin = 0.3
	minWordLength      = 4
)

// Detector performs pairwise conflict analysis over scheduled content items.
// Pure analysis: no side effects, no storage access.
type Detector struct{}

// New creates a conflict detector.
func New() *Detector {
	return &Detector{}
}

// Detect finds pairwise conflicts among items that carry a scheduledAt, and
// returns the conflicts plus a short human-readable suggestion list.
func (d *Detector) Detect(items []models.ContentItem) ([]models.ConflictRecord, []string) {
	var records []models.ConflictRecord

	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			records = append(records, d.comparePair(items[i], items[j])...)
		}
	}

	return records, buildSuggestions(records)
}

func (d *Detector) comparePair(a, b models.ContentItem) []models.ConflictRecord {
	if a.ScheduledAt == nil || b.ScheduledAt == nil {
		return nil
	}

	var records []models.ConflictRecord
	diff := a.ScheduledAt.Sub(*b.ScheduledAt)
	if diff < 0 {
		diff = -diff
	}

	if channel := sharedChannel(a.Channels, b.Channels); channel != "" && diff < timingWindow {
		severity := models.ConflictSeverityMedium
		if diff < timingHighWindow {
			severity = models.ConflictSeverityHigh
		}
		records = append(records, models.ConflictRecord{
			ItemIDA:             a.ID,
			ItemIDB:             b.ID,
			Channel:             channel,
			Kind:                models.ConflictKindTiming,
			Severity:            severity,
			SuggestedResolution: "Space posts on the same channel 2-3 hours apart",
		})
	}

	if diff < topicWindow && topicSimilarity(a.Topic, b.Topic) > topicSimilarityMin {
		records = append(records, models.ConflictRecord{
			ItemIDA:             a.ID,
			ItemIDB:             b.ID,
			Kind:                models.ConflictKindTopic,
			Severity:            models.ConflictSeverityMedium,
			SuggestedResolution: "Similar topics within 24 hours; vary content or widen the gap",
		})
	}

	if a.AudienceSegmentID != nil && b.AudienceSegmentID != nil &&
		*a.AudienceSegmentID == *b.AudienceSegmentID && diff < audienceWindow {
		records = append(records, models.ConflictRecord{
			ItemIDA:             a.ID,
			ItemIDB:             b.ID,
			Kind:                models.ConflictKindAudience,
			Severity:            models.ConflictSeverityLow,
			SuggestedResolution: "Same audience segment within 4 hours; consider a wider gap",
		})
	}

	return records
}

func sharedChannel(a, b models.StringSlice) string {
	for _, ca := range a {
		for _, cb := range b {
			if ca == cb {
				return ca
			}
		}
	}
	return ""
}

// topicSimilarity is the word-overlap ratio of words longer than 3 characters,
// over the larger of the two word sets.
func topicSimilarity(a, b string) float64 {
	wordsA := significantWords(a)
	wordsB := significantWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	overlap := 0
	for word := range wordsA {
		if _, ok := wordsB[word]; ok {
			overlap++
		}
	}

	larger := len(wordsA)
	if len(wordsB) > larger {
		larger = len(wordsB)
	}
	return float64(overlap) / float64(larger)
}

func significantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) >= minWordLength {
			words[word] = struct{}{}
		}
	}
	return words
}

func buildSuggestions(records []models.ConflictRecord) []string {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Kind]++
	}

	var suggestions []string
	if n := counts[models.ConflictKindTiming]; n > 0 {
		suggestions = append(suggestions, fmt.Sprintf("%d timing conflicts found; space posts 2-3 hours apart", n))
	}
	if n := counts[models.ConflictKindTopic]; n > 0 {
		suggestions = append(suggestions, fmt.Sprintf("%d topic overlaps found; vary content themes within the same day", n))
	}
	if n := counts[models.ConflictKindAudience]; n > 0 {
		suggestions = append(suggestions, fmt.Sprintf("%d audience overlaps found; widen gaps for shared segments", n))
	}
	return suggestions
}
