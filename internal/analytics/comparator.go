package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/cache"
	"github.com/franckalain/livestockweight/internal/models"
)

// HistoryReader is the read side of the observation repository
type HistoryReader interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.Observation, error)
	Find(ctx context.Context, subjectID, observationID string) (*models.Observation, []models.Observation, error)
}

// Comparator derives trends from a subject's full history
type Comparator struct {
	history   HistoryReader
	dashboard *cache.TTLCache[models.DashboardStats]
	clock     clock.Clock
}

// NewComparator creates a Comparator. dashboard may be nil to disable stats caching.
func NewComparator(history HistoryReader, dashboard *cache.TTLCache[models.DashboardStats], clk clock.Clock) *Comparator {
	if clk == nil {
		clk = clock.New()
	}
	return &Comparator{history: history, dashboard: dashboard, clock: clk}
}

// CompareWithHistory compares a stored observation against its subject's history
func (c *Comparator) CompareWithHistory(ctx context.Context, subjectID, observationID string) (*models.Comparison, error) {
	focal, history, err := c.history.Find(ctx, subjectID, observationID)
	if err != nil {
		return nil, err
	}
	cmp := Compare(*focal, history)
	return &cmp, nil
}

// CompareFocal compares an observation that may not be stored yet, such as a
// fresh estimate, against its subject's history
func (c *Comparator) CompareFocal(ctx context.Context, focal models.Observation) (*models.Comparison, error) {
	if focal.SubjectID == "" {
		cmp := Compare(focal, nil)
		return &cmp, nil
	}
	history, err := c.history.ListBySubject(ctx, focal.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	cmp := Compare(focal, history)
	return &cmp, nil
}

// DashboardStats returns the subject's summary, cached for the dashboard TTL
func (c *Comparator) DashboardStats(ctx context.Context, subjectID string) (*models.DashboardStats, error) {
	key := cache.SubjectKey(subjectID)
	if c.dashboard != nil {
		if stats, ok := c.dashboard.Get(key); ok {
			return &stats, nil
		}
	}

	history, err := c.history.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	stats := Summarize(subjectID, history, c.clock.Now())
	if c.dashboard != nil {
		c.dashboard.SetDefault(key, stats)
	}
	return &stats, nil
}

// Summarize computes dashboard statistics. AveragePositiveGain uses the same
// definition as TrendSummary: the latest observation compared to all priors,
// averaging only positive deltas.
func Summarize(subjectID string, history []models.Observation, now time.Time) models.DashboardStats {
	stats := models.DashboardStats{
		SubjectID:        subjectID,
		ObservationCount: len(history),
		ComputedAt:       now.UTC(),
	}
	if len(history) == 0 {
		return stats
	}

	ordered := make([]models.Observation, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var weightSum, confidenceSum float64
	for _, o := range ordered {
		weightSum += o.EstimatedWeightKg
		confidenceSum += o.Confidence
	}
	n := float64(len(ordered))
	latest := ordered[len(ordered)-1]

	stats.LatestWeightKg = models.Some(latest.EstimatedWeightKg)
	stats.AverageWeightKg = models.Some(weightSum / n)
	stats.AverageConfidence = models.Some(confidenceSum / n)
	stats.AveragePositiveGain = Compare(latest, ordered).Summary.AveragePositiveGain
	return stats
}
