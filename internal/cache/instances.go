package cache

import (
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
)

// The two caches share one Store and must never share keys or versions.
const (
	DashboardNamespace = "livestock_dashboard_stats"
	DashboardVersion   = 1
	DashboardTTL       = 15 * time.Minute

	ObservationNamespace = "livestock_observations"
	ObservationVersion   = 2
	ObservationTTL       = 30 * time.Minute
)

// NewDashboardCache creates the dashboard statistics cache. A zero ttl uses DashboardTTL.
func NewDashboardCache(store Store, clk clock.Clock, log *logger.Logger, ttl time.Duration) *TTLCache[models.DashboardStats] {
	if ttl <= 0 {
		ttl = DashboardTTL
	}
	return New[models.DashboardStats](store, Options{
		Namespace:  DashboardNamespace,
		Version:    DashboardVersion,
		DefaultTTL: ttl,
		Clock:      clk,
		Logger:     log,
	})
}

// NewObservationCache creates the per-subject observation list cache. A zero ttl uses ObservationTTL.
func NewObservationCache(store Store, clk clock.Clock, log *logger.Logger, ttl time.Duration) *ListCache[models.Observation] {
	if ttl <= 0 {
		ttl = ObservationTTL
	}
	return NewList[models.Observation](store, Options{
		Namespace:  ObservationNamespace,
		Version:    ObservationVersion,
		DefaultTTL: ttl,
		Clock:      clk,
		Logger:     log,
	}, func(o models.Observation) string { return o.ID })
}

// SubjectKey is the cache key of a subject's full observation history
func SubjectKey(subjectID string) string {
	return "subject:" + subjectID
}
