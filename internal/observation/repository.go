package observation

import (
	"context"
	"errors"
	"fmt"

	"github.com/franckalain/livestockweight/internal/cache"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/transport"
)

// FullHistoryPageSize bounds the single page requested for a subject's history
const FullHistoryPageSize = 100

// ErrNotFound is returned when an observation is not in a subject's history
var ErrNotFound = errors.New("observation not found")

// Source is the backend side of the repository
type Source interface {
	ListObservations(ctx context.Context, subjectID string, page, limit int) (*transport.Page, error)
	CreateObservation(ctx context.Context, obs models.Observation) (*models.Observation, error)
}

// Repository reads subject histories cache-aside and invalidates on writes.
// It is the only writer of observation data into the cache.
type Repository struct {
	source    Source
	cache     *cache.ListCache[models.Observation]
	dashboard *cache.TTLCache[models.DashboardStats]
	log       *logger.Logger
}

// NewRepository creates a Repository. dashboard may be nil.
func NewRepository(source Source, observations *cache.ListCache[models.Observation], dashboard *cache.TTLCache[models.DashboardStats], log *logger.Logger) *Repository {
	if log == nil {
		log = logger.Nop()
	}
	return &Repository{
		source:    source,
		cache:     observations,
		dashboard: dashboard,
		log:       log.With("component", "observation_repository"),
	}
}

// ListBySubject returns the full (bounded) history of a subject. The cache
// key does not depend on pagination: one complete page is fetched and cached.
func (r *Repository) ListBySubject(ctx context.Context, subjectID string) ([]models.Observation, error) {
	key := cache.SubjectKey(subjectID)
	if items, ok := r.cache.Get(key); ok {
		return items, nil
	}

	page, err := r.source.ListObservations(ctx, subjectID, 1, FullHistoryPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations for %s: %w", subjectID, err)
	}
	if page.Total > len(page.Items)+page.Skipped {
		r.log.Info("history truncated to page size", "subject_id", subjectID, "total", page.Total, "limit", FullHistoryPageSize)
	}

	r.cache.SetDefault(key, page.Items)
	return page.Items, nil
}

// Find returns one observation from a subject's history
func (r *Repository) Find(ctx context.Context, subjectID, observationID string) (*models.Observation, []models.Observation, error) {
	history, err := r.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}
	for i := range history {
		if history[i].ID == observationID {
			obs := history[i]
			return &obs, history, nil
		}
	}
	return nil, history, fmt.Errorf("%w: %s", ErrNotFound, observationID)
}

// Create persists obs and invalidates the subject's cached history. The
// backend may enrich the record, so the cache is never merged in place.
func (r *Repository) Create(ctx context.Context, obs models.Observation) (*models.Observation, error) {
	created, err := r.source.CreateObservation(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("failed to create observation: %w", err)
	}

	r.Invalidate(obs.SubjectID)
	if created.SubjectID != "" && created.SubjectID != obs.SubjectID {
		r.Invalidate(created.SubjectID)
	}
	r.log.Info("observation created", "observation_id", created.ID, "subject_id", created.SubjectID)
	return created, nil
}

// Invalidate drops the cached history and dashboard stats of a subject
func (r *Repository) Invalidate(subjectID string) {
	if subjectID == "" {
		return
	}
	key := cache.SubjectKey(subjectID)
	r.cache.Clear(key)
	if r.dashboard != nil {
		r.dashboard.Clear(key)
	}
}
