package detail

import (
	"context"

	"github.com/franckalain/livestockweight/internal/analytics"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/timeline"
	"golang.org/x/sync/errgroup"
)

// HistoryReader lists a subject's observations
type HistoryReader interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.Observation, error)
}

// SubjectSource reads subject records and lineage
type SubjectSource interface {
	GetSubject(ctx context.Context, subjectID string) (*models.Subject, error)
	GetLineage(ctx context.Context, subjectID string) (*models.Lineage, error)
}

// View is everything the subject detail screen shows. Each read fails
// independently; the error fields hold what went wrong for that part.
type View struct {
	SubjectID    string                 `json:"subject_id"`
	Subject      *models.Subject        `json:"subject,omitempty"`
	Lineage      *models.Lineage        `json:"lineage,omitempty"`
	Observations []models.Observation   `json:"observations"`
	Timeline     []models.TimelineEvent `json:"timeline"`
	Latest       *models.Observation    `json:"latest,omitempty"`
	Trend        *models.Comparison     `json:"trend,omitempty"`

	HistoryError string `json:"history_error,omitempty"`
	SubjectError string `json:"subject_error,omitempty"`
	LineageError string `json:"lineage_error,omitempty"`
}

// Loaded reports whether every read succeeded
func (v *View) Loaded() bool {
	return v.HistoryError == "" && v.SubjectError == "" && v.LineageError == ""
}

// Loader assembles the subject detail view
type Loader struct {
	history  HistoryReader
	subjects SubjectSource
	log      *logger.Logger
}

// NewLoader creates a Loader. log may be nil.
func NewLoader(history HistoryReader, subjects SubjectSource, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{history: history, subjects: subjects, log: log.With("component", "detail_loader")}
}

// Load issues the three reads concurrently and returns once all of them have
// settled. A failing read does not cancel the others.
func (l *Loader) Load(ctx context.Context, subjectID string) *View {
	view := &View{SubjectID: subjectID}
	var (
		history []models.Observation
		subject *models.Subject
		lineage *models.Lineage
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		if history, err = l.history.ListBySubject(ctx, subjectID); err != nil {
			l.log.Warn("history read failed", "subject_id", subjectID, "error", err)
			view.HistoryError = err.Error()
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if subject, err = l.subjects.GetSubject(ctx, subjectID); err != nil {
			l.log.Warn("subject read failed", "subject_id", subjectID, "error", err)
			view.SubjectError = err.Error()
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if lineage, err = l.subjects.GetLineage(ctx, subjectID); err != nil {
			l.log.Warn("lineage read failed", "subject_id", subjectID, "error", err)
			view.LineageError = err.Error()
		}
		return nil
	})
	_ = g.Wait()

	view.Subject = subject
	view.Lineage = lineage
	view.Observations = history
	if view.Observations == nil {
		view.Observations = []models.Observation{}
	}
	view.Timeline = timeline.Build(subject, history)

	if latest, ok := latestOf(history); ok {
		view.Latest = &latest
		trend := analytics.Compare(latest, history)
		view.Trend = &trend
	}
	return view
}

func latestOf(history []models.Observation) (models.Observation, bool) {
	if len(history) == 0 {
		return models.Observation{}, false
	}
	latest := history[0]
	for _, o := range history[1:] {
		if o.Timestamp.After(latest.Timestamp) {
			latest = o
		}
	}
	return latest, true
}
