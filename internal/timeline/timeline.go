package timeline

import (
	"fmt"
	"sort"

	"github.com/franckalain/livestockweight/internal/models"
)

// Build merges a subject's registration, birth and weight observations into
// one timeline, newest first. Events without a parseable date are dropped.
// For equal dates, registration and birth stay ahead of observations.
func Build(subject *models.Subject, observations []models.Observation) []models.TimelineEvent {
	events := make([]models.TimelineEvent, 0, len(observations)+2)

	if subject != nil {
		if date, ok := models.ParseDate(subject.RegisteredAt); ok {
			events = append(events, models.TimelineEvent{
				Kind:        models.EventRegistration,
				ID:          "registration-" + subject.ID,
				Date:        date,
				Title:       "Registered",
				Description: registrationDescription(subject),
				Metadata:    map[string]any{"tag": subject.Tag, "breed": subject.Breed},
			})
		}

		if date, ok := models.ParseDate(subject.BirthDate); ok {
			ev := models.TimelineEvent{
				Kind:        models.EventBirth,
				ID:          "birth-" + subject.ID,
				Date:        date,
				Title:       "Born",
				Description: "Date of birth recorded",
				Metadata:    map[string]any{},
			}
			if subject.BirthWeightKg != nil {
				ev.Description = fmt.Sprintf("Born weighing %.1f kg", *subject.BirthWeightKg)
				ev.Metadata["birth_weight_kg"] = *subject.BirthWeightKg
			}
			events = append(events, ev)
		}
	}

	for _, o := range observations {
		if o.Timestamp.IsZero() {
			continue
		}
		events = append(events, models.TimelineEvent{
			Kind:        models.EventWeightObservation,
			ID:          "weighing-" + o.ID,
			Date:        o.Timestamp,
			Title:       "Weight estimated",
			Description: fmt.Sprintf("%.1f kg (%.0f%% confidence)", o.EstimatedWeightKg, o.Confidence*100),
			Metadata: map[string]any{
				"observation_id":      o.ID,
				"estimated_weight_kg": o.EstimatedWeightKg,
				"confidence":          o.Confidence,
			},
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})
	return events
}

func registrationDescription(s *models.Subject) string {
	switch {
	case s.Name != "" && s.Tag != "":
		return fmt.Sprintf("%s (%s) added to the herd", s.Name, s.Tag)
	case s.Tag != "":
		return fmt.Sprintf("Tag %s added to the herd", s.Tag)
	default:
		return "Added to the herd"
	}
}
