package models

import "time"

// TimelineEventKind tags a TimelineEvent
type TimelineEventKind string

const (
	EventRegistration      TimelineEventKind = "registration"
	EventBirth             TimelineEventKind = "birth"
	EventWeightObservation TimelineEventKind = "weight_observation"
)

// TimelineEvent is one entry of a subject's merged life-event timeline
type TimelineEvent struct {
	Kind        TimelineEventKind `json:"kind"`
	ID          string            `json:"id"`
	Date        time.Time         `json:"date"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}
