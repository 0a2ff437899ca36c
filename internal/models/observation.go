package models

import (
	"time"
)

// GPS is the capture location attached to an observation, when known
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Observation represents one weight estimate for a subject
type Observation struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id,omitempty"` // empty until a subject is chosen
	Timestamp time.Time `json:"timestamp"`

	EstimatedWeightKg float64 `json:"estimated_weight_kg"`
	Confidence        float64 `json:"confidence"` // 0..1, absent means 0

	// Descriptive metadata, opaque to analytics
	Breed            string `json:"breed,omitempty"`
	ModelVersion     string `json:"model_version,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	GPS              *GPS   `json:"gps,omitempty"`
}

// Persisted reports whether the backend has assigned an id
func (o *Observation) Persisted() bool {
	return o != nil && o.ID != ""
}

// Subject is the measured animal as known to the backend
type Subject struct {
	ID    string `json:"id"`
	Tag   string `json:"tag,omitempty"`
	Name  string `json:"name,omitempty"`
	Breed string `json:"breed,omitempty"`

	// Raw date strings; parsed (or dropped) by the timeline
	RegisteredAt  string   `json:"registered_at,omitempty"`
	BirthDate     string   `json:"birth_date,omitempty"`
	BirthWeightKg *float64 `json:"birth_weight_kg,omitempty"`
}

// Lineage holds parentage metadata for a subject
type Lineage struct {
	SubjectID string `json:"subject_id"`
	SireID    string `json:"sire_id,omitempty"`
	DamID     string `json:"dam_id,omitempty"`
}

// Breed is one entry of the static breed lookup table
type Breed struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Species string `json:"species"`
}
