package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/franckalain/livestockweight/internal/models"
)

// Page is one normalized list response
type Page struct {
	Items   []models.Observation
	Total   int
	Skipped int // records dropped for a missing timestamp or invalid weight
}

// flexString accepts a JSON string, number or null
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// wireObservation is every field name the backend has used for an observation
type wireObservation struct {
	ID        flexString `json:"id"`
	SubjectID flexString `json:"subject_id"`
	CattleID  flexString `json:"cattle_id"`

	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`

	EstimatedWeightKg *float64 `json:"estimated_weight_kg"`
	EstimatedWeight   *float64 `json:"estimated_weight"`
	Confidence        *float64 `json:"confidence"`
	ConfidenceScore   *float64 `json:"confidence_score"`

	Breed            string      `json:"breed"`
	ModelVersion     string      `json:"model_version"`
	ProcessingTimeMs *float64    `json:"processing_time_ms"`
	GPS              *models.GPS `json:"gps"`
	GPSLatitude      *float64    `json:"gps_latitude"`
	GPSLongitude     *float64    `json:"gps_longitude"`
}

// wireList is every envelope the list endpoints have returned
type wireList struct {
	Items       []wireObservation `json:"items"`
	Weighings   []wireObservation `json:"weighings"`
	Estimations []wireObservation `json:"estimations"`
	Data        []wireObservation `json:"data"`
	Total       *int              `json:"total"`
}

// wireSingle is every envelope the create/estimate endpoints have returned
type wireSingle struct {
	Weighing   *wireObservation `json:"weighing"`
	Estimation *wireObservation `json:"estimation"`
	Data       *wireObservation `json:"data"`
}

// NormalizeObservations converts any list response shape into canonical
// observations. Downstream code never sees backend field names.
func NormalizeObservations(data []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(data)
	var raw []wireObservation
	total := -1

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse observation list: %w", err)
		}
	} else {
		var env wireList
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("failed to parse observation list: %w", err)
		}
		switch {
		case env.Items != nil:
			raw = env.Items
		case env.Weighings != nil:
			raw = env.Weighings
		case env.Estimations != nil:
			raw = env.Estimations
		default:
			raw = env.Data
		}
		if env.Total != nil {
			total = *env.Total
		}
	}

	page := &Page{Items: make([]models.Observation, 0, len(raw))}
	for _, w := range raw {
		obs, ok := w.canonical()
		if !ok {
			page.Skipped++
			continue
		}
		page.Items = append(page.Items, obs)
	}
	if total < 0 {
		total = len(raw)
	}
	page.Total = total
	return page, nil
}

// NormalizeObservation converts a single-record response into a canonical observation
func NormalizeObservation(data []byte) (*models.Observation, error) {
	var env wireSingle
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse observation: %w", err)
	}
	w := env.Weighing
	if w == nil {
		w = env.Estimation
	}
	if w == nil {
		w = env.Data
	}
	if w == nil {
		w = &wireObservation{}
		if err := json.Unmarshal(data, w); err != nil {
			return nil, fmt.Errorf("failed to parse observation: %w", err)
		}
	}

	obs, ok := w.canonical()
	if !ok {
		return nil, fmt.Errorf("observation %q has no valid timestamp or weight", w.ID)
	}
	return &obs, nil
}

func (w wireObservation) canonical() (models.Observation, bool) {
	ts, ok := models.ParseDate(w.Timestamp)
	if !ok {
		ts, ok = models.ParseDate(w.CreatedAt)
	}
	if !ok {
		return models.Observation{}, false
	}

	weight := firstOf(w.EstimatedWeightKg, w.EstimatedWeight)
	if weight < 0 {
		return models.Observation{}, false
	}

	confidence := firstOf(w.Confidence, w.ConfidenceScore)
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	subjectID := string(w.SubjectID)
	if subjectID == "" {
		subjectID = string(w.CattleID)
	}

	obs := models.Observation{
		ID:                string(w.ID),
		SubjectID:         subjectID,
		Timestamp:         ts,
		EstimatedWeightKg: weight,
		Confidence:        confidence,
		Breed:             w.Breed,
		ModelVersion:      w.ModelVersion,
		GPS:               w.GPS,
	}
	if w.ProcessingTimeMs != nil {
		obs.ProcessingTimeMs = int64(*w.ProcessingTimeMs)
	}
	if obs.GPS == nil && w.GPSLatitude != nil && w.GPSLongitude != nil {
		obs.GPS = &models.GPS{Latitude: *w.GPSLatitude, Longitude: *w.GPSLongitude}
	}
	return obs, true
}

func firstOf(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

// encodeObservation is the request body the backend accepts on create
func encodeObservation(o models.Observation) map[string]any {
	body := map[string]any{
		"subject_id":          o.SubjectID,
		"timestamp":           o.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"estimated_weight_kg": o.EstimatedWeightKg,
		"confidence":          o.Confidence,
	}
	if o.Breed != "" {
		body["breed"] = o.Breed
	}
	if o.ModelVersion != "" {
		body["model_version"] = o.ModelVersion
	}
	if o.ProcessingTimeMs > 0 {
		body["processing_time_ms"] = o.ProcessingTimeMs
	}
	if o.GPS != nil {
		body["gps_latitude"] = o.GPS.Latitude
		body["gps_longitude"] = o.GPS.Longitude
	}
	return body
}
