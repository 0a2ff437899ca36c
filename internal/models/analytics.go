package models

import (
	"encoding/json"
	"math"
	"time"
)

// Optional is a derived number that may be undefined (zero or absent
// denominator). Undefined values marshal to null.
type Optional struct {
	Value   float64
	Defined bool
}

// Some returns a defined Optional. Non-finite values are reported as undefined.
func Some(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{Value: v, Defined: true}
}

// None returns the undefined marker
func None() Optional {
	return Optional{}
}

// Get returns the value and whether it is defined
func (o Optional) Get() (float64, bool) {
	return o.Value, o.Defined
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// ComparisonResult compares a focal observation against one prior
type ComparisonResult struct {
	Prior Observation `json:"prior"`

	WeightDelta  float64  `json:"weight_delta"`  // kg, focal - prior
	PercentDelta Optional `json:"percent_delta"` // relative to prior weight
	DaysElapsed  int      `json:"days_elapsed"`
	DailyGain    Optional `json:"daily_gain"` // kg/day

	// PercentDeltaDisplay is PercentDelta rounded to one decimal
	PercentDeltaDisplay Optional `json:"percent_delta_display"`
}

// TrendSummary aggregates all comparisons for one focal observation
type TrendSummary struct {
	Count               int      `json:"count"`
	AveragePositiveGain float64  `json:"average_positive_gain"`
	EarliestWeight      Optional `json:"earliest_weight"`
	TotalGain           Optional `json:"total_gain"`
	TotalDays           Optional `json:"total_days"`
}

// Comparison is the comparator output for one focal observation
type Comparison struct {
	Focal   Observation        `json:"focal"`
	Results []ComparisonResult `json:"results"`
	Summary TrendSummary       `json:"summary"`
}

// Empty reports whether there was no history to compare against
func (c *Comparison) Empty() bool {
	return c.Summary.Count == 0
}

// DashboardStats summarises one subject's history for the dashboard
type DashboardStats struct {
	SubjectID           string    `json:"subject_id"`
	ObservationCount    int       `json:"observation_count"`
	LatestWeightKg      Optional  `json:"latest_weight_kg"`
	AverageWeightKg     Optional  `json:"average_weight_kg"`
	AverageConfidence   Optional  `json:"average_confidence"`
	AveragePositiveGain float64   `json:"average_positive_gain"`
	ComputedAt          time.Time `json:"computed_at"`
}
