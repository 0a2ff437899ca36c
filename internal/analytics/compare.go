package analytics

import (
	"math"
	"sort"

	"github.com/franckalain/livestockweight/internal/models"
	"github.com/shopspring/decimal"
)

const msPerDay = 86_400_000

// Compare compares focal against every observation of history that was taken
// strictly before it. Results are ordered most recent prior first; the
// summary's earliest prior is found independently by minimum timestamp.
// An empty history yields no results and Summary.Count == 0.
func Compare(focal models.Observation, history []models.Observation) models.Comparison {
	out := models.Comparison{
		Focal:   focal,
		Results: []models.ComparisonResult{},
	}

	earliest := -1
	for i := range history {
		prior := history[i]
		if !prior.Timestamp.Before(focal.Timestamp) {
			continue
		}
		out.Results = append(out.Results, compareOne(focal, prior))
		if earliest < 0 || prior.Timestamp.Before(history[earliest].Timestamp) {
			earliest = i
		}
	}

	sort.SliceStable(out.Results, func(i, j int) bool {
		return out.Results[i].Prior.Timestamp.After(out.Results[j].Prior.Timestamp)
	})

	out.Summary = summarize(focal, out.Results, earliest, history)
	return out
}

func compareOne(focal, prior models.Observation) models.ComparisonResult {
	delta := focal.EstimatedWeightKg - prior.EstimatedWeightKg
	days := daysBetween(prior, focal)

	r := models.ComparisonResult{
		Prior:       prior,
		WeightDelta: delta,
		DaysElapsed: days,
	}
	if prior.EstimatedWeightKg > 0 {
		r.PercentDelta = models.Some(delta / prior.EstimatedWeightKg * 100)
		r.PercentDeltaDisplay = RoundForDisplay(r.PercentDelta)
	}
	if days > 0 {
		r.DailyGain = models.Some(delta / float64(days))
	}
	return r
}

func summarize(focal models.Observation, results []models.ComparisonResult, earliest int, history []models.Observation) models.TrendSummary {
	s := models.TrendSummary{Count: len(results)}
	if len(results) == 0 {
		return s
	}

	var gainSum float64
	var gains int
	for _, r := range results {
		if r.WeightDelta > 0 {
			gainSum += r.WeightDelta
			gains++
		}
	}
	if gains > 0 {
		s.AveragePositiveGain = gainSum / float64(gains)
	}

	first := history[earliest]
	s.EarliestWeight = models.Some(first.EstimatedWeightKg)
	s.TotalGain = models.Some(focal.EstimatedWeightKg - first.EstimatedWeightKg)
	s.TotalDays = models.Some(float64(daysBetween(first, focal)))
	return s
}

// daysBetween returns whole days from a to b, rounded down
func daysBetween(a, b models.Observation) int {
	ms := b.Timestamp.Sub(a.Timestamp).Milliseconds()
	return int(math.Floor(float64(ms) / msPerDay))
}

// RoundForDisplay rounds a defined value to one decimal place
func RoundForDisplay(v models.Optional) models.Optional {
	if !v.Defined {
		return v
	}
	f, _ := decimal.NewFromFloat(v.Value).Round(1).Float64()
	return models.Some(f)
}
