package logic

import "math"

const (
	// IdealRating is the most desirable roast rating.
	IdealRating = 5.0
	// RecentWindow is the number of most recent same-category records used for estimation.
	RecentWindow = 5
)

// PhaseEstimate is the weighted-average time (seconds) and temperature of a phase.
// Either field may be absent on its own.
type PhaseEstimate struct {
	Time NullFloat
	Temp NullFloat
}

// EstimateSet holds per-phase estimates for one category.
type EstimateSet struct {
	Category Category
	Count    int // records in the recent window
	Phases   map[Phase]PhaseEstimate
}

// NoData returns the sentinel estimate set: count 0, every field absent.
func NoData(cat Category) EstimateSet {
	return EstimateSet{Category: cat}
}

// Phase returns the estimate for p; absent fields when unknown.
func (e EstimateSet) Phase(p Phase) PhaseEstimate {
	return e.Phases[p]
}

// HasData reports whether any history informed the set.
func (e EstimateSet) HasData() bool {
	return e.Count > 0
}

// QualityWeight maps a rating to (0,1]: 1/(|rating-5|+1). An absent rating weighs 0.
func QualityWeight(rating NullFloat) float64 {
	if !rating.Valid {
		return 0
	}
	return 1.0 / (math.Abs(rating.Float64-IdealRating) + 1.0)
}

// WeightedAverage returns sum(v*w)/sum(w) over pairs with positive weight.
// Empty or mismatched inputs and a zero weight sum yield an absent value.
func WeightedAverage(values, weights []float64) NullFloat {
	if len(values) == 0 || len(values) != len(weights) {
		return NullFloat{}
	}
	var sum, total float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		sum += values[i] * w
		total += w
	}
	if total == 0 {
		return NullFloat{}
	}
	return Some(sum / total)
}

// RecentWindowOf returns the last RecentWindow records of the category,
// oldest first. records must be ordered oldest first.
func RecentWindowOf(records []SessionRecord, cat Category) []SessionRecord {
	var matching []SessionRecord
	for _, r := range records {
		if r.Category() == cat {
			matching = append(matching, r)
		}
	}
	if len(matching) > RecentWindow {
		matching = matching[len(matching)-RecentWindow:]
	}
	return matching
}

// samples collects (value, weight) pairs for one field.
type samples struct {
	values  []float64
	weights []float64
}

func (s *samples) add(v NullFloat, weight float64) {
	if !v.Valid || weight <= 0 {
		return
	}
	s.values = append(s.values, v.Float64)
	s.weights = append(s.weights, weight)
}

func (s *samples) average() NullFloat {
	return WeightedAverage(s.values, s.weights)
}

// Estimate computes the quality-weighted phase estimates for a category
// from the history, which must be ordered oldest first.
func Estimate(records []SessionRecord, cat Category) EstimateSet {
	window := RecentWindowOf(records, cat)
	if len(window) == 0 {
		return NoData(cat)
	}

	times := make(map[Phase]*samples, len(TrackedPhases))
	temps := make(map[Phase]*samples, len(TrackedPhases))
	for _, p := range TrackedPhases {
		times[p] = &samples{}
		temps[p] = &samples{}
	}

	for _, r := range window {
		weight := QualityWeight(r.Rating)
		if weight <= 0 {
			continue
		}
		for _, p := range TrackedPhases {
			times[p].add(r.PhaseTime(p), weight)
			temps[p].add(r.PhaseTemp(p), weight)
		}
	}

	set := EstimateSet{
		Category: cat,
		Count:    len(window),
		Phases:   make(map[Phase]PhaseEstimate, len(TrackedPhases)),
	}
	for _, p := range TrackedPhases {
		set.Phases[p] = PhaseEstimate{
			Time: times[p].average(),
			Temp: temps[p].average(),
		}
	}
	return set
}
