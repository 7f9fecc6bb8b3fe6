package logic

import (
	"math"
	"sort"
)

// Summary describes a set of samples.
type Summary struct {
	Count  int
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64 // population standard deviation
}

// Summarize returns the summary of values; ok is false when empty.
func Summarize(values []float64) (s Summary, ok bool) {
	if len(values) == 0 {
		return Summary{}, false
	}
	s = Summary{Count: len(values), Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(variance / float64(len(values)))
	return s, true
}

// GroupStats are unweighted averages over every record of a category.
// Times are in seconds.
type GroupStats struct {
	Category       Category
	Count          int
	FirstCrack     Summary
	FirstCrackTemp Summary
	Total          Summary
	EndTemp        Summary
	Development    Summary
}

// AnalyzeGroup summarizes the records of cat. Summaries with no samples have Count 0.
func AnalyzeGroup(records []SessionRecord, cat Category) GroupStats {
	var fc, fcTemp, total, endTemp, dev []float64
	g := GroupStats{Category: cat}
	for _, r := range records {
		if r.Category() != cat {
			continue
		}
		g.Count++
		appendValid(&fc, r.PhaseTime(PhaseFirstCrackStart))
		appendValid(&fcTemp, r.PhaseTemp(PhaseFirstCrackStart))
		appendValid(&total, r.PhaseTime(PhaseEnd))
		appendValid(&endTemp, r.PhaseTemp(PhaseEnd))
		fcEnd, end := r.PhaseTime(PhaseFirstCrackEnd), r.PhaseTime(PhaseEnd)
		if fcEnd.Valid && end.Valid {
			dev = append(dev, end.Float64-fcEnd.Float64)
		}
	}
	g.FirstCrack, _ = Summarize(fc)
	g.FirstCrackTemp, _ = Summarize(fcTemp)
	g.Total, _ = Summarize(total)
	g.EndTemp, _ = Summarize(endTemp)
	g.Development, _ = Summarize(dev)
	return g
}

func appendValid(dst *[]float64, v NullFloat) {
	if v.Valid {
		*dst = append(*dst, v.Float64)
	}
}

// Verdict grades the spread of total roast times.
type Verdict string

const (
	VerdictVeryConsistent Verdict = "Very consistent"
	VerdictGood           Verdict = "Good consistency"
	VerdictHighVariance   Verdict = "High variability - review roast notes"
)

// Consistency is the spread of total roast time for one origin and category.
type Consistency struct {
	Origin   string
	Category Category
	Roasts   int
	Total    Summary // seconds
	Verdict  Verdict
}

// ConsistencyCheck groups records by origin and category and grades groups
// with at least two total times. Standard deviation under 30 s is very
// consistent, under 60 s good.
func ConsistencyCheck(records []SessionRecord) []Consistency {
	type key struct {
		origin string
		cat    Category
	}
	roasts := map[key]int{}
	totals := map[key][]float64{}
	var order []key
	for _, r := range records {
		k := key{origin: r.Origin, cat: r.Category()}
		if _, seen := roasts[k]; !seen {
			order = append(order, k)
		}
		roasts[k]++
		if end := r.PhaseTime(PhaseEnd); end.Valid {
			totals[k] = append(totals[k], end.Float64)
		}
	}

	var out []Consistency
	for _, k := range order {
		s, ok := Summarize(totals[k])
		if !ok || s.Count < 2 {
			continue
		}
		c := Consistency{Origin: k.origin, Category: k.cat, Roasts: roasts[k], Total: s}
		switch {
		case s.StdDev < 30:
			c.Verdict = VerdictVeryConsistent
		case s.StdDev < 60:
			c.Verdict = VerdictGood
		default:
			c.Verdict = VerdictHighVariance
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}
