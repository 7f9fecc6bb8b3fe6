package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Report prints estimates, summaries and history.
type Report struct {
	w      io.Writer
	styles Styles
	unit   string
}

// NewReport creates a Report on w. unit is appended to temperatures, e.g. "F".
func NewReport(w io.Writer, unit string) *Report {
	return &Report{w: w, styles: NewStyles(w), unit: unit}
}

func (r *Report) title(format string, args ...interface{}) {
	fmt.Fprintln(r.w, r.styles.Title.Render(fmt.Sprintf(format, args...)))
}

func (r *Report) row(label, value string) {
	fmt.Fprintf(r.w, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-14s", label+":")), value)
}

func (r *Report) temp(v logic.NullFloat) string {
	if !v.Valid {
		return "N/A"
	}
	return v.String() + "°" + r.unit
}

// Estimates prints the phase estimates, rendering each half of a partial
// estimate on its own.
func (r *Report) Estimates(est logic.EstimateSet) {
	if !est.HasData() {
		fmt.Fprintln(r.w, r.styles.Muted.Render(fmt.Sprintf("No previous %s roasts found. Using default alerts.", est.Category)))
		return
	}
	r.title("Historical averages for %s (last %d roasts)", est.Category, est.Count)
	for _, p := range logic.TrackedPhases {
		pe := est.Phase(p)
		if !pe.Time.Valid && !pe.Temp.Valid {
			r.row(p.Label(), r.styles.Muted.Render("N/A"))
			continue
		}
		r.row(p.Label(), fmt.Sprintf("%s @ %s", logic.FormatNullClock(pe.Time), r.temp(pe.Temp)))
	}
}

func (r *Report) reading(m logic.Mark) string {
	s := fmt.Sprintf("%s @ %s", logic.FormatElapsed(m.Elapsed), r.temp(m.Reading.Temp))
	if m.Reading.ROR.Valid {
		s += fmt.Sprintf(" (ROR %s)", m.Reading.ROR)
	}
	return s
}

// Summary prints the timeline of a finished session.
func (r *Report) Summary(s *logic.Session) {
	r.title("Roast complete (%s)", s.Category())
	r.row("Loading", r.temp(s.LoadingReading().Temp))
	for _, p := range logic.TrackedPhases {
		if m, ok := s.MarkOf(p); ok {
			r.row(p.Label(), r.reading(m))
		}
	}
	if d, ok := s.FirstCrackDuration(); ok {
		r.row("First crack", logic.FormatElapsed(d))
	}
	if d, ok := s.Development(); ok {
		r.row("Development", logic.FormatElapsed(d))
		if end, ok := s.MarkOf(logic.PhaseEnd); ok && end.Elapsed > 0 {
			r.row("Dev ratio", fmt.Sprintf("%.1f%%", 100*d.Seconds()/end.Elapsed.Seconds()))
		}
	}
	if t := s.DropTemp(); t.Valid {
		r.row("Drop temp", r.temp(t))
	}
}

// Recent prints the last n records, newest first.
func (r *Report) Recent(records []logic.SessionRecord, n int) {
	if len(records) == 0 {
		fmt.Fprintln(r.w, r.styles.Muted.Render("No roasts logged yet."))
		return
	}
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	r.title("Last %d roasts", n)
	for i := len(records) - 1; i >= len(records)-n; i-- {
		rec := records[i]
		kind := "Regular"
		if rec.Decaf {
			kind = "Decaf"
		}
		date := "unknown date"
		if !rec.RoastedAt.IsZero() {
			date = rec.RoastedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(r.w, "  %s  %-12s %-7s FC %s  total %s  rating %s",
			r.styles.Muted.Render(date), rec.Origin, kind,
			logic.FormatNullClock(rec.PhaseTime(logic.PhaseFirstCrackStart)),
			logic.FormatNullClock(rec.PhaseTime(logic.PhaseEnd)),
			ratingText(rec.Rating))
		if rec.Color != "" {
			fmt.Fprintf(r.w, "  %s", rec.Color)
		}
		fmt.Fprintln(r.w)
	}
}

func ratingText(v logic.NullFloat) string {
	if !v.Valid {
		return "-"
	}
	return strings.TrimSuffix(v.String(), ".0") + "/10"
}

func clockSummary(s logic.Summary) string {
	if s.Count == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%s (range %s-%s, n=%d)",
		logic.FormatClock(s.Mean), logic.FormatClock(s.Min), logic.FormatClock(s.Max), s.Count)
}

func (r *Report) tempSummary(s logic.Summary) string {
	if s.Count == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%s (range %s-%s)", r.temp(logic.Some(s.Mean)), r.temp(logic.Some(s.Min)), r.temp(logic.Some(s.Max)))
}

// Stats prints the unweighted averages of each group and the consistency
// of total roast time per origin.
func (r *Report) Stats(groups []logic.GroupStats, checks []logic.Consistency) {
	for _, g := range groups {
		if g.Count == 0 {
			continue
		}
		r.title("%s roasts (%d)", g.Category, g.Count)
		r.row("First crack", clockSummary(g.FirstCrack))
		r.row("FC temp", r.tempSummary(g.FirstCrackTemp))
		r.row("Total time", clockSummary(g.Total))
		r.row("End temp", r.tempSummary(g.EndTemp))
		r.row("Development", clockSummary(g.Development))
		fmt.Fprintln(r.w)
	}
	if len(checks) == 0 {
		return
	}
	r.title("Consistency by origin")
	for _, c := range checks {
		verdict := r.styles.Good.Render(string(c.Verdict))
		if c.Verdict == logic.VerdictHighVariance {
			verdict = r.styles.Alert.Render(string(c.Verdict))
		}
		fmt.Fprintf(r.w, "  %s (%s, %d roasts): avg %s, std dev %.0fs - %s\n",
			c.Origin, strings.ToLower(string(c.Category)), c.Roasts,
			logic.FormatClock(c.Total.Mean), c.Total.StdDev, verdict)
	}
}
