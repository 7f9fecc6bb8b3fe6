package logic

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseDuration converts "minutes:seconds" to seconds.
// Empty input, a missing colon, negative or non-numeric parts yield an absent value.
func ParseDuration(text string) NullFloat {
	mins, secs, ok := strings.Cut(strings.TrimSpace(text), ":")
	if !ok {
		return NullFloat{}
	}
	m := ParseNumber(mins)
	s := ParseNumber(secs)
	if !m.Valid || !s.Valid || m.Float64 < 0 || s.Float64 < 0 {
		return NullFloat{}
	}
	return Some(m.Float64*60 + s.Float64)
}

// ParseNumber converts a decimal numeral. Empty or non-numeric input yields an absent value.
func ParseNumber(text string) NullFloat {
	text = strings.TrimSpace(text)
	if text == "" {
		return NullFloat{}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return Some(v)
}

// ParseReading splits the "temp:rate" convention. Either side is absent
// independently when malformed; a bare number is a temperature only.
func ParseReading(text string) Reading {
	temp, ror, found := strings.Cut(strings.TrimSpace(text), ":")
	r := Reading{Temp: ParseNumber(temp)}
	if found {
		r.ROR = ParseNumber(ror)
	}
	return r
}

// FormatClock formats seconds as MM:SS.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	mins := int(seconds) / 60
	secs := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// FormatNullClock formats seconds as MM:SS, or "N/A" when absent.
func FormatNullClock(seconds NullFloat) string {
	if !seconds.Valid {
		return "N/A"
	}
	return FormatClock(seconds.Float64)
}

// FormatElapsed formats a duration as MM:SS.
func FormatElapsed(d time.Duration) string {
	return FormatClock(d.Seconds())
}
