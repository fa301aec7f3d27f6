package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Season names follow the Northern-hemisphere meteorological convention.
const (
	SeasonDJF = "DJF"
	SeasonMAM = "MAM"
	SeasonJJA = "JJA"
	SeasonSON = "SON"
	SeasonAll = "all"
)

// Seasons lists the four calendar seasons in canonical order.
var Seasons = []string{SeasonDJF, SeasonMAM, SeasonJJA, SeasonSON}

// Season buckets a timestamp into its 3-month meteorological season:
// {12,1,2} DJF, {3,4,5} MAM, {6,7,8} JJA, {9,10,11} SON.
func Season(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return SeasonDJF
	case time.March, time.April, time.May:
		return SeasonMAM
	case time.June, time.July, time.August:
		return SeasonJJA
	default:
		return SeasonSON
	}
}

// ParseSteps parses a forecast-step range "start/stop/step" (hours, stop
// inclusive) into the list of step values, e.g. "0/120/6" -> 0,6,...,120.
// Malformed input is a ConfigurationError.
func ParseSteps(s string) ([]int, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("expected steps in format 'start/stop/step', got %q", s)}
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("expected steps in format 'start/stop/step', got %q", s)}
		}
		vals[i] = v
	}
	start, stop, step := vals[0], vals[1], vals[2]
	if step <= 0 || stop < start {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("invalid step range %q", s)}
	}
	var steps []int
	for v := start; v <= stop; v += step {
		steps = append(steps, v)
	}
	return steps, nil
}

// StepsToLeadTimes converts hour steps to lead-time durations.
func StepsToLeadTimes(steps []int) []time.Duration {
	out := make([]time.Duration, len(steps))
	for i, s := range steps {
		out[i] = time.Duration(s) * time.Hour
	}
	return out
}
