// Package timeutil provides the rolling-window helpers shared by the
// aggregation layer.
package timeutil

import "time"

// Window is a half-open [Start, End) interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// RollingWindow returns the window covering the trailing length up to now.
func RollingWindow(now time.Time, length time.Duration) Window {
	return Window{Start: now.Add(-length), End: now}
}

// Contains reports whether the timestamp falls within [Start, End).
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// StartOfMonth normalizes the timestamp to the first instant of its calendar
// month in the same location.
func StartOfMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}
