package model

import "time"

// Window is a closed time range [From, To] used by every source query.
type Window struct {
	From time.Time
	To   time.Time
}

// LookbackWindow returns the window covering the last days days up to now.
func LookbackWindow(now time.Time, days int) Window {
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}
