package models

import (
	"fmt"
	"time"
)

// SemesterFor derives the "<year>-<term>" partition key from a timestamp.
// Term 1 covers January through May, term 2 covers August through December.
// June and July have no defined term and fall back to term 1 of the year.
func SemesterFor(t time.Time) string {
	t = t.UTC()
	term := 1
	if t.Month() >= time.August {
		term = 2
	}
	return fmt.Sprintf("%d-%d", t.Year(), term)
}

// CurrentSemester is SemesterFor(now).
func CurrentSemester() string {
	return SemesterFor(time.Now())
}
