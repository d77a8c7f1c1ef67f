// Package session classifies instants into US equity trading sessions.
package session

import (
	"time"
	_ "time/tzdata"
)

type Label string

const (
	Pre     Label = "pre"
	Regular Label = "regular"
	Post    Label = "post"
	Closed  Label = "closed"
)

// Boundaries in minutes after midnight, exchange time.
const (
	preOpen      = 4 * 60
	regularOpen  = 9*60 + 30
	regularClose = 16 * 60
	postClose    = 20 * 60
)

var exchange = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Location returns the exchange time zone.
func Location() *time.Location {
	return exchange
}

// IsWeekend reports whether t falls on a Saturday or Sunday, exchange time.
func IsWeekend(t time.Time) bool {
	switch t.In(exchange).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// LabelAt returns the session t falls in. Weekends are always closed;
// exchange holidays are not known.
func LabelAt(t time.Time) Label {
	if IsWeekend(t) {
		return Closed
	}
	et := t.In(exchange)
	m := et.Hour()*60 + et.Minute()
	switch {
	case m >= preOpen && m < regularOpen:
		return Pre
	case m >= regularOpen && m < regularClose:
		return Regular
	case m >= regularClose && m < postClose:
		return Post
	default:
		return Closed
	}
}

// Trading reports whether t falls in the pre, regular or post session of a weekday.
func Trading(t time.Time) bool {
	return LabelAt(t) != Closed
}

// Bounds returns the window of the session t falls in, on t's exchange date.
// Outside extended hours the whole 04:00-20:00 day is returned.
func Bounds(t time.Time) (from, to time.Time) {
	et := t.In(exchange)
	at := func(minutes int) time.Time {
		return time.Date(et.Year(), et.Month(), et.Day(), minutes/60, minutes%60, 0, 0, exchange)
	}

	switch LabelAt(t) {
	case Pre:
		return at(preOpen), at(regularOpen)
	case Regular:
		return at(regularOpen), at(regularClose)
	case Post:
		return at(regularClose), at(postClose)
	default:
		return at(preOpen), at(postClose)
	}
}
