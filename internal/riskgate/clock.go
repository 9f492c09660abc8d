package riskgate

import "time"

// Clock abstracts the day-boundary source so tests can roll the calendar
// without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
