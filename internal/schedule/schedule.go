// Package schedule computes next trigger instants for scheduled tasks.
// It is pure: no clocks, no state, just spec + reference time in, instant out.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Kind selects how a task recurs.
type Kind string

const (
	KindCron     Kind = "cron"     // standard 5-field cron expression
	KindInterval Kind = "interval" // fixed duration after the last run
	KindOnce     Kind = "once"     // single fixed instant
)

// Valid reports whether k is a known schedule kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCron, KindInterval, KindOnce:
		return true
	}
	return false
}

// Spec describes when a task should run.
type Spec struct {
	Kind     Kind
	Cron     string        // KindCron
	Every    time.Duration // KindInterval
	At       time.Time     // KindOnce
	TimeZone string        // IANA name; empty means the process-local zone
}

// Next returns the next trigger instant strictly after the given time.
// ok is false when the spec yields no further occurrence: a one-shot already
// in the past, an unparsable cron expression, or an unknown timezone. A bad
// expression never panics; the task simply stops recurring.
func Next(spec Spec, after time.Time) (time.Time, bool) {
	switch spec.Kind {
	case KindCron:
		sched, err := cron.ParseStandard(spec.Cron)
		if err != nil {
			return time.Time{}, false
		}
		loc := time.Local
		if spec.TimeZone != "" {
			l, err := time.LoadLocation(spec.TimeZone)
			if err != nil {
				return time.Time{}, false
			}
			loc = l
		}
		next := sched.Next(after.In(loc))
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true

	case KindInterval:
		if spec.Every <= 0 {
			return time.Time{}, false
		}
		return after.Add(spec.Every), true

	case KindOnce:
		if spec.At.IsZero() || !spec.At.After(after) {
			return time.Time{}, false
		}
		return spec.At, true
	}
	return time.Time{}, false
}

// ValidateCron reports whether expr is a parsable standard cron expression.
func ValidateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
