package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSpec indicates a trigger specification that can never fire or
// mixes variants. Registration of a job carrying such a spec must fail;
// other jobs are unaffected.
var ErrInvalidSpec = errors.New("trigger: invalid spec")

// Kind selects the trigger variant.
type Kind string

const (
	KindInterval Kind = "interval"
	KindCalendar Kind = "calendar"
	KindOneShot  Kind = "oneshot"
)

// scanHorizon bounds the calendar candidate scan. A calendar spec with no
// match inside the horizon (e.g. day=30 month=2) reports no further runs
// instead of scanning forever.
const scanHorizon = 5 * 366 * 24 * time.Hour

// Spec describes when a job should fire. Exactly one variant's fields are
// populated; Validate enforces this. Calendar fields are pointers where nil
// means wildcard.
type Spec struct {
	Kind Kind `json:"kind" toml:"kind"`

	// Interval fields. The interval is the sum of all four.
	Seconds int `json:"seconds,omitempty" toml:"seconds"`
	Minutes int `json:"minutes,omitempty" toml:"minutes"`
	Hours   int `json:"hours,omitempty" toml:"hours"`
	Days    int `json:"days,omitempty" toml:"days"`

	// Calendar fields, nil = wildcard. DayOfWeek follows time.Weekday
	// (0 = Sunday). When both Day and DayOfWeek are set a candidate must
	// satisfy both.
	Year      *int `json:"year,omitempty" toml:"year"`
	Month     *int `json:"month,omitempty" toml:"month"`
	Day       *int `json:"day,omitempty" toml:"day"`
	DayOfWeek *int `json:"day_of_week,omitempty" toml:"day_of_week"`
	Hour      *int `json:"hour,omitempty" toml:"hour"`
	Minute    *int `json:"minute,omitempty" toml:"minute"`
	Second    *int `json:"second,omitempty" toml:"second"`

	// OneShot field.
	RunAt time.Time `json:"run_at,omitempty" toml:"run_at"`
}

// NewInterval builds an interval spec from a duration, normalized into
// days/hours/minutes/seconds.
func NewInterval(every time.Duration) Spec {
	secs := int(every / time.Second)
	return Spec{
		Kind:    KindInterval,
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

// NewOneShot builds a one-shot spec that fires at the given time.
func NewOneShot(runAt time.Time) Spec {
	return Spec{Kind: KindOneShot, RunAt: runAt}
}

// Interval returns the total duration of an interval spec.
func (s Spec) Interval() time.Duration {
	return time.Duration(s.Seconds)*time.Second +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Days)*24*time.Hour
}

// Validate checks that exactly one variant is populated and that the
// populated variant can fire at least once.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindInterval:
		if s.Seconds < 0 || s.Minutes < 0 || s.Hours < 0 || s.Days < 0 {
			return fmt.Errorf("%w: interval fields must be non-negative", ErrInvalidSpec)
		}
		if s.Interval() <= 0 {
			return fmt.Errorf("%w: interval trigger requires at least one positive field", ErrInvalidSpec)
		}
		if s.hasCalendarFields() || !s.RunAt.IsZero() {
			return fmt.Errorf("%w: interval trigger must not set calendar or one-shot fields", ErrInvalidSpec)
		}
	case KindCalendar:
		if !s.hasCalendarFields() {
			return fmt.Errorf("%w: calendar trigger requires at least one non-wildcard field", ErrInvalidSpec)
		}
		if s.Interval() != 0 || !s.RunAt.IsZero() {
			return fmt.Errorf("%w: calendar trigger must not set interval or one-shot fields", ErrInvalidSpec)
		}
		if err := s.validateCalendarRanges(); err != nil {
			return err
		}
	case KindOneShot:
		if s.RunAt.IsZero() {
			return fmt.Errorf("%w: one-shot trigger requires run_at", ErrInvalidSpec)
		}
		if s.Interval() != 0 || s.hasCalendarFields() {
			return fmt.Errorf("%w: one-shot trigger must not set interval or calendar fields", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	return nil
}

func (s Spec) hasCalendarFields() bool {
	return s.Year != nil || s.Month != nil || s.Day != nil ||
		s.DayOfWeek != nil || s.Hour != nil || s.Minute != nil || s.Second != nil
}

func (s Spec) validateCalendarRanges() error {
	checks := []struct {
		name     string
		val      *int
		min, max int
	}{
		{"month", s.Month, 1, 12},
		{"day", s.Day, 1, 31},
		{"day_of_week", s.DayOfWeek, 0, 6},
		{"hour", s.Hour, 0, 23},
		{"minute", s.Minute, 0, 59},
		{"second", s.Second, 0, 59},
	}
	for _, c := range checks {
		if c.val != nil && (*c.val < c.min || *c.val > c.max) {
			return fmt.Errorf("%w: %s %d out of range [%d, %d]", ErrInvalidSpec, c.name, *c.val, c.min, c.max)
		}
	}
	return nil
}

// Next computes the next fire time strictly after 'after', evaluated in the
// given location. The second return is false when the trigger has no further
// runs (a one-shot whose time has passed, or a calendar spec with no match
// inside the scan horizon).
func (s Spec) Next(after time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	switch s.Kind {
	case KindInterval:
		return after.Add(s.Interval()), true

	case KindOneShot:
		if s.RunAt.After(after) {
			return s.RunAt, true
		}
		return time.Time{}, false

	case KindCalendar:
		return s.nextCalendar(after.In(loc))
	}

	return time.Time{}, false
}

// nextCalendar scans forward for the smallest time strictly after 'after'
// matching all non-wildcard fields. Step granularity is one minute unless a
// second field is set.
func (s Spec) nextCalendar(after time.Time) (time.Time, bool) {
	step := time.Minute
	if s.Second != nil {
		step = time.Second
	}

	current := after.Truncate(step).Add(step)
	limit := after.Add(scanHorizon)

	for current.Before(limit) {
		if s.matches(current) {
			return current, true
		}
		current = s.advance(current, step)
	}

	return time.Time{}, false
}

// matches checks whether a candidate time satisfies every non-wildcard field.
// Day-of-month and day-of-week must both hold when both are set.
func (s Spec) matches(t time.Time) bool {
	if s.Year != nil && t.Year() != *s.Year {
		return false
	}
	if s.Month != nil && int(t.Month()) != *s.Month {
		return false
	}
	if s.Day != nil && t.Day() != *s.Day {
		return false
	}
	if s.DayOfWeek != nil && int(t.Weekday()) != *s.DayOfWeek {
		return false
	}
	if s.Hour != nil && t.Hour() != *s.Hour {
		return false
	}
	if s.Minute != nil && t.Minute() != *s.Minute {
		return false
	}
	if s.Second != nil && t.Second() != *s.Second {
		return false
	}
	return true
}

// advance moves the candidate forward, skipping whole days or hours when the
// date components already rule the current day out. Keeps the scan cheap for
// sparse specs like yearly dates without changing which candidate matches
// first.
func (s Spec) advance(t time.Time, step time.Duration) time.Time {
	dateOK := (s.Year == nil || t.Year() == *s.Year) &&
		(s.Month == nil || int(t.Month()) == *s.Month) &&
		(s.Day == nil || t.Day() == *s.Day) &&
		(s.DayOfWeek == nil || int(t.Weekday()) == *s.DayOfWeek)

	if !dateOK {
		// Jump to the start of the next day.
		next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
		return next
	}

	if s.Hour != nil && t.Hour() != *s.Hour {
		// Jump to the start of the next hour.
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
	}

	return t.Add(step)
}

// Misfired reports whether a fire scheduled at 'scheduled' has been missed by
// more than the grace time as of 'now'. A zero grace means any past fire is
// treated as misfired.
func Misfired(scheduled, now time.Time, grace time.Duration) bool {
	return now.Sub(scheduled) > grace
}

// Describe returns a short human-readable summary of the trigger, stored as
// the job row's schedule expression.
func (s Spec) Describe() string {
	switch s.Kind {
	case KindInterval:
		return "every " + s.Interval().String()
	case KindOneShot:
		return "once at " + s.RunAt.Format(time.RFC3339)
	case KindCalendar:
		parts := []string{}
		appendField := func(name string, v *int) {
			if v != nil {
				parts = append(parts, fmt.Sprintf("%s=%d", name, *v))
			}
		}
		appendField("year", s.Year)
		appendField("month", s.Month)
		appendField("day", s.Day)
		appendField("day_of_week", s.DayOfWeek)
		appendField("hour", s.Hour)
		appendField("minute", s.Minute)
		appendField("second", s.Second)
		return "calendar " + strings.Join(parts, " ")
	}
	return "unknown"
}
