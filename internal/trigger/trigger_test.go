package trigger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

// =============================================================================
// Validation Tests
// =============================================================================

// TestValidate_IntervalRequiresField verifies that an interval trigger with no
// fields set fails validation.
func TestValidate_IntervalRequiresField(t *testing.T) {
	spec := Spec{Kind: KindInterval}

	err := spec.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty interval")
	}

	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

// TestValidate_IntervalValid verifies that a populated interval trigger passes.
func TestValidate_IntervalValid(t *testing.T) {
	spec := Spec{Kind: KindInterval, Minutes: 5}

	if err := spec.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

// TestValidate_CalendarRequiresField verifies that a calendar trigger with all
// wildcards fails validation.
func TestValidate_CalendarRequiresField(t *testing.T) {
	spec := Spec{Kind: KindCalendar}

	if err := spec.Validate(); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

// TestValidate_CalendarRanges verifies that out-of-range calendar fields are
// rejected.
func TestValidate_CalendarRanges(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
	}{
		{"month 13", Spec{Kind: KindCalendar, Month: intPtr(13)}},
		{"day 32", Spec{Kind: KindCalendar, Day: intPtr(32)}},
		{"hour 24", Spec{Kind: KindCalendar, Hour: intPtr(24)}},
		{"minute 60", Spec{Kind: KindCalendar, Minute: intPtr(60)}},
		{"day_of_week 7", Spec{Kind: KindCalendar, DayOfWeek: intPtr(7)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.spec.Validate(); !errors.Is(err, ErrInvalidSpec) {
				t.Errorf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

// TestValidate_MixedVariants verifies that mixing variant fields is rejected.
func TestValidate_MixedVariants(t *testing.T) {
	spec := Spec{Kind: KindInterval, Minutes: 1, Hour: intPtr(3)}

	if err := spec.Validate(); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

// TestValidate_OneShotRequiresRunAt verifies that a one-shot trigger needs a
// run time.
func TestValidate_OneShotRequiresRunAt(t *testing.T) {
	spec := Spec{Kind: KindOneShot}

	if err := spec.Validate(); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

// TestValidate_UnknownKind verifies that an unrecognized kind is rejected.
func TestValidate_UnknownKind(t *testing.T) {
	spec := Spec{Kind: "cron"}

	if err := spec.Validate(); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

// =============================================================================
// Interval Tests
// =============================================================================

// TestNext_IntervalSumsFields verifies that the interval is the sum of all
// four duration fields.
func TestNext_IntervalSumsFields(t *testing.T) {
	spec := Spec{Kind: KindInterval, Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := after.Add(24*time.Hour + 2*time.Hour + 3*time.Minute + 4*time.Second)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// TestNewInterval_RoundTrip verifies that NewInterval normalizes a duration
// into fields that sum back to the same duration.
func TestNewInterval_RoundTrip(t *testing.T) {
	every := 26*time.Hour + 31*time.Minute + 5*time.Second

	spec := NewInterval(every)
	if spec.Interval() != every {
		t.Errorf("expected %v, got %v", every, spec.Interval())
	}

	if spec.Days != 1 || spec.Hours != 2 || spec.Minutes != 31 || spec.Seconds != 5 {
		t.Errorf("unexpected field split: %+v", spec)
	}
}

// =============================================================================
// One-Shot Tests
// =============================================================================

// TestNext_OneShotFuture verifies that a future one-shot returns its run time.
func TestNext_OneShotFuture(t *testing.T) {
	runAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	spec := NewOneShot(runAt)
	after := runAt.Add(-time.Hour)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	if !next.Equal(runAt) {
		t.Errorf("expected %v, got %v", runAt, next)
	}
}

// TestNext_OneShotExhausted verifies that a one-shot whose time has passed
// reports no further runs.
func TestNext_OneShotExhausted(t *testing.T) {
	runAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	spec := NewOneShot(runAt)

	if _, ok := spec.Next(runAt, time.UTC); ok {
		t.Error("expected no further runs at exactly run_at")
	}

	if _, ok := spec.Next(runAt.Add(time.Minute), time.UTC); ok {
		t.Error("expected no further runs after run_at")
	}
}

// =============================================================================
// Calendar Tests
// =============================================================================

// TestNext_CalendarDaily verifies the simple daily case: hour and minute set,
// everything else wildcard.
func TestNext_CalendarDaily(t *testing.T) {
	spec := Spec{Kind: KindCalendar, Hour: intPtr(3), Minute: intPtr(30)}
	after := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := time.Date(2026, 3, 11, 3, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// TestNext_CalendarStrictlyAfter verifies that a candidate equal to 'after' is
// not returned.
func TestNext_CalendarStrictlyAfter(t *testing.T) {
	spec := Spec{Kind: KindCalendar, Minute: intPtr(0)}
	after := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// TestNext_CalendarMonthRollover verifies rollover across a month boundary.
func TestNext_CalendarMonthRollover(t *testing.T) {
	spec := Spec{Kind: KindCalendar, Day: intPtr(1), Hour: intPtr(0), Minute: intPtr(0)}
	after := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// TestNext_CalendarYearRollover verifies rollover across a year boundary.
func TestNext_CalendarYearRollover(t *testing.T) {
	spec := Spec{
		Kind:   KindCalendar,
		Month:  intPtr(1),
		Day:    intPtr(1),
		Hour:   intPtr(0),
		Minute: intPtr(0),
	}
	after := time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// TestNext_CalendarDayAndWeekdayBothRequired verifies that a candidate must
// satisfy day-of-month AND day-of-week when both are set.
func TestNext_CalendarDayAndWeekdayBothRequired(t *testing.T) {
	// Day 13 that is also a Friday. After 2026-01-01, the first Friday the
	// 13th is 2026-02-13 (2026-01-13 is a Tuesday).
	spec := Spec{
		Kind:      KindCalendar,
		Day:       intPtr(13),
		DayOfWeek: intPtr(int(time.Friday)),
		Hour:      intPtr(9),
		Minute:    intPtr(0),
	}
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := time.Date(2026, 2, 13, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if next.Weekday() != time.Friday {
		t.Errorf("expected a Friday, got %v", next.Weekday())
	}
}

// TestNext_CalendarSecondGranularity verifies that setting a second field
// produces second-level fire times.
func TestNext_CalendarSecondGranularity(t *testing.T) {
	spec := Spec{Kind: KindCalendar, Second: intPtr(30)}
	after := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	want := time.Date(2026, 3, 10, 4, 0, 30, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// TestNext_CalendarImpossibleDate verifies that a spec that can never match
// reports no further runs instead of scanning forever.
func TestNext_CalendarImpossibleDate(t *testing.T) {
	spec := Spec{Kind: KindCalendar, Month: intPtr(2), Day: intPtr(30)}
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := spec.Next(after, time.UTC); ok {
		t.Error("expected no further runs for Feb 30")
	}
}

// TestNext_CalendarTimezone verifies that calendar fields are evaluated in the
// provided location, not UTC.
func TestNext_CalendarTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}

	spec := Spec{Kind: KindCalendar, Hour: intPtr(3), Minute: intPtr(0)}
	after := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	next, ok := spec.Next(after, loc)
	if !ok {
		t.Fatal("expected a next fire time")
	}

	if next.In(loc).Hour() != 3 {
		t.Errorf("expected hour 3 in %v, got %d", loc, next.In(loc).Hour())
	}
}

// =============================================================================
// Misfire Tests
// =============================================================================

// TestMisfired verifies misfire classification against the grace time.
func TestMisfired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	grace := 5 * time.Minute

	if Misfired(now.Add(-time.Minute), now, grace) {
		t.Error("fire one minute late should be within grace")
	}

	if !Misfired(now.Add(-10*time.Minute), now, grace) {
		t.Error("fire ten minutes late should be misfired")
	}

	if Misfired(now.Add(time.Minute), now, grace) {
		t.Error("future fire should never be misfired")
	}
}

// =============================================================================
// Serialization Tests
// =============================================================================

// TestSpec_JSONRoundTrip verifies that a calendar spec survives the job_data
// serialization used by the store and backup files.
func TestSpec_JSONRoundTrip(t *testing.T) {
	spec := Spec{
		Kind:      KindCalendar,
		Day:       intPtr(1),
		DayOfWeek: intPtr(1),
		Hour:      intPtr(4),
		Minute:    intPtr(15),
	}

	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Spec
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Kind != KindCalendar {
		t.Errorf("expected kind calendar, got %s", decoded.Kind)
	}
	if decoded.Day == nil || *decoded.Day != 1 {
		t.Error("day field lost in round trip")
	}
	if decoded.Hour == nil || *decoded.Hour != 4 {
		t.Error("hour field lost in round trip")
	}
	if decoded.Second != nil {
		t.Error("expected unset second to stay nil")
	}
}

// TestDescribe verifies the human-readable schedule summaries.
func TestDescribe(t *testing.T) {
	interval := Spec{Kind: KindInterval, Minutes: 90}
	if got := interval.Describe(); got != "every 1h30m0s" {
		t.Errorf("unexpected interval description: %s", got)
	}

	cal := Spec{Kind: KindCalendar, Hour: intPtr(3), Minute: intPtr(0)}
	if got := cal.Describe(); got != "calendar hour=3 minute=0" {
		t.Errorf("unexpected calendar description: %s", got)
	}
}
