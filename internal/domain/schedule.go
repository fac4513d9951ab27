package domain

import (
	"errors"
	"fmt"
	"time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

const (
	MinInterval = 1
	MaxInterval = 365
)

var (
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrMissingAnchor    = errors.New("missing anchor for frequency")
	ErrUnexpectedAnchor = errors.New("anchor not allowed for frequency")
	ErrInvalidAnchor    = errors.New("anchor out of range")
)

// Schedule is an immutable recurrence rule: frequency, interval and the
// calendar anchors the frequency requires. Anchors irrelevant to the
// frequency must be nil, not merely zero.
type Schedule struct {
	Frequency   Frequency     `json:"frequency"`
	Interval    int           `json:"interval"`
	DayOfWeek   *time.Weekday `json:"day_of_week,omitempty"`
	DayOfMonth  *int          `json:"day_of_month,omitempty"`
	MonthOfYear *time.Month   `json:"month_of_year,omitempty"`
}

func NewDailySchedule(interval int) (Schedule, error) {
	s := Schedule{Frequency: FrequencyDaily, Interval: interval}
	return s, s.Validate()
}

func NewWeeklySchedule(interval int, dayOfWeek time.Weekday) (Schedule, error) {
	s := Schedule{Frequency: FrequencyWeekly, Interval: interval, DayOfWeek: &dayOfWeek}
	return s, s.Validate()
}

func NewMonthlySchedule(interval int, dayOfMonth int) (Schedule, error) {
	s := Schedule{Frequency: FrequencyMonthly, Interval: interval, DayOfMonth: &dayOfMonth}
	return s, s.Validate()
}

func NewYearlySchedule(interval int, monthOfYear time.Month, dayOfMonth int) (Schedule, error) {
	s := Schedule{
		Frequency:   FrequencyYearly,
		Interval:    interval,
		DayOfMonth:  &dayOfMonth,
		MonthOfYear: &monthOfYear,
	}
	return s, s.Validate()
}

func (s Schedule) Validate() error {
	if s.Interval < MinInterval || s.Interval > MaxInterval {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, s.Interval)
	}

	switch s.Frequency {
	case FrequencyDaily:
		if s.DayOfWeek != nil || s.DayOfMonth != nil || s.MonthOfYear != nil {
			return fmt.Errorf("%w: daily schedules take no anchors", ErrUnexpectedAnchor)
		}
	case FrequencyWeekly:
		if s.DayOfMonth != nil || s.MonthOfYear != nil {
			return fmt.Errorf("%w: weekly schedules take only day_of_week", ErrUnexpectedAnchor)
		}
		if s.DayOfWeek == nil {
			return fmt.Errorf("%w: weekly schedules require day_of_week", ErrMissingAnchor)
		}
		if *s.DayOfWeek < time.Sunday || *s.DayOfWeek > time.Saturday {
			return fmt.Errorf("%w: day_of_week %d", ErrInvalidAnchor, *s.DayOfWeek)
		}
	case FrequencyMonthly:
		if s.DayOfWeek != nil || s.MonthOfYear != nil {
			return fmt.Errorf("%w: monthly schedules take only day_of_month", ErrUnexpectedAnchor)
		}
		if s.DayOfMonth == nil {
			return fmt.Errorf("%w: monthly schedules require day_of_month", ErrMissingAnchor)
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month %d", ErrInvalidAnchor, *s.DayOfMonth)
		}
	case FrequencyYearly:
		if s.DayOfWeek != nil {
			return fmt.Errorf("%w: yearly schedules take no day_of_week", ErrUnexpectedAnchor)
		}
		if s.DayOfMonth == nil || s.MonthOfYear == nil {
			return fmt.Errorf("%w: yearly schedules require day_of_month and month_of_year", ErrMissingAnchor)
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month %d", ErrInvalidAnchor, *s.DayOfMonth)
		}
		if *s.MonthOfYear < time.January || *s.MonthOfYear > time.December {
			return fmt.Errorf("%w: month_of_year %d", ErrInvalidAnchor, *s.MonthOfYear)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, s.Frequency)
	}

	return nil
}

// NextOccurrence returns the next date satisfying the schedule, strictly
// after the given one. Out-of-range days of month clamp to the last day of
// the target month; clamping is defined behavior, never an error. The
// result keeps the input's location with the time set to midnight.
func (s Schedule) NextOccurrence(after time.Time) time.Time {
	year, month, day := after.Date()
	loc := after.Location()

	switch s.Frequency {
	case FrequencyDaily:
		return time.Date(year, month, day+s.Interval, 0, 0, 0, 0, loc)

	case FrequencyWeekly:
		base := time.Date(year, month, day+7*s.Interval, 0, 0, 0, 0, loc)
		// Align forward within the target week. A matching weekday gives
		// an offset of zero, i.e. exactly Interval weeks later.
		offset := (int(*s.DayOfWeek) - int(base.Weekday()) + 7) % 7
		return base.AddDate(0, 0, offset)

	case FrequencyMonthly:
		return clampedDate(year, month+time.Month(s.Interval), *s.DayOfMonth, loc)

	case FrequencyYearly:
		return clampedDate(year+s.Interval, *s.MonthOfYear, *s.DayOfMonth, loc)
	}

	// Unreachable for a validated schedule.
	return time.Time{}
}

// clampedDate builds a date in the (normalized) target month, clamping the
// day to the month's length: day 31 in April yields April 30, Feb 29
// anchors fall back to Feb 28 in non-leap years.
func clampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	if last := daysIn(first.Year(), first.Month(), loc); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
