package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// ScheduleWindow is how far from the configured time a tick still counts as due.
const ScheduleWindow = time.Minute

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// Schedule describes when a scheduled workflow scans its records.
type Schedule struct {
	Frequency  string `json:"frequency"            validate:"required,oneof=daily weekly monthly"`
	Time       string `json:"time"                 validate:"required"`
	DayOfWeek  *int   `json:"dayOfWeek,omitempty"  validate:"omitempty,min=0,max=6"`
	DayOfMonth *int   `json:"dayOfMonth,omitempty" validate:"omitempty,min=1,max=31"`
	Timezone   string `json:"timezone,omitempty"`
}

// Location returns the schedule's time zone, UTC when unset or unknown.
func (s *Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// CronExpression renders the schedule as a 5-field cron expression for the month containing ref.
// A day of month past the end of that month is clamped to its last day.
func (s *Schedule) CronExpression(ref time.Time) (string, error) {
	clock, err := time.Parse("15:04", s.Time)
	if err != nil {
		return "", fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, s.Time)
	}

	minute, hour := clock.Minute(), clock.Hour()

	switch s.Frequency {
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case FrequencyWeekly:
		if s.DayOfWeek == nil {
			return "", fmt.Errorf("%w: weekly schedule requires dayOfWeek", ErrInvalidSchedule)
		}

		return fmt.Sprintf("%d %d * * %d", minute, hour, *s.DayOfWeek), nil
	case FrequencyMonthly:
		if s.DayOfMonth == nil {
			return "", fmt.Errorf("%w: monthly schedule requires dayOfMonth", ErrInvalidSchedule)
		}

		day := *s.DayOfMonth
		if last := daysIn(ref); day > last {
			day = last
		}

		return fmt.Sprintf("%d %d %d * *", minute, hour, day), nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, s.Frequency)
	}
}

// Validate checks the schedule can be turned into a cron expression.
func (s *Schedule) Validate() error {
	expr, err := s.CronExpression(time.Now())
	if err != nil {
		return err
	}

	_, err = scheduleParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return nil
}

// IsDue reports whether a scheduled pass should run at now: an occurrence lies within
// ScheduleWindow of now and the workflow has not already been triggered for it. A trigger on the
// occurrence's calendar day also counts, so a schedule fires at most once per day.
func (s *Schedule) IsDue(now time.Time, lastTriggeredAt *time.Time) (bool, error) {
	loc := s.Location()
	local := now.In(loc)

	expr, err := s.CronExpression(local)
	if err != nil {
		return false, err
	}

	cronSchedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	next := cronSchedule.Next(local.Add(-ScheduleWindow - time.Second))
	if next.After(local.Add(ScheduleWindow)) {
		return false, nil
	}

	if lastTriggeredAt != nil {
		last := lastTriggeredAt.In(loc)
		if !last.Before(next.Add(-ScheduleWindow)) || sameDay(last, next) {
			return false, nil
		}
	}

	return true, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
