// Package markethours provides market-hours detection for US equities.
package markethours

import (
	"time"
)

// Regular session bounds for NYSE/Nasdaq, in exchange-local time.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// Clock reports whether the US equity market is open. Holidays are not
// modeled; closed-market days simply produce cycles where the broker would
// reject orders, which the pipeline already tolerates.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a market clock for the exchange timezone.
// The timezone defaults to America/New_York when tz is empty.
func NewClock(tz string) (*Clock, error) {
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewClockAt creates a clock with a custom time source, for tests.
func NewClockAt(tz string, now func() time.Time) (*Clock, error) {
	c, err := NewClock(tz)
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// IsOpen returns true during the regular session (09:30-16:00 ET, weekdays).
func (c *Clock) IsOpen() bool {
	now := c.now().In(c.loc)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	open := time.Date(now.Year(), now.Month(), now.Day(), openHour, openMinute, 0, 0, c.loc)
	close := time.Date(now.Year(), now.Month(), now.Day(), closeHour, closeMinute, 0, 0, c.loc)

	return !now.Before(open) && now.Before(close)
}

// NextOpen returns the next regular-session opening time.
func (c *Clock) NextOpen() time.Time {
	now := c.now().In(c.loc)

	next := time.Date(now.Year(), now.Month(), now.Day(), openHour, openMinute, 0, 0, c.loc)

	// Today's bell has already rung: start looking from tomorrow.
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// Location returns the exchange timezone, used to anchor cron schedules.
func (c *Clock) Location() *time.Location {
	return c.loc
}
