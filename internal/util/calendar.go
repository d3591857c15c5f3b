package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionClock performs regular-trading-session time arithmetic in a single
// canonical exchange timezone. All session windowing in the simulator goes
// through it so that wall-clock boundaries are never recomputed ad hoc.
type SessionClock struct {
	loc              *time.Location
	openHH, openMM   int
	closeHH, closeMM int
	cutoffMinutes    int
}

// NewSessionClock creates a SessionClock for the given timezone, open/close
// wall-clock times in "HH:MM" form, and decision cutoff offset in minutes
// after the open.
func NewSessionClock(timezone, open, close string, cutoffMinutes int) (*SessionClock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	oh, om, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	ch, cm, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	if oh*60+om >= ch*60+cm {
		return nil, fmt.Errorf("session open %s must precede close %s", open, close)
	}
	return &SessionClock{
		loc:     loc,
		openHH:  oh, openMM: om,
		closeHH: ch, closeMM: cm,
		cutoffMinutes: cutoffMinutes,
	}, nil
}

func parseClock(s string) (hh, mm int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad clock value %q, want HH:MM", s)
	}
	hh, err = strconv.Atoi(parts[0])
	if err == nil {
		mm, err = strconv.Atoi(parts[1])
	}
	if err != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("bad clock value %q, want HH:MM", s)
	}
	return hh, mm, nil
}

// Location returns the clock's exchange timezone.
func (c *SessionClock) Location() *time.Location {
	return c.loc
}

// Window returns the session open and close instants for a YYYY-MM-DD date.
func (c *SessionClock) Window(date string) (open, close time.Time, err error) {
	d, err := time.ParseInLocation("2006-01-02", date, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad trade date %q: %w", date, err)
	}
	open = time.Date(d.Year(), d.Month(), d.Day(), c.openHH, c.openMM, 0, 0, c.loc)
	close = time.Date(d.Year(), d.Month(), d.Day(), c.closeHH, c.closeMM, 0, 0, c.loc)
	return open, close, nil
}

// DecisionTime returns the decision cutoff for a date: session open plus the
// configured offset.
func (c *SessionClock) DecisionTime(date string) (time.Time, error) {
	open, _, err := c.Window(date)
	if err != nil {
		return time.Time{}, err
	}
	return open.Add(time.Duration(c.cutoffMinutes) * time.Minute), nil
}

// InSession reports whether t falls within the regular session of its own
// day: open ≤ t < close, compared in the exchange timezone. Bars are
// identified by their start timestamp, so a bar starting exactly at the
// close belongs to after-hours and is excluded.
func (c *SessionClock) InSession(t time.Time) bool {
	local := t.In(c.loc)
	mins := local.Hour()*60 + local.Minute()
	return mins >= c.openHH*60+c.openMM && mins < c.closeHH*60+c.closeMM
}

// TradeDate returns the YYYY-MM-DD calendar date of t in the exchange
// timezone.
func (c *SessionClock) TradeDate(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// IsWeekday reports whether t is Monday–Friday in the exchange timezone.
// Exchange holidays are not modelled here; the backtest derives its calendar
// from observed data, and the live scheduler simply finds no bars on a
// holiday.
func (c *SessionClock) IsWeekday(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
