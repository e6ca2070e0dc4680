package clock

import "time"

const DateLayout = "2006-01-02"

// Clock answers every "now" and "today" question against one configured location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// WithNow returns a copy of the clock that reads the time from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// DayBounds returns the first and the last instant of the calendar day containing t.
func (c *Clock) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(c.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

func (c *Clock) Today() (time.Time, time.Time) {
	return c.DayBounds(c.Now())
}

// WorkDate is the calendar date of t in the configured location.
func (c *Clock) WorkDate(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

func (c *Clock) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, c.loc)
}
