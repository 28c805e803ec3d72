package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Trigger computes the next fire time for a job.
type Trigger interface {
	Next(after time.Time) time.Time
	String() string
}

// Interval fires at a fixed period.
type Interval struct {
	Every time.Duration
}

func (i Interval) Next(after time.Time) time.Time {
	return after.Add(i.Every)
}

func (i Interval) String() string {
	return fmt.Sprintf("interval[%s]", i.Every)
}

// Cron fires on a classic 5-field schedule (minute hour day-of-month
// month day-of-week), minute resolution. Supported syntax per field:
// "*", "*/n", single values, comma lists and a-b ranges.
type Cron struct {
	expr    string
	minutes [60]bool
	hours   [24]bool
	days    [32]bool
	months  [13]bool
	dows    [7]bool
}

// ParseCron parses a 5-field cron expression.
func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	c := &Cron{expr: expr}
	specs := []struct {
		field    string
		min, max int
		set      func(int)
	}{
		{fields[0], 0, 59, func(v int) { c.minutes[v] = true }},
		{fields[1], 0, 23, func(v int) { c.hours[v] = true }},
		{fields[2], 1, 31, func(v int) { c.days[v] = true }},
		{fields[3], 1, 12, func(v int) { c.months[v] = true }},
		{fields[4], 0, 6, func(v int) { c.dows[v] = true }},
	}

	for _, s := range specs {
		if err := parseField(s.field, s.min, s.max, s.set); err != nil {
			return nil, fmt.Errorf("invalid cron field %q: %w", s.field, err)
		}
	}

	return c, nil
}

func parseField(field string, min, max int, set func(int)) error {
	for _, part := range strings.Split(field, ",") {
		switch {
		case part == "*":
			for v := min; v <= max; v++ {
				set(v)
			}
		case strings.HasPrefix(part, "*/"):
			step, err := strconv.Atoi(part[2:])
			if err != nil || step <= 0 {
				return fmt.Errorf("bad step %q", part)
			}
			for v := min; v <= max; v += step {
				set(v)
			}
		case strings.Contains(part, "-"):
			bounds := strings.SplitN(part, "-", 2)
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || lo < min || hi > max || lo > hi {
				return fmt.Errorf("bad range %q", part)
			}
			for v := lo; v <= hi; v++ {
				set(v)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil || v < min || v > max {
				return fmt.Errorf("bad value %q", part)
			}
			set(v)
		}
	}
	return nil
}

func (c *Cron) matches(t time.Time) bool {
	return c.minutes[t.Minute()] &&
		c.hours[t.Hour()] &&
		c.days[t.Day()] &&
		c.months[int(t.Month())] &&
		c.dows[int(t.Weekday())]
}

func (c *Cron) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	// Four years bounds the scan even for schedules like Feb 29.
	limit := after.AddDate(4, 0, 1)
	for t.Before(limit) {
		if c.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (c *Cron) String() string {
	return fmt.Sprintf("cron[%s]", c.expr)
}
