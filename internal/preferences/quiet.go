package preferences

import (
	"fmt"
	"time"
)

// clockLayout is the stored time-of-day form for quiet hours.
const clockLayout = "15:04:05"

// InQuietHours reports whether the UTC time-of-day of now falls inside
// [start, end). A window whose end precedes its start wraps midnight:
// 22:00–08:00 covers late evening and early morning.
func InQuietHours(now time.Time, start, end string) (bool, error) {
	s, err := secondOfDay(start)
	if err != nil {
		return false, fmt.Errorf("quiet_hours_start: %w", err)
	}
	e, err := secondOfDay(end)
	if err != nil {
		return false, fmt.Errorf("quiet_hours_end: %w", err)
	}

	utc := now.UTC()
	n := utc.Hour()*3600 + utc.Minute()*60 + utc.Second()

	if e < s {
		return n >= s || n < e, nil
	}
	return n >= s && n < e, nil
}

func secondOfDay(clock string) (int, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}
