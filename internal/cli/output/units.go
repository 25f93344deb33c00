package output

import "time"

// Millis formats a millisecond count as a duration ("1m30s"), or "0" for
// zero, which disables the corresponding timer.
func Millis(ms int64) string {
	if ms == 0 {
		return "0"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

// Age formats the time elapsed since t, rounded to seconds. Zero times
// print as "-".
func Age(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}

// Bool formats a flag as yes or no.
func Bool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
