package dates

import "time"

// Window is a half-open [Start, End) query range.
type Window struct {
	Start time.Time
	End   time.Time
}

// StartOfWeek returns midnight of the Sunday of t's week, in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.AddDate(0, 0, -int(t.Weekday())).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfWeek returns midnight of the Sunday after t's week, in loc. This is
// the exclusive upper boundary of the week window.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	return StartOfWeek(t, loc).AddDate(0, 0, 7)
}

// WeekWindow is the current Sunday-to-Sunday week around now.
func WeekWindow(now time.Time, loc *time.Location) Window {
	return Window{Start: StartOfWeek(now, loc), End: EndOfWeek(now, loc)}
}

// PastWindow covers horizonDays before now up to the start of the current
// week. Its end coincides with the week window's start, so the two never
// overlap.
func PastWindow(now time.Time, loc *time.Location, horizonDays int) Window {
	return Window{
		Start: now.Add(-time.Duration(horizonDays) * 24 * time.Hour),
		End:   StartOfWeek(now, loc),
	}
}

// FutureWindow covers horizonDays after the end of the current week.
func FutureWindow(now time.Time, loc *time.Location, horizonDays int) Window {
	end := EndOfWeek(now, loc)
	return Window{
		Start: end,
		End:   end.Add(time.Duration(horizonDays) * 24 * time.Hour),
	}
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}
