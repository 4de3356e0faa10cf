package dates

import (
	"fmt"
	"regexp"
	"time"
)

// instantLayout is the wire format for instants: RFC3339 with fixed
// millisecond precision, which is what the widget stores and what the
// service expects back.
const instantLayout = "2006-01-02T15:04:05.000Z"

// graphLayouts are the datetime shapes Outlook returns inside a
// dateTimeTimeZone pair. The string carries no zone designator; the zone
// lives in the sibling timeZone field.
var graphLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

var trailingZeros = regexp.MustCompile(`\.0+Z?$`)

// FormatInstant renders t as a UTC instant string with millisecond precision.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}

// ParseInstant parses an ISO-8601 instant string as emitted by the widget.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t, nil
}

// parseInZone parses a zone-less Outlook datetime string in loc.
func parseInZone(s string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range graphLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse datetime %q: %w", s, lastErr)
}

// NormalizeAllDay converts an all-day range to UTC midnight instants.
// The calendar dates are taken from start and end as seen in loc,
// ignoring time of day. A zero-day span is widened to one day, because
// all-day events use an exclusive end boundary: a single-day event spans
// [day, day+1).
func NormalizeAllDay(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	s := start.In(loc)
	e := end.In(loc)

	sy, sm, sd := s.Date()
	ey, em, ed := e.Date()

	utcStart := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	utcEnd := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)

	if utcEnd.Equal(utcStart) {
		utcEnd = utcEnd.AddDate(0, 0, 1)
	}
	return utcStart, utcEnd
}

// FormatEventDate converts a datetime string returned by Outlook back into
// the widget's instant format. All-day dates are already UTC midnights, so
// they are re-emitted as instants without recomputation, whatever zone
// name rides along. UTC datetimes only get their fractional seconds
// normalized to millisecond precision, with no instant recomputation.
// Anything else is reparsed in its reported zone and re-emitted as a UTC
// instant.
func FormatEventDate(dateTime, timeZone string, allDay bool) (string, error) {
	if allDay {
		t, err := parseInZone(dateTime, time.UTC)
		if err != nil {
			return "", err
		}
		return FormatInstant(t), nil
	}
	if timeZone == "UTC" {
		if trailingZeros.MatchString(dateTime) {
			return trailingZeros.ReplaceAllString(dateTime, ".000Z"), nil
		}
		t, err := parseInZone(dateTime, time.UTC)
		if err != nil {
			return "", err
		}
		return FormatInstant(t), nil
	}

	loc, err := LoadLocation(timeZone)
	if err != nil {
		return "", err
	}
	t, err := parseInZone(dateTime, loc)
	if err != nil {
		return "", err
	}
	return FormatInstant(t), nil
}
