package ics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/outlookcal/internal/dates"
	"github.com/tazhate/outlookcal/internal/domain"
)

// Export renders the confirmed event list as an iCalendar feed. All-day
// events become DATE values with their exclusive DTEND preserved; timed
// events become UTC datetimes.
func Export(events []domain.CalendarEvent) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//outlookcal//Calendar Sync//EN")

	now := time.Now().UTC()

	for _, event := range events {
		start, err := dates.ParseInstant(event.StartDate)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", event.ID, err)
		}
		end, err := dates.ParseInstant(event.EndDate)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", event.ID, err)
		}

		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, event.ID)
		vevent.Props.SetText(ical.PropSummary, event.Name)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)

		if event.AllDay {
			vevent.Props.SetDate(ical.PropDateTimeStart, start.UTC())
			vevent.Props.SetDate(ical.PropDateTimeEnd, end.UTC())
		} else {
			vevent.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
		}

		cal.Children = append(cal.Children, vevent.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
