package domain

import "strings"

const (
	// GeneratedIDPrefix marks events created by the widget that have not
	// been persisted to Outlook yet.
	GeneratedIDPrefix = "_generated"

	// DefaultEventName is used when an event is saved without a title.
	DefaultEventName = "New Event"
)

// CalendarEvent is the widget-facing event representation. Dates are
// ISO-8601 instant strings, which is what the calendar widget consumes
// and emits directly.
type CalendarEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	AllDay    bool   `json:"allDay"`
}

// IsPersisted reports whether the event carries a server-assigned id.
func (e *CalendarEvent) IsPersisted() bool {
	return e.ID != "" && !strings.HasPrefix(e.ID, GeneratedIDPrefix)
}

// Action is the edit intent emitted by the widget's data store.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"

	// Display-only store changes. These never persist.
	ActionDataset      Action = "dataset"
	ActionFilter       Action = "filter"
	ActionClearChanges Action = "clearchanges"
	ActionReplace      Action = "replace"
	ActionRemoveAll    Action = "removeAll"
)

// ChangeRecord is a single record inside an edit intent. CopyOf is set by
// the widget when the record was copied from the new-event template, which
// is how a genuinely new event is told apart from a hydration echo.
type ChangeRecord struct {
	CalendarEvent
	CopyOf bool `json:"copyOf,omitempty"`
}
