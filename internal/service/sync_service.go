package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tazhate/outlookcal/internal/clients/graph"
	"github.com/tazhate/outlookcal/internal/dates"
	"github.com/tazhate/outlookcal/internal/domain"
)

// RemoteCalendar is the slice of the graph client the reconciler needs.
type RemoteCalendar interface {
	FetchWeek(ctx context.Context, tz string) ([]graph.Event, error)
	FetchPast(ctx context.Context, tz string, horizonDays int) ([]graph.Event, error)
	FetchFuture(ctx context.Context, tz string, horizonDays int) ([]graph.Event, error)
	CreateEvent(ctx context.Context, ev *graph.Event, tz string) (*graph.Event, error)
	UpdateEvent(ctx context.Context, id string, ev *graph.Event, tz string) (*graph.Event, error)
	DeleteEvent(ctx context.Context, id, tz string) error
}

// ErrorReporter receives sync failures for display. Implementations keep
// a single current-error slot: a new report supersedes the previous one.
type ErrorReporter interface {
	Report(op string, err error)
}

// SyncService reconciles widget edit intents with the remote calendar.
// The event list it holds is a cache of confirmed server state: it is
// only ever updated from a successful remote response, never
// optimistically, and always by whole-list replacement.
type SyncService struct {
	remote      RemoteCalendar
	reporter    ErrorReporter
	timezone    string
	loc         *time.Location
	horizonDays int

	mu     sync.RWMutex
	events []domain.CalendarEvent

	// inflight serializes mutations per event id, so a rapid
	// update-then-delete on one event applies in issuance order.
	// Distinct ids stay free to run concurrently. Entries are
	// refcounted and removed once no goroutine holds or awaits them.
	inflightMu sync.Mutex
	inflight   map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewSyncService creates a reconciler for the given IANA or Windows
// timezone name.
func NewSyncService(remote RemoteCalendar, reporter ErrorReporter, timezone string, horizonDays int) (*SyncService, error) {
	loc, err := dates.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	if horizonDays <= 0 {
		horizonDays = graph.DefaultHorizonDays
	}
	return &SyncService{
		remote:      remote,
		reporter:    reporter,
		timezone:    timezone,
		loc:         loc,
		horizonDays: horizonDays,
		inflight:    make(map[string]*idLock),
	}, nil
}

// Timezone returns the timezone the service reads and writes with.
func (s *SyncService) Timezone() string {
	return s.timezone
}

// Events returns a copy of the current confirmed event list.
func (s *SyncService) Events() []domain.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CalendarEvent, len(s.events))
	copy(out, s.events)
	return out
}

// LoadWeek replaces the local state with the current week's events.
func (s *SyncService) LoadWeek(ctx context.Context) error {
	remote, err := s.remote.FetchWeek(ctx, s.timezone)
	if err != nil {
		s.reporter.Report("load week", err)
		return fmt.Errorf("fetch week: %w", err)
	}

	events, err := s.fromRemoteAll(remote)
	if err != nil {
		s.reporter.Report("load week", err)
		return err
	}

	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
	return nil
}

// LoadSurrounding fetches the past and future windows concurrently and
// merges them around the already-loaded week: past events in front,
// future events behind. The three windows are disjoint by construction,
// so the merge cannot duplicate anything.
func (s *SyncService) LoadSurrounding(ctx context.Context) error {
	var (
		wg           sync.WaitGroup
		past, future []graph.Event
		pastErr      error
		futureErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		past, pastErr = s.remote.FetchPast(ctx, s.timezone, s.horizonDays)
	}()
	go func() {
		defer wg.Done()
		future, futureErr = s.remote.FetchFuture(ctx, s.timezone, s.horizonDays)
	}()
	wg.Wait()

	if err := errors.Join(pastErr, futureErr); err != nil {
		s.reporter.Report("load surrounding windows", err)
		return fmt.Errorf("fetch surrounding windows: %w", err)
	}

	pastEvents, err := s.fromRemoteAll(past)
	if err != nil {
		s.reporter.Report("load surrounding windows", err)
		return err
	}
	futureEvents, err := s.fromRemoteAll(future)
	if err != nil {
		s.reporter.Report("load surrounding windows", err)
		return err
	}

	s.mu.Lock()
	merged := make([]domain.CalendarEvent, 0, len(pastEvents)+len(s.events)+len(futureEvents))
	merged = append(merged, pastEvents...)
	merged = append(merged, s.events...)
	merged = append(merged, futureEvents...)
	s.events = merged
	s.mu.Unlock()
	return nil
}

// Apply processes one edit intent from the widget's data store. Records
// are dispatched independently; mutations on the same event id are
// serialized, everything else may be in flight concurrently. Display-only
// actions (dataset, filter, …) never persist and are ignored.
func (s *SyncService) Apply(ctx context.Context, action domain.Action, records []domain.ChangeRecord) error {
	switch action {
	case domain.ActionAdd, domain.ActionUpdate, domain.ActionRemove:
	default:
		return nil
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, record := range records {
		wg.Add(1)
		go func(record domain.ChangeRecord) {
			defer wg.Done()
			if err := s.applyOne(ctx, action, record); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(record)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Save handles the widget's after-save callback: a record that still
// carries a generated id becomes a create, anything else an update.
func (s *SyncService) Save(ctx context.Context, record domain.ChangeRecord) error {
	if record.IsPersisted() {
		return s.applyOne(ctx, domain.ActionUpdate, record)
	}
	record.CopyOf = true
	return s.applyOne(ctx, domain.ActionAdd, record)
}

func (s *SyncService) applyOne(ctx context.Context, action domain.Action, record domain.ChangeRecord) error {
	switch action {
	case domain.ActionAdd:
		// A record without the copy-of-template flag is a hydration
		// echo, not a new event.
		if !record.CopyOf {
			return nil
		}
		return s.add(ctx, record)
	case domain.ActionUpdate:
		// An event that was never persisted has nothing to update
		// remotely; the eventual add is what persists it.
		if !record.IsPersisted() {
			return nil
		}
		return s.update(ctx, record)
	case domain.ActionRemove:
		if !record.IsPersisted() {
			return nil
		}
		return s.remove(ctx, record)
	}
	return nil
}

func (s *SyncService) add(ctx context.Context, record domain.ChangeRecord) error {
	unlock := s.lockID(record.ID)
	defer unlock()

	payload, err := s.toRemote(record)
	if err != nil {
		s.reporter.Report("create event", err)
		return err
	}

	created, err := s.remote.CreateEvent(ctx, payload, s.timezone)
	if err != nil {
		s.reporter.Report("create event", err)
		return fmt.Errorf("create event: %w", err)
	}

	event, err := s.fromRemote(created)
	if err != nil {
		s.reporter.Report("create event", err)
		return err
	}

	// The server id supersedes the widget's generated one.
	s.mu.Lock()
	next := make([]domain.CalendarEvent, len(s.events), len(s.events)+1)
	copy(next, s.events)
	next = append(next, event)
	s.events = next
	s.mu.Unlock()
	return nil
}

func (s *SyncService) update(ctx context.Context, record domain.ChangeRecord) error {
	unlock := s.lockID(record.ID)
	defer unlock()

	payload, err := s.toRemote(record)
	if err != nil {
		s.reporter.Report("update event", err)
		return err
	}

	updated, err := s.remote.UpdateEvent(ctx, record.ID, payload, s.timezone)
	if err != nil {
		s.reporter.Report("update event", err)
		return fmt.Errorf("update event %s: %w", record.ID, err)
	}

	event, err := s.fromRemote(updated)
	if err != nil {
		s.reporter.Report("update event", err)
		return err
	}

	s.mu.Lock()
	next := make([]domain.CalendarEvent, len(s.events))
	for i := range s.events {
		if s.events[i].ID == record.ID {
			next[i] = event
		} else {
			next[i] = s.events[i]
		}
	}
	s.events = next
	s.mu.Unlock()
	return nil
}

func (s *SyncService) remove(ctx context.Context, record domain.ChangeRecord) error {
	unlock := s.lockID(record.ID)
	defer unlock()

	if err := s.remote.DeleteEvent(ctx, record.ID, s.timezone); err != nil {
		s.reporter.Report("delete event", err)
		return fmt.Errorf("delete event %s: %w", record.ID, err)
	}

	s.mu.Lock()
	next := make([]domain.CalendarEvent, 0, len(s.events))
	for _, ev := range s.events {
		if ev.ID != record.ID {
			next = append(next, ev)
		}
	}
	s.events = next
	s.mu.Unlock()
	return nil
}

// lockID takes the per-id mutation lock and returns its release func.
// The lock entry is dropped with the last reference, so transient widget
// ids do not accumulate over the session's lifetime.
func (s *SyncService) lockID(id string) func() {
	s.inflightMu.Lock()
	l, ok := s.inflight[id]
	if !ok {
		l = &idLock{}
		s.inflight[id] = l
	}
	l.refs++
	s.inflightMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.inflightMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.inflight, id)
		}
		s.inflightMu.Unlock()
	}
}

// toRemote builds the network payload for a widget record, normalizing
// all-day events to UTC midnight dates with an exclusive end boundary.
func (s *SyncService) toRemote(record domain.ChangeRecord) (*graph.Event, error) {
	name := record.Name
	if name == "" {
		name = domain.DefaultEventName
	}

	startDate := record.StartDate
	endDate := record.EndDate
	if record.AllDay {
		start, err := dates.ParseInstant(record.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := dates.ParseInstant(record.EndDate)
		if err != nil {
			return nil, err
		}
		utcStart, utcEnd := dates.NormalizeAllDay(start, end, s.loc)
		startDate = dates.FormatInstant(utcStart)
		endDate = dates.FormatInstant(utcEnd)
	}

	return &graph.Event{
		Subject:  name,
		IsAllDay: record.AllDay,
		Start:    graph.DateTimeTimeZone{DateTime: startDate, TimeZone: s.timezone},
		End:      graph.DateTimeTimeZone{DateTime: endDate, TimeZone: s.timezone},
	}, nil
}

// fromRemote translates a confirmed server event into the widget's
// representation. A missing timezone on the response falls back to the
// zone the write was made with.
func (s *SyncService) fromRemote(ev *graph.Event) (domain.CalendarEvent, error) {
	startTZ := ev.Start.TimeZone
	if startTZ == "" {
		startTZ = s.timezone
	}
	endTZ := ev.End.TimeZone
	if endTZ == "" {
		endTZ = s.timezone
	}

	startDate, err := dates.FormatEventDate(ev.Start.DateTime, startTZ, ev.IsAllDay)
	if err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("event %s start: %w", ev.ID, err)
	}
	endDate, err := dates.FormatEventDate(ev.End.DateTime, endTZ, ev.IsAllDay)
	if err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("event %s end: %w", ev.ID, err)
	}

	return domain.CalendarEvent{
		ID:        ev.ID,
		Name:      ev.Subject,
		StartDate: startDate,
		EndDate:   endDate,
		AllDay:    ev.IsAllDay,
	}, nil
}

func (s *SyncService) fromRemoteAll(remote []graph.Event) ([]domain.CalendarEvent, error) {
	events := make([]domain.CalendarEvent, 0, len(remote))
	for i := range remote {
		ev, err := s.fromRemote(&remote[i])
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
