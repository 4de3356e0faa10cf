package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tazhate/outlookcal/internal/clients/graph"
	"github.com/tazhate/outlookcal/internal/domain"
	"github.com/tazhate/outlookcal/internal/ics"
)

type remoteStub struct {
	mu    sync.Mutex
	calls []string

	createResult *graph.Event
	updateResult *graph.Event
	err          error

	week   []graph.Event
	past   []graph.Event
	future []graph.Event

	// UpdateEvent blocks on blockUpdate when set.
	blockUpdate chan struct{}
}

func (r *remoteStub) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *remoteStub) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *remoteStub) FetchWeek(ctx context.Context, tz string) ([]graph.Event, error) {
	r.record("week")
	return r.week, r.err
}

func (r *remoteStub) FetchPast(ctx context.Context, tz string, horizonDays int) ([]graph.Event, error) {
	r.record("past")
	return r.past, r.err
}

func (r *remoteStub) FetchFuture(ctx context.Context, tz string, horizonDays int) ([]graph.Event, error) {
	r.record("future")
	return r.future, r.err
}

func (r *remoteStub) CreateEvent(ctx context.Context, ev *graph.Event, tz string) (*graph.Event, error) {
	r.record("create")
	if r.err != nil {
		return nil, r.err
	}
	if r.createResult != nil {
		return r.createResult, nil
	}
	out := *ev
	out.ID = "server-1"
	return &out, nil
}

func (r *remoteStub) UpdateEvent(ctx context.Context, id string, ev *graph.Event, tz string) (*graph.Event, error) {
	r.record("update " + id)
	if r.blockUpdate != nil {
		<-r.blockUpdate
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.updateResult != nil {
		return r.updateResult, nil
	}
	out := *ev
	out.ID = id
	return &out, nil
}

func (r *remoteStub) DeleteEvent(ctx context.Context, id, tz string) error {
	r.record("delete " + id)
	return r.err
}

type reporterStub struct {
	mu      sync.Mutex
	current string
}

func (r *reporterStub) Report(op string, err error) {
	r.mu.Lock()
	r.current = fmt.Sprintf("%s: %v", op, err)
	r.mu.Unlock()
}

func newTestService(t *testing.T, remote *remoteStub) *SyncService {
	t.Helper()
	svc, err := NewSyncService(remote, &reporterStub{}, "America/New_York", 365)
	if err != nil {
		t.Fatalf("NewSyncService: %v", err)
	}
	return svc
}

func timedRecord(id, name string) domain.ChangeRecord {
	return domain.ChangeRecord{
		CalendarEvent: domain.CalendarEvent{
			ID:        id,
			Name:      name,
			StartDate: "2024-03-11T10:00:00.000Z",
			EndDate:   "2024-03-11T11:00:00.000Z",
		},
	}
}

func TestApply_UnpersistedGuard(t *testing.T) {
	remote := &remoteStub{}
	svc := newTestService(t, remote)

	for _, action := range []domain.Action{domain.ActionUpdate, domain.ActionRemove} {
		rec := timedRecord(domain.GeneratedIDPrefix+"e1", "Draft")
		if err := svc.Apply(context.Background(), action, []domain.ChangeRecord{rec}); err != nil {
			t.Fatalf("Apply(%s): %v", action, err)
		}
	}

	if calls := remote.callLog(); len(calls) != 0 {
		t.Errorf("unpersisted edits hit the network: %v", calls)
	}
}

func TestApply_AddRequiresCopyFlag(t *testing.T) {
	remote := &remoteStub{}
	svc := newTestService(t, remote)

	// Hydration echoes come in as adds without the copy flag.
	rec := timedRecord("evt-1", "Existing")
	if err := svc.Apply(context.Background(), domain.ActionAdd, []domain.ChangeRecord{rec}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if calls := remote.callLog(); len(calls) != 0 {
		t.Errorf("hydration echo hit the network: %v", calls)
	}
}

func TestApply_AddReplacesGeneratedID(t *testing.T) {
	remote := &remoteStub{
		createResult: &graph.Event{
			ID:      "AAMkAGI2TG93AAA=",
			Subject: "Lunch",
			Start:   graph.DateTimeTimeZone{DateTime: "2024-03-11T12:00:00.0000000", TimeZone: "UTC"},
			End:     graph.DateTimeTimeZone{DateTime: "2024-03-11T13:00:00.0000000", TimeZone: "UTC"},
		},
	}
	svc := newTestService(t, remote)

	rec := timedRecord(domain.GeneratedIDPrefix+"e1", "Lunch")
	rec.CopyOf = true
	if err := svc.Apply(context.Background(), domain.ActionAdd, []domain.ChangeRecord{rec}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	events := svc.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID != "AAMkAGI2TG93AAA=" {
		t.Errorf("id = %q, want the server-assigned one", events[0].ID)
	}
	if events[0].StartDate != "2024-03-11T12:00:00.000Z" {
		t.Errorf("startDate = %q", events[0].StartDate)
	}
}

func TestApply_UpdateReplacesEntry(t *testing.T) {
	remote := &remoteStub{
		week: []graph.Event{
			{ID: "evt-41", Subject: "Before", Start: utcDT("2024-03-11T09:00:00.000Z"), End: utcDT("2024-03-11T09:30:00.000Z")},
			{ID: "evt-42", Subject: "Old name", Start: utcDT("2024-03-11T10:00:00.000Z"), End: utcDT("2024-03-11T11:00:00.000Z")},
		},
	}
	svc := newTestService(t, remote)
	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}

	rec := timedRecord("evt-42", "New name")
	if err := svc.Apply(context.Background(), domain.ActionUpdate, []domain.ChangeRecord{rec}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if calls := remote.callLog(); len(calls) != 2 || calls[1] != "update evt-42" {
		t.Errorf("calls = %v, want exactly one update of evt-42", calls)
	}

	events := svc.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (replaced, not duplicated)", len(events))
	}
	if events[1].ID != "evt-42" || events[1].Name != "New name" {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[0].Name != "Before" {
		t.Errorf("unrelated entry touched: %+v", events[0])
	}
}

func TestApply_RemoveFiltersEntry(t *testing.T) {
	remote := &remoteStub{
		week: []graph.Event{
			{ID: "evt-1", Subject: "Keep", Start: utcDT("2024-03-11T09:00:00.000Z"), End: utcDT("2024-03-11T09:30:00.000Z")},
			{ID: "evt-2", Subject: "Drop", Start: utcDT("2024-03-11T10:00:00.000Z"), End: utcDT("2024-03-11T11:00:00.000Z")},
		},
	}
	svc := newTestService(t, remote)
	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}

	rec := timedRecord("evt-2", "Drop")
	if err := svc.Apply(context.Background(), domain.ActionRemove, []domain.ChangeRecord{rec}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	events := svc.Events()
	if len(events) != 1 || events[0].ID != "evt-1" {
		t.Errorf("events = %+v, want only evt-1", events)
	}
}

func TestApply_DisplayOnlyActionsIgnored(t *testing.T) {
	remote := &remoteStub{}
	svc := newTestService(t, remote)

	rec := timedRecord("evt-1", "Whatever")
	for _, action := range []domain.Action{
		domain.ActionDataset, domain.ActionFilter, domain.ActionClearChanges,
		domain.ActionReplace, domain.ActionRemoveAll,
	} {
		if err := svc.Apply(context.Background(), action, []domain.ChangeRecord{rec}); err != nil {
			t.Fatalf("Apply(%s): %v", action, err)
		}
	}

	if calls := remote.callLog(); len(calls) != 0 {
		t.Errorf("display-only actions hit the network: %v", calls)
	}
}

func TestApply_FailureLeavesStateUntouched(t *testing.T) {
	remote := &remoteStub{
		week: []graph.Event{
			{ID: "evt-1", Subject: "Keep", Start: utcDT("2024-03-11T09:00:00.000Z"), End: utcDT("2024-03-11T09:30:00.000Z")},
		},
	}
	svc := newTestService(t, remote)
	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}

	remote.err = errors.New("boom")
	rec := timedRecord("evt-1", "Renamed")
	if err := svc.Apply(context.Background(), domain.ActionUpdate, []domain.ChangeRecord{rec}); err == nil {
		t.Fatal("expected error")
	}

	events := svc.Events()
	if len(events) != 1 || events[0].Name != "Keep" {
		t.Errorf("state changed on failure: %+v", events)
	}
}

func TestApply_AllDayPayload(t *testing.T) {
	svc := newTestService(t, &remoteStub{})

	// Local midnight in UTC-5 as the widget emits it.
	rec := domain.ChangeRecord{
		CalendarEvent: domain.CalendarEvent{
			ID:        domain.GeneratedIDPrefix + "e1",
			Name:      "Conference",
			StartDate: "2024-03-10T05:00:00.000Z",
			EndDate:   "2024-03-10T05:00:00.000Z",
			AllDay:    true,
		},
		CopyOf: true,
	}

	payload, err := svc.toRemote(rec)
	if err != nil {
		t.Fatalf("toRemote: %v", err)
	}

	if payload.Start.DateTime != "2024-03-10T00:00:00.000Z" {
		t.Errorf("start = %q", payload.Start.DateTime)
	}
	if payload.End.DateTime != "2024-03-11T00:00:00.000Z" {
		t.Errorf("end = %q", payload.End.DateTime)
	}
	if !payload.IsAllDay {
		t.Error("isAllDay not set")
	}
}

func TestApply_EmptyNameGetsPlaceholder(t *testing.T) {
	remote := &remoteStub{}
	svc := newTestService(t, remote)

	payload, err := svc.toRemote(timedRecord("evt-1", ""))
	if err != nil {
		t.Fatalf("toRemote: %v", err)
	}
	if payload.Subject != domain.DefaultEventName {
		t.Errorf("subject = %q, want %q", payload.Subject, domain.DefaultEventName)
	}
}

func TestLoadWeek_AllDayWireFormat(t *testing.T) {
	// Graph returns all-day boundaries zone-less with a Windows zone
	// name alongside. Hydration must still yield instant strings the
	// rest of the app (and the ics feed) can parse.
	remote := &remoteStub{
		week: []graph.Event{
			{
				ID:       "evt-1",
				Subject:  "Conference",
				IsAllDay: true,
				Start:    graph.DateTimeTimeZone{DateTime: "2024-03-10T00:00:00.0000000", TimeZone: "Pacific Standard Time"},
				End:      graph.DateTimeTimeZone{DateTime: "2024-03-11T00:00:00.0000000", TimeZone: "Pacific Standard Time"},
			},
		},
	}
	svc := newTestService(t, remote)

	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}

	events := svc.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].StartDate != "2024-03-10T00:00:00.000Z" {
		t.Errorf("startDate = %q, want an instant at the same UTC midnight", events[0].StartDate)
	}
	if events[0].EndDate != "2024-03-11T00:00:00.000Z" {
		t.Errorf("endDate = %q", events[0].EndDate)
	}

	if _, err := ics.Export(events); err != nil {
		t.Errorf("exporting a hydrated all-day event: %v", err)
	}
}

func TestLoadSurrounding_MergesAroundWeek(t *testing.T) {
	remote := &remoteStub{
		week: []graph.Event{
			{ID: "w1", Subject: "Week", Start: utcDT("2024-03-11T09:00:00.000Z"), End: utcDT("2024-03-11T10:00:00.000Z")},
		},
		past: []graph.Event{
			{ID: "p1", Subject: "Past", Start: utcDT("2024-02-01T09:00:00.000Z"), End: utcDT("2024-02-01T10:00:00.000Z")},
		},
		future: []graph.Event{
			{ID: "f1", Subject: "Future", Start: utcDT("2024-04-01T09:00:00.000Z"), End: utcDT("2024-04-01T10:00:00.000Z")},
		},
	}
	svc := newTestService(t, remote)

	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}
	if err := svc.LoadSurrounding(context.Background()); err != nil {
		t.Fatalf("LoadSurrounding: %v", err)
	}

	events := svc.Events()
	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	want := []string{"p1", "w1", "f1"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestSameIDMutationsSerialized(t *testing.T) {
	remote := &remoteStub{
		week: []graph.Event{
			{ID: "evt-1", Subject: "Target", Start: utcDT("2024-03-11T09:00:00.000Z"), End: utcDT("2024-03-11T10:00:00.000Z")},
		},
		blockUpdate: make(chan struct{}),
	}
	svc := newTestService(t, remote)
	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := timedRecord("evt-1", "Renamed")
		_ = svc.Apply(context.Background(), domain.ActionUpdate, []domain.ChangeRecord{rec})
	}()

	// Wait for the update to be in flight.
	deadline := time.After(2 * time.Second)
	for {
		calls := remote.callLog()
		if len(calls) >= 2 && calls[1] == "update evt-1" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("update never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	removeDone := make(chan struct{})
	go func() {
		defer close(removeDone)
		rec := timedRecord("evt-1", "Renamed")
		_ = svc.Apply(context.Background(), domain.ActionRemove, []domain.ChangeRecord{rec})
	}()

	// The delete must not start while the update is still in flight.
	time.Sleep(50 * time.Millisecond)
	for _, call := range remote.callLog() {
		if call == "delete evt-1" {
			t.Fatal("delete started before the in-flight update finished")
		}
	}

	close(remote.blockUpdate)
	<-done
	<-removeDone

	calls := remote.callLog()
	if len(calls) != 3 || calls[1] != "update evt-1" || calls[2] != "delete evt-1" {
		t.Errorf("calls = %v, want update then delete", calls)
	}
	if events := svc.Events(); len(events) != 0 {
		t.Errorf("events = %+v, want empty after delete", events)
	}
}

func TestPerIDLocksReleased(t *testing.T) {
	remote := &remoteStub{
		week: []graph.Event{
			{ID: "evt-1", Subject: "Target", Start: utcDT("2024-03-11T09:00:00.000Z"), End: utcDT("2024-03-11T10:00:00.000Z")},
		},
	}
	svc := newTestService(t, remote)
	if err := svc.LoadWeek(context.Background()); err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}

	var adds []domain.ChangeRecord
	for i := 0; i < 5; i++ {
		rec := timedRecord(fmt.Sprintf("%se%d", domain.GeneratedIDPrefix, i), "Draft")
		rec.CopyOf = true
		adds = append(adds, rec)
	}
	if err := svc.Apply(context.Background(), domain.ActionAdd, adds); err != nil {
		t.Fatalf("Apply(add): %v", err)
	}

	rec := timedRecord("evt-1", "Renamed")
	if err := svc.Apply(context.Background(), domain.ActionUpdate, []domain.ChangeRecord{rec}); err != nil {
		t.Fatalf("Apply(update): %v", err)
	}
	if err := svc.Apply(context.Background(), domain.ActionRemove, []domain.ChangeRecord{rec}); err != nil {
		t.Fatalf("Apply(remove): %v", err)
	}

	// Every mutation is done; no per-id lock entry may linger.
	svc.inflightMu.Lock()
	n := len(svc.inflight)
	svc.inflightMu.Unlock()
	if n != 0 {
		t.Errorf("%d lock entries left after all mutations finished", n)
	}
}

func utcDT(s string) graph.DateTimeTimeZone {
	return graph.DateTimeTimeZone{DateTime: s, TimeZone: "UTC"}
}
