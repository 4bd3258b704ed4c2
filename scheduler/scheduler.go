// Package scheduler drives the notify/start/end lifecycle for every known
// event. It keeps a ring of 60 minute-of-hour buckets per state and wakes
// hourly to migrate events between states, announcing transitions through
// an injected Announcer.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/herald/internal/metrics"
	"github.com/hrygo/herald/store"
)

// NotifyLead is how long before an event starts the "soon" announcement
// goes out.
const NotifyLead = 45 * time.Minute

// ErrCanceled is returned when a command could not be delivered because the
// scheduler is shutting down.
var ErrCanceled = errors.New("scheduler canceled")

// State is the lifecycle position of a tracked event.
type State int

const (
	// StateWaitingNotify: more than ~45 minutes before start.
	StateWaitingNotify State = iota
	// StateWaitingStart: the soon announcement is out, start is pending.
	StateWaitingStart
	// StateFuture: started, end more than an hour away.
	StateFuture
	// StateWaitingEnd: end is within the hour.
	StateWaitingEnd

	stateCount
)

func (s State) String() string {
	switch s {
	case StateWaitingNotify:
		return "waiting_notify"
	case StateWaitingStart:
		return "waiting_start"
	case StateFuture:
		return "future"
	case StateWaitingEnd:
		return "waiting_end"
	}
	return "unknown"
}

// Announcer sends event notifications. Implemented by the bot gateway; a
// send failure is the announcer's problem, the scheduler only logs it.
type Announcer interface {
	AnnounceSoon(ctx context.Context, event *store.Event) error
	AnnounceStarted(ctx context.Context, event *store.Event) error
	AnnounceEnded(ctx context.Context, event *store.Event) error
}

// EventStore is the slice of the store the scheduler needs.
type EventStore interface {
	ListEventsInRange(ctx context.Context, find *store.FindEventRange) ([]*store.Event, error)
	DeleteEvent(ctx context.Context, id int32) error
}

type command struct {
	ingest *store.Event
	update *store.Event
	remove int32
	tick   bool
	// snapshot receives the current state map; used by tests and /events.
	snapshot chan map[int32]State
	done     chan struct{}
}

// Scheduler owns all lifecycle state. All mutation happens on the Run
// goroutine; other components talk to it through the mailbox only.
type Scheduler struct {
	store     EventStore
	announcer Announcer
	now       func() time.Time
	interval  time.Duration
	mailbox   chan command

	// buckets[state][minute] holds the ids parked at that minute-of-hour.
	buckets [stateCount][60]map[int32]struct{}
	states  map[int32]State
	events  map[int32]*store.Event
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTickInterval overrides the hourly wake interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// New creates a Scheduler. The announcer is injected separately via
// SetAnnouncer because the bot gateway and the scheduler reference each
// other; handles are constructed first and wired at startup.
func New(eventStore EventStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    eventStore,
		now:      time.Now,
		interval: time.Hour,
		mailbox:  make(chan command, 64),
		states:   make(map[int32]State),
		events:   make(map[int32]*store.Event),
	}
	for state := range s.buckets {
		for minute := range s.buckets[state] {
			s.buckets[state][minute] = make(map[int32]struct{})
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAnnouncer wires the outbound gateway. Must be called before Run.
func (s *Scheduler) SetAnnouncer(announcer Announcer) {
	s.announcer = announcer
}

// Run processes the mailbox until ctx is done. Commands are handled one at
// a time in receipt order; the hourly ticker enqueues ticks like any other
// command so state transitions for one event are always serialized.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		case cmd := <-s.mailbox:
			s.handle(ctx, cmd)
		}
	}
}

// Ingest asks the scheduler to start tracking an event.
func (s *Scheduler) Ingest(ctx context.Context, event *store.Event) error {
	return s.send(ctx, command{ingest: event})
}

// Update re-ingests an edited event with fresh timestamps.
func (s *Scheduler) Update(ctx context.Context, event *store.Event) error {
	return s.send(ctx, command{update: event})
}

// Remove drops an event from tracking without announcements.
func (s *Scheduler) Remove(ctx context.Context, id int32) error {
	return s.send(ctx, command{remove: id})
}

// Tick forces an immediate tick. Tests drive the scheduler with this.
func (s *Scheduler) Tick(ctx context.Context) error {
	return s.send(ctx, command{tick: true})
}

// Snapshot returns a copy of the id->state map.
func (s *Scheduler) Snapshot(ctx context.Context) (map[int32]State, error) {
	reply := make(chan map[int32]State, 1)
	if err := s.send(ctx, command{snapshot: reply}); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ErrCanceled
	case snapshot := <-reply:
		return snapshot, nil
	}
}

func (s *Scheduler) send(ctx context.Context, cmd command) error {
	cmd.done = make(chan struct{})
	select {
	case <-ctx.Done():
		return ErrCanceled
	case s.mailbox <- cmd:
	}
	select {
	case <-ctx.Done():
		return ErrCanceled
	case <-cmd.done:
		return nil
	}
}

func (s *Scheduler) handle(ctx context.Context, cmd command) {
	defer close(cmd.done)

	switch {
	case cmd.ingest != nil:
		s.ingest(ctx, cmd.ingest)
	case cmd.update != nil:
		s.drop(cmd.update.ID)
		s.ingest(ctx, cmd.update)
	case cmd.remove != 0:
		s.drop(cmd.remove)
	case cmd.tick:
		s.tick(ctx)
	case cmd.snapshot != nil:
		snapshot := make(map[int32]State, len(s.states))
		for id, state := range s.states {
			snapshot[id] = state
		}
		cmd.snapshot <- snapshot
	}
}

// tick performs one hourly wake: pull the surrounding two-hour window from
// the store, then migrate the buckets due this minute.
func (s *Scheduler) tick(ctx context.Context) {
	metrics.SchedulerTicks.Inc()
	now := s.now().UTC()

	events, err := s.store.ListEventsInRange(ctx, &store.FindEventRange{
		From: now.Add(-time.Hour),
		To:   now.Add(time.Hour),
	})
	if err != nil {
		// A failed window query must not stop migrations; already-admitted
		// events still tick.
		slog.Error("scheduler: window query failed", "error", err)
	} else {
		for _, event := range events {
			s.ingest(ctx, event)
		}
	}

	s.migrateWaitingNotify(ctx, now)
	s.migrateWaitingStart(ctx, now)
	s.migrateFuture(now)
	s.migrateWaitingEnd(ctx, now)
}

// ingest admits one event, or ignores it when already tracked. This is how
// duplicate suppression works across hourly ticks that overlap the same
// window.
func (s *Scheduler) ingest(ctx context.Context, event *store.Event) {
	if _, tracked := s.states[event.ID]; tracked {
		return
	}

	now := s.now().UTC()
	start, end := event.StartDate, event.EndDate

	switch {
	case now.After(end):
		// Already over: clean up, never track.
		if err := s.store.DeleteEvent(ctx, event.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("scheduler: failed to delete past event", "event", event.ID, "error", err)
		}
	case !now.Before(start.Add(time.Hour)):
		// More than an hour past start: too late to be interesting.
	case now.After(start):
		s.announceStarted(ctx, event)
		s.place(event, s.endState(now, end), minuteOf(end))
	case now.Add(NotifyLead).After(start):
		s.announceSoon(ctx, event)
		s.place(event, StateWaitingStart, minuteOf(start))
	default:
		s.place(event, StateWaitingNotify, minuteOf(start))
	}
}

// endState picks WaitingEnd when the end falls within the next hour,
// Future otherwise.
func (s *Scheduler) endState(now time.Time, end time.Time) State {
	if now.Add(time.Hour).After(end) {
		return StateWaitingEnd
	}
	return StateFuture
}

func (s *Scheduler) migrateWaitingNotify(ctx context.Context, now time.Time) {
	index := minuteOf(now.Add(NotifyLead))
	for _, id := range s.takeBucket(StateWaitingNotify, index) {
		event := s.events[id]
		s.announceSoon(ctx, event)
		// Same bucket, one state over: the start minute is unchanged.
		s.place(event, StateWaitingStart, index)
	}
}

func (s *Scheduler) migrateWaitingStart(ctx context.Context, now time.Time) {
	for _, id := range s.takeBucket(StateWaitingStart, minuteOf(now)) {
		event := s.events[id]
		s.announceStarted(ctx, event)
		s.place(event, s.endState(now, event.EndDate), minuteOf(event.EndDate))
	}
}

func (s *Scheduler) migrateFuture(now time.Time) {
	index := minuteOf(now)
	for id := range s.buckets[StateFuture][index] {
		event := s.events[id]
		if now.Add(time.Hour).After(event.EndDate) {
			delete(s.buckets[StateFuture][index], id)
			s.place(event, StateWaitingEnd, minuteOf(event.EndDate))
		}
	}
}

func (s *Scheduler) migrateWaitingEnd(ctx context.Context, now time.Time) {
	for _, id := range s.takeBucket(StateWaitingEnd, minuteOf(now)) {
		event := s.events[id]
		s.announceEnded(ctx, event)
		if err := s.store.DeleteEvent(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("scheduler: failed to delete ended event", "event", id, "error", err)
		}
		s.forget(id)
	}
}

// place parks an event in exactly one bucket of exactly one state.
func (s *Scheduler) place(event *store.Event, state State, minute int) {
	s.buckets[state][minute][event.ID] = struct{}{}
	s.states[event.ID] = state
	s.events[event.ID] = event
	metrics.TrackedEvents.Set(float64(len(s.states)))
}

// takeBucket empties and returns the ids parked at state/minute. The ids
// stay in the states map until re-placed or forgotten.
func (s *Scheduler) takeBucket(state State, minute int) []int32 {
	bucket := s.buckets[state][minute]
	if len(bucket) == 0 {
		return nil
	}
	ids := make([]int32, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	s.buckets[state][minute] = make(map[int32]struct{})
	return ids
}

// drop removes an event from whatever bucket currently holds it. The
// bucket index is derived from timestamps that may have been edited
// underneath us, so sweep the whole ring for the state.
func (s *Scheduler) drop(id int32) {
	state, tracked := s.states[id]
	if !tracked {
		return
	}
	for minute := range s.buckets[state] {
		delete(s.buckets[state][minute], id)
	}
	s.forget(id)
}

func (s *Scheduler) forget(id int32) {
	delete(s.states, id)
	delete(s.events, id)
	metrics.TrackedEvents.Set(float64(len(s.states)))
}

func (s *Scheduler) announceSoon(ctx context.Context, event *store.Event) {
	if err := s.announcer.AnnounceSoon(ctx, event); err != nil {
		slog.Error("scheduler: soon announcement failed", "event", event.ID, "error", err)
	}
}

func (s *Scheduler) announceStarted(ctx context.Context, event *store.Event) {
	if err := s.announcer.AnnounceStarted(ctx, event); err != nil {
		slog.Error("scheduler: started announcement failed", "event", event.ID, "error", err)
	}
}

func (s *Scheduler) announceEnded(ctx context.Context, event *store.Event) {
	if err := s.announcer.AnnounceEnded(ctx, event); err != nil {
		slog.Error("scheduler: ended announcement failed", "event", event.ID, "error", err)
	}
}

// minuteOf is the minute-of-hour bucket index for t.
func minuteOf(t time.Time) int {
	return t.UTC().Minute()
}
