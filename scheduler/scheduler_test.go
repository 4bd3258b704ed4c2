package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/herald/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeAnnouncer struct {
	mu      sync.Mutex
	soon    []int32
	started []int32
	ended   []int32
}

func (a *fakeAnnouncer) AnnounceSoon(_ context.Context, event *store.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.soon = append(a.soon, event.ID)
	return nil
}

func (a *fakeAnnouncer) AnnounceStarted(_ context.Context, event *store.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, event.ID)
	return nil
}

func (a *fakeAnnouncer) AnnounceEnded(_ context.Context, event *store.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = append(a.ended, event.ID)
	return nil
}

func (a *fakeAnnouncer) counts() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.soon), len(a.started), len(a.ended)
}

type fakeEventStore struct {
	mu      sync.Mutex
	events  []*store.Event
	deleted []int32
}

func (f *fakeEventStore) ListEventsInRange(_ context.Context, find *store.FindEventRange) ([]*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*store.Event, 0)
	for _, event := range f.events {
		if !event.StartDate.Before(find.From) && !event.StartDate.After(find.To) {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func (f *fakeEventStore) DeleteEvent(_ context.Context, id int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEventStore) deletedIDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.deleted...)
}

func startScheduler(t *testing.T, eventStore EventStore, clock *fakeClock) (*Scheduler, *fakeAnnouncer) {
	t.Helper()
	announcer := &fakeAnnouncer{}
	s := New(eventStore,
		WithClock(clock.Now),
		// Ticks are driven manually; keep the ticker out of the way.
		WithTickInterval(time.Hour),
	)
	s.SetAnnouncer(announcer)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = s.Run(ctx)
	}()
	return s, announcer
}

func event(id int32, start, end time.Time) *store.Event {
	return &store.Event{
		ID:        id,
		StartDate: start,
		EndDate:   end,
		Title:     "event",
	}
}

func TestSchedulerFullLifecycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2030, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	eventStore := &fakeEventStore{}
	s, announcer := startScheduler(t, eventStore, clock)

	// Starts 10:00, ends 11:30.
	ev := event(1, base.Add(time.Hour), base.Add(2*time.Hour+30*time.Minute))
	require.NoError(t, s.Ingest(ctx, ev))

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingNotify, snapshot[1])

	// 9:15, exactly 45 minutes out: the soon announcement goes out.
	clock.Set(base.Add(15 * time.Minute))
	require.NoError(t, s.Tick(ctx))
	soon, started, ended := announcer.counts()
	assert.Equal(t, 1, soon)
	assert.Equal(t, 0, started)
	assert.Equal(t, 0, ended)
	snapshot, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingStart, snapshot[1])

	// 10:00: started. End is 90 minutes away, so it parks in Future.
	clock.Set(base.Add(time.Hour))
	require.NoError(t, s.Tick(ctx))
	_, started, _ = announcer.counts()
	assert.Equal(t, 1, started)
	snapshot, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFuture, snapshot[1])

	// 11:30: the end minute comes due. Future hands off to WaitingEnd and
	// the ended announcement fires in the same wake.
	clock.Set(base.Add(2*time.Hour + 30*time.Minute))
	require.NoError(t, s.Tick(ctx))
	soon, started, ended = announcer.counts()
	assert.Equal(t, 1, soon)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ended)
	assert.Equal(t, []int32{1}, eventStore.deletedIDs())

	snapshot, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestSchedulerIngestRules(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2030, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("already started gets an immediate announcement", func(t *testing.T) {
		clock := &fakeClock{now: base}
		eventStore := &fakeEventStore{}
		s, announcer := startScheduler(t, eventStore, clock)

		require.NoError(t, s.Ingest(ctx, event(1, base.Add(-10*time.Minute), base.Add(30*time.Minute))))
		_, started, _ := announcer.counts()
		assert.Equal(t, 1, started)
		snapshot, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateWaitingEnd, snapshot[1])
	})

	t.Run("within notify lead announces soon", func(t *testing.T) {
		clock := &fakeClock{now: base}
		eventStore := &fakeEventStore{}
		s, announcer := startScheduler(t, eventStore, clock)

		require.NoError(t, s.Ingest(ctx, event(1, base.Add(20*time.Minute), base.Add(2*time.Hour))))
		soon, started, _ := announcer.counts()
		assert.Equal(t, 1, soon)
		assert.Equal(t, 0, started)
		snapshot, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateWaitingStart, snapshot[1])
	})

	t.Run("an hour past start is silently dropped", func(t *testing.T) {
		clock := &fakeClock{now: base}
		eventStore := &fakeEventStore{}
		s, announcer := startScheduler(t, eventStore, clock)

		require.NoError(t, s.Ingest(ctx, event(1, base.Add(-time.Hour), base.Add(3*time.Hour))))
		soon, started, ended := announcer.counts()
		assert.Zero(t, soon+started+ended)
		snapshot, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snapshot)
		assert.Empty(t, eventStore.deletedIDs())
	})

	t.Run("already over is deleted", func(t *testing.T) {
		clock := &fakeClock{now: base}
		eventStore := &fakeEventStore{}
		s, announcer := startScheduler(t, eventStore, clock)

		require.NoError(t, s.Ingest(ctx, event(1, base.Add(-3*time.Hour), base.Add(-2*time.Hour))))
		soon, started, ended := announcer.counts()
		assert.Zero(t, soon+started+ended)
		assert.Equal(t, []int32{1}, eventStore.deletedIDs())
	})

	t.Run("re-ingesting a tracked event is a no-op", func(t *testing.T) {
		clock := &fakeClock{now: base}
		eventStore := &fakeEventStore{}
		s, announcer := startScheduler(t, eventStore, clock)

		ev := event(1, base.Add(10*time.Minute), base.Add(2*time.Hour))
		require.NoError(t, s.Ingest(ctx, ev))
		require.NoError(t, s.Ingest(ctx, ev))
		soon, _, _ := announcer.counts()
		assert.Equal(t, 1, soon)
	})
}

func TestSchedulerTickAdmitsWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2030, 1, 15, 9, 30, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	eventStore := &fakeEventStore{
		events: []*store.Event{
			// 10:00 start is inside [8:30, 10:30]; the tick admits it and
			// immediately announces soon since start is 30 minutes out.
			event(1, base.Add(30*time.Minute), base.Add(3*time.Hour)),
			// Far future start stays outside the window.
			event(2, base.Add(6*time.Hour), base.Add(7*time.Hour)),
		},
	}
	s, announcer := startScheduler(t, eventStore, clock)

	require.NoError(t, s.Tick(ctx))
	soon, _, _ := announcer.counts()
	assert.Equal(t, 1, soon)

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingStart, snapshot[1])
	assert.NotContains(t, snapshot, int32(2))
}

func TestSchedulerRemoveAndUpdate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2030, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	eventStore := &fakeEventStore{}
	s, announcer := startScheduler(t, eventStore, clock)

	require.NoError(t, s.Ingest(ctx, event(1, base.Add(2*time.Hour), base.Add(3*time.Hour))))
	require.NoError(t, s.Remove(ctx, 1))
	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	// A removed event never announces, even when its minute comes due.
	clock.Set(base.Add(time.Hour + 15*time.Minute))
	require.NoError(t, s.Tick(ctx))
	soon, started, ended := announcer.counts()
	assert.Zero(t, soon+started+ended)

	// An update re-ingests with fresh timestamps: the event moved into the
	// notify lead, so the soon announcement fires on ingest.
	require.NoError(t, s.Ingest(ctx, event(2, base.Add(4*time.Hour), base.Add(5*time.Hour))))
	moved := event(2, clock.Now().Add(30*time.Minute), clock.Now().Add(2*time.Hour))
	require.NoError(t, s.Update(ctx, moved))
	soon, _, _ = announcer.counts()
	assert.Equal(t, 1, soon)
	snapshot, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingStart, snapshot[2])
}
