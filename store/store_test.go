package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/herald/internal/profile"
	"github.com/hrygo/herald/store"
	"github.com/hrygo/herald/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: "file::memory:"}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func seedSystem(t *testing.T, st *store.Store, channel int64) *store.ChatSystem {
	t.Helper()
	system, err := st.CreateChatSystem(context.Background(), &store.ChatSystem{EventsChannel: channel})
	require.NoError(t, err)
	return system
}

func seedUser(t *testing.T, st *store.Store, userID int64, username string) *store.User {
	t.Helper()
	user, err := st.CreateUser(context.Background(), &store.User{UserID: userID, Username: username})
	require.NoError(t, err)
	return user
}

func TestChatSystemCRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	system := seedSystem(t, st, -1001)
	require.NotZero(t, system.ID)

	got, err := st.GetChatSystemByChannel(ctx, -1001)
	require.NoError(t, err)
	assert.Equal(t, system.ID, got.ID)

	got, err = st.GetChatSystem(ctx, system.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1001), got.EventsChannel)

	require.NoError(t, st.DeleteChatSystem(ctx, system.ID))
	_, err = st.GetChatSystem(ctx, system.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.GetChatSystemByChannel(ctx, -9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChatsFollowTheirSystem(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	system := seedSystem(t, st, -1001)
	for _, chatID := range []int64{-500, -501} {
		_, err := st.CreateChat(ctx, &store.Chat{ChatID: chatID, SystemID: system.ID})
		require.NoError(t, err)
	}

	chats, err := st.ListChatsBySystem(ctx, system.ID)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	grouped, err := st.ListSystemChats(ctx)
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, int64(-1001), grouped[0].EventsChannel)
	assert.ElementsMatch(t, []int64{-500, -501}, grouped[0].ChatIDs)

	// Deleting the system cascades to its chats.
	require.NoError(t, st.DeleteChatSystem(ctx, system.ID))
	_, err = st.GetChatByPlatformID(ctx, -500)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserRelations(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	system := seedSystem(t, st, -1001)
	chat, err := st.CreateChat(ctx, &store.Chat{ChatID: -500, SystemID: system.ID})
	require.NoError(t, err)

	user := seedUser(t, st, 100, "user100")
	got, err := st.GetUserByPlatformID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, st.AddUserChat(ctx, user.ID, chat.ID))
	// Re-adding the same relation is a no-op, not an error.
	require.NoError(t, st.AddUserChat(ctx, user.ID, chat.ID))

	grouped, err := st.ListUserChats(ctx)
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, int64(100), grouped[0].UserID)
	assert.Equal(t, []int64{-500}, grouped[0].ChatIDs)

	require.NoError(t, st.RemoveUserChat(ctx, user.ID, chat.ID))
	grouped, err = st.ListUserChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, grouped)

	require.NoError(t, st.DeleteUser(ctx, user.ID))
	_, err = st.GetUserByPlatformID(ctx, 100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEventLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	system := seedSystem(t, st, -1001)
	host := seedUser(t, st, 100, "user100")

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	event, err := st.CreateEvent(ctx, &store.CreateEvent{
		Title:       "Demo",
		Description: "hi",
		StartDate:   start,
		EndDate:     start.Add(time.Hour),
		SystemID:    system.ID,
		Timezone:    "US/Central",
		HostIDs:     []int32{host.ID},
	})
	require.NoError(t, err)
	require.NotZero(t, event.ID)
	require.Len(t, event.Hosts, 1)
	assert.Equal(t, "user100", event.Hosts[0].Username)

	got, err := st.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Title)
	assert.True(t, got.StartDate.Equal(start))
	require.Len(t, got.Hosts, 1)

	// Partial update touches only the named fields.
	title := "Demo v2"
	updated, err := st.UpdateEvent(ctx, &store.UpdateEvent{ID: event.ID, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Demo v2", updated.Title)
	assert.Equal(t, "hi", updated.Description)
	assert.True(t, updated.StartDate.Equal(start))

	// Range boundaries are inclusive on both ends.
	inRange, err := st.ListEventsInRange(ctx, &store.FindEventRange{From: start, To: start})
	require.NoError(t, err)
	assert.Len(t, inRange, 1)
	outOfRange, err := st.ListEventsInRange(ctx, &store.FindEventRange{
		From: start.Add(time.Second),
		To:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, outOfRange)

	bySystem, err := st.ListEventsBySystem(ctx, system.ID)
	require.NoError(t, err)
	assert.Len(t, bySystem, 1)

	byHost, err := st.ListEventsByHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Len(t, byHost, 1)

	// Deleting the host removes the host entry but keeps the event.
	require.NoError(t, st.DeleteUser(ctx, host.ID))
	got, err = st.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Hosts)

	require.NoError(t, st.DeleteEvent(ctx, event.ID))
	_, err = st.GetEvent(ctx, event.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewEventLinkConsumedOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	system := seedSystem(t, st, -1001)
	user := seedUser(t, st, 100, "user100")

	link, err := st.CreateNewEventLink(ctx, &store.NewEventLink{
		UsersID:    user.ID,
		SystemID:   system.ID,
		SecretHash: "hash",
	})
	require.NoError(t, err)
	require.NotZero(t, link.ID)

	got, err := st.GetNewEventLink(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, got.Used)

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	create := &store.CreateEvent{
		Title:     "Demo",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
		SystemID:  system.ID,
		Timezone:  "UTC",
		HostIDs:   []int32{user.ID},
	}
	event, err := st.ConsumeNewEventLink(ctx, link.ID, create)
	require.NoError(t, err)
	require.NotZero(t, event.ID)
	require.Len(t, event.Hosts, 1)

	got, err = st.GetNewEventLink(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, got.Used)

	// The second redemption must fail and must not create another event.
	_, err = st.ConsumeNewEventLink(ctx, link.ID, create)
	assert.ErrorIs(t, err, store.ErrLinkUsed)
	events, err := st.ListEventsBySystem(ctx, system.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEditEventLinkConsumedOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	system := seedSystem(t, st, -1001)
	user := seedUser(t, st, 100, "user100")

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	event, err := st.CreateEvent(ctx, &store.CreateEvent{
		Title:     "Demo",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
		SystemID:  system.ID,
		Timezone:  "UTC",
		HostIDs:   []int32{user.ID},
	})
	require.NoError(t, err)

	link, err := st.CreateEditEventLink(ctx, &store.EditEventLink{
		UsersID:    user.ID,
		SystemID:   system.ID,
		EventID:    event.ID,
		SecretHash: "hash",
	})
	require.NoError(t, err)

	title := "Demo v2"
	updated, err := st.ConsumeEditEventLink(ctx, link.ID, &store.UpdateEvent{ID: event.ID, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Demo v2", updated.Title)

	_, err = st.ConsumeEditEventLink(ctx, link.ID, &store.UpdateEvent{ID: event.ID, Title: &title})
	assert.ErrorIs(t, err, store.ErrLinkUsed)
}
