package linkbroker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrygo/herald/internal/profile"
	"github.com/hrygo/herald/store"
	"github.com/hrygo/herald/store/db/sqlite"
	"github.com/hrygo/herald/userindex"
)

type fixture struct {
	store  *store.Store
	index  *userindex.Index
	broker *Broker
	system *store.ChatSystem
	user   *store.User
}

// newFixture seeds one system (-1001), one linked chat (-500) and one user
// (100) who is in that chat.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: "file::memory:"}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() {
		_ = st.Close()
	})

	system, err := st.CreateChatSystem(ctx, &store.ChatSystem{EventsChannel: -1001})
	require.NoError(t, err)
	chat, err := st.CreateChat(ctx, &store.Chat{ChatID: -500, SystemID: system.ID})
	require.NoError(t, err)
	user, err := st.CreateUser(ctx, &store.User{UserID: 100, Username: "user100"})
	require.NoError(t, err)
	require.NoError(t, st.AddUserChat(ctx, user.ID, chat.ID))

	index := userindex.New()
	index.TouchChannel(-1001, -500)
	index.Touch(100, -500)

	return &fixture{
		store:  st,
		index:  index,
		broker: New(st, index, "https://events.example.com/", WithCost(bcrypt.MinCost)),
		system: system,
		user:   user,
	}
}

func (f *fixture) createEvent(t *testing.T) *store.Event {
	t.Helper()
	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	event, err := f.store.CreateEvent(context.Background(), &store.CreateEvent{
		Title:     "Demo",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
		SystemID:  f.system.ID,
		Timezone:  "UTC",
		HostIDs:   []int32{f.user.ID},
	})
	require.NoError(t, err)
	return event
}

func TestIssueAndRedeemNewEventLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	url, err := f.broker.IssueNewEventLink(ctx, 100, -1001)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://events.example.com/events/new/"), url)

	raw := strings.TrimPrefix(url, "https://events.example.com/events/new/")
	token, _, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Len(t, token, tokenBytes)
	for _, c := range token {
		assert.Contains(t, tokenAlphabet, string(c))
	}

	// The form may be rendered any number of times before submission.
	_, err = f.broker.InspectNewLink(ctx, raw)
	require.NoError(t, err)
	_, err = f.broker.InspectNewLink(ctx, raw)
	require.NoError(t, err)

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	event, err := f.broker.RedeemNewEventLink(ctx, raw, &store.CreateEvent{
		Title:     "Demo",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
		Timezone:  "UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, f.system.ID, event.SystemID)
	require.Len(t, event.Hosts, 1)
	assert.Equal(t, "user100", event.Hosts[0].Username)

	// Replay: both the inspect and the redeem now refuse.
	_, err = f.broker.InspectNewLink(ctx, raw)
	assert.ErrorIs(t, err, ErrUsed)
	_, err = f.broker.RedeemNewEventLink(ctx, raw, &store.CreateEvent{
		Title: "Again", StartDate: start, EndDate: start.Add(time.Hour), Timezone: "UTC",
	})
	assert.ErrorIs(t, err, ErrUsed)
}

func TestRedeemNewEventLinkWrongToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	url, err := f.broker.IssueNewEventLink(ctx, 100, -1001)
	require.NoError(t, err)
	raw := strings.TrimPrefix(url, "https://events.example.com/events/new/")
	_, id, err := ParseToken(raw)
	require.NoError(t, err)

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	create := &store.CreateEvent{Title: "Demo", StartDate: start, EndDate: start.Add(time.Hour), Timezone: "UTC"}

	_, err = f.broker.RedeemNewEventLink(ctx, fmt.Sprintf("wrongtok=%d", id), create)
	assert.ErrorIs(t, err, ErrVerify)
	_, err = f.broker.RedeemNewEventLink(ctx, "garbage", create)
	assert.ErrorIs(t, err, ErrVerify)

	// The failed attempts must not consume the link.
	_, err = f.broker.InspectNewLink(ctx, raw)
	assert.NoError(t, err)
}

func TestRedeemNewEventLinkRequiresMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	url, err := f.broker.IssueNewEventLink(ctx, 100, -1001)
	require.NoError(t, err)
	raw := strings.TrimPrefix(url, "https://events.example.com/events/new/")

	// The user left the only chat between issue and redeem.
	f.index.RemoveRelation(100, -500)

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	_, err = f.broker.RedeemNewEventLink(ctx, raw, &store.CreateEvent{
		Title: "Demo", StartDate: start, EndDate: start.Add(time.Hour), Timezone: "UTC",
	})
	assert.ErrorIs(t, err, ErrPermissions)
}

func TestNewEventLinkDeadAfterSystemDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	url, err := f.broker.IssueNewEventLink(ctx, 100, -1001)
	require.NoError(t, err)
	raw := strings.TrimPrefix(url, "https://events.example.com/events/new/")

	// The link row has no foreign key, so it survives the delete but must
	// now behave like an invalid link on both the render and submit paths.
	require.NoError(t, f.store.DeleteChatSystem(ctx, f.system.ID))

	_, err = f.broker.InspectNewLink(ctx, raw)
	assert.ErrorIs(t, err, ErrVerify)

	start := time.Date(2030, 1, 15, 16, 0, 0, 0, time.UTC)
	_, err = f.broker.RedeemNewEventLink(ctx, raw, &store.CreateEvent{
		Title: "Demo", StartDate: start, EndDate: start.Add(time.Hour), Timezone: "UTC",
	})
	assert.ErrorIs(t, err, ErrVerify)
}

func TestEditEventLinkDeadAfterEventDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.createEvent(t)

	url, err := f.broker.IssueEditEventLink(ctx, 100, event.ID)
	require.NoError(t, err)
	raw := strings.TrimPrefix(url, "https://events.example.com/events/edit/")

	require.NoError(t, f.store.DeleteEvent(ctx, event.ID))

	_, err = f.broker.InspectEditLink(ctx, raw)
	assert.ErrorIs(t, err, ErrVerify)

	title := "Demo v2"
	_, err = f.broker.RedeemEditEventLink(ctx, raw, &store.UpdateEvent{Title: &title})
	assert.ErrorIs(t, err, ErrVerify)
}

func TestIssueEditEventLinkRequiresHost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.createEvent(t)

	_, err := f.store.CreateUser(ctx, &store.User{UserID: 200, Username: "user200"})
	require.NoError(t, err)

	_, err = f.broker.IssueEditEventLink(ctx, 200, event.ID)
	assert.ErrorIs(t, err, ErrPermissions)

	url, err := f.broker.IssueEditEventLink(ctx, 100, event.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://events.example.com/events/edit/"), url)
}

func TestRedeemEditEventLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.createEvent(t)

	url, err := f.broker.IssueEditEventLink(ctx, 100, event.ID)
	require.NoError(t, err)
	raw := strings.TrimPrefix(url, "https://events.example.com/events/edit/")

	inspected, err := f.broker.InspectEditLink(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, event.ID, inspected.ID)

	title := "Demo v2"
	updated, err := f.broker.RedeemEditEventLink(ctx, raw, &store.UpdateEvent{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, event.ID, updated.ID)
	assert.Equal(t, "Demo v2", updated.Title)

	_, err = f.broker.RedeemEditEventLink(ctx, raw, &store.UpdateEvent{Title: &title})
	assert.ErrorIs(t, err, ErrUsed)
}

func TestParseToken(t *testing.T) {
	token, id, err := ParseToken("abcdefgh=42")
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", token)
	assert.Equal(t, int32(42), id)

	// Splitting happens at the last separator.
	token, id, err = ParseToken("ab=cd=7")
	require.NoError(t, err)
	assert.Equal(t, "ab=cd", token)
	assert.Equal(t, int32(7), id)

	for _, raw := range []string{"", "noseparator", "=5", "token=", "token=notanumber"} {
		_, _, err := ParseToken(raw)
		assert.ErrorIs(t, err, ErrVerify, "raw %q", raw)
	}
}
