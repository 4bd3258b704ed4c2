package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/hrygo/herald/linkbroker"
	"github.com/hrygo/herald/scheduler"
	"github.com/hrygo/herald/store"
	"github.com/hrygo/herald/userindex"
)

const helpText = `Herald keeps your events channel up to date.

In a channel:
/init - start tracking events for this channel
/link <chat id> ... - link group chats to this channel

In a group:
/id - show this chat's id
/events - list upcoming events

In a private chat:
/new - create an event
/edit - edit an event you host
/delete - delete an event you host`

// Client is the slice of the Telegram API the ingress needs. Satisfied by
// *tgbotapi.BotAPI.
type Client interface {
	Sender
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// LinkIssuer is the slice of the link broker the ingress needs.
type LinkIssuer interface {
	IssueNewEventLink(ctx context.Context, userID int64, channel int64) (string, error)
	IssueEditEventLink(ctx context.Context, userID int64, eventID int32) (string, error)
}

// Ingress owns the long-poll loop. It is the only reader of updates, so
// the offset lives here and only ever moves forward.
type Ingress struct {
	client  Client
	store   *store.Store
	index   *userindex.Index
	broker  LinkIssuer
	sched   *scheduler.Scheduler
	gateway *Gateway

	lastID  int
	timeout int
}

func NewIngress(client Client, st *store.Store, index *userindex.Index, broker LinkIssuer, sched *scheduler.Scheduler, gateway *Gateway) *Ingress {
	return &Ingress{
		client:  client,
		store:   st,
		index:   index,
		broker:  broker,
		sched:   sched,
		gateway: gateway,
		timeout: 30,
	}
}

// Run polls for updates until ctx is done. A failed poll is logged and
// retried on the next iteration; the offset is advanced past every update
// we were handed, whether or not handling succeeded.
func (i *Ingress) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cfg := tgbotapi.NewUpdate(i.lastID)
		cfg.Timeout = i.timeout
		updates, err := i.client.GetUpdates(cfg)
		if err != nil {
			slog.Error("bot: get updates failed", "error", err)
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= i.lastID {
				i.lastID = update.UpdateID + 1
			}
			i.handleUpdate(ctx, update)
		}
	}
}

func (i *Ingress) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		i.handleCallback(ctx, update.CallbackQuery)
	case update.ChannelPost != nil:
		i.handleChannelPost(ctx, update.ChannelPost)
	case update.Message != nil:
		if update.Message.Chat.IsPrivate() {
			i.handlePrivate(ctx, update.Message)
		} else {
			i.handleGroup(ctx, update.Message)
		}
	}
}

// Channel posts carry the two admin commands.

func (i *Ingress) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "init":
		i.handleInit(ctx, msg)
	case "link":
		i.handleLink(ctx, msg)
	}
}

func (i *Ingress) handleInit(ctx context.Context, msg *tgbotapi.Message) {
	channel := msg.Chat.ID
	if _, err := i.store.GetChatSystemByChannel(ctx, channel); err == nil {
		i.reply(channel, "This channel already has events tracking.")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Error("bot: init lookup failed", "channel", channel, "error", err)
		return
	}
	if _, err := i.store.CreateChatSystem(ctx, &store.ChatSystem{EventsChannel: channel}); err != nil {
		slog.Error("bot: init failed", "channel", channel, "error", err)
		return
	}
	i.reply(channel, "Initialized")
}

// handleLink links group chats to the channel's system. A chat qualifies
// when it shares at least one administrator with the channel.
func (i *Ingress) handleLink(ctx context.Context, msg *tgbotapi.Message) {
	channel := msg.Chat.ID
	system, err := i.store.GetChatSystemByChannel(ctx, channel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			i.reply(channel, "Run /init first.")
			return
		}
		slog.Error("bot: link lookup failed", "channel", channel, "error", err)
		return
	}

	channelAdmins, err := i.adminSet(channel)
	if err != nil {
		slog.Error("bot: channel admins lookup failed", "channel", channel, "error", err)
		return
	}

	linked := make([]string, 0)
	for _, arg := range strings.Fields(msg.CommandArguments()) {
		chatID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			continue
		}
		chatAdmins, err := i.adminSet(chatID)
		if err != nil {
			slog.Warn("bot: chat admins lookup failed", "chat", chatID, "error", err)
			continue
		}
		if !overlaps(channelAdmins, chatAdmins) {
			slog.Warn("bot: link refused, no shared admin", "channel", channel, "chat", chatID)
			continue
		}
		if _, err := i.store.GetChatByPlatformID(ctx, chatID); err == nil {
			i.index.TouchChannel(channel, chatID)
			linked = append(linked, arg)
			continue
		}
		if _, err := i.store.CreateChat(ctx, &store.Chat{ChatID: chatID, SystemID: system.ID}); err != nil {
			slog.Error("bot: link create failed", "chat", chatID, "error", err)
			continue
		}
		i.index.TouchChannel(channel, chatID)
		linked = append(linked, arg)
	}

	if len(linked) == 0 {
		i.reply(channel, "No chats linked. Make sure the chat ids are right and the bot is in them.")
		return
	}
	i.reply(channel, fmt.Sprintf("Linked channel '%d' to chats (%s)", channel, strings.Join(linked, ", ")))
}

// Group messages feed the membership index; only two commands live here.

func (i *Ingress) handleGroup(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.NewChatMembers) > 0 {
		for idx := range msg.NewChatMembers {
			member := &msg.NewChatMembers[idx]
			if member.IsBot {
				continue
			}
			i.observe(ctx, member, msg.Chat.ID)
		}
		return
	}
	if msg.LeftChatMember != nil && !msg.LeftChatMember.IsBot {
		i.unobserve(ctx, msg.LeftChatMember, msg.Chat.ID)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "id":
			i.reply(msg.Chat.ID, fmt.Sprintf("This chat's id is %d", msg.Chat.ID))
		case "events":
			i.handleEvents(ctx, msg)
		}
		return
	}
	if msg.From != nil && !msg.From.IsBot {
		i.observe(ctx, msg.From, msg.Chat.ID)
	}
}

func (i *Ingress) handleEvents(ctx context.Context, msg *tgbotapi.Message) {
	chat, err := i.store.GetChatByPlatformID(ctx, msg.Chat.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			i.reply(msg.Chat.ID, "This chat is not linked to an events channel.")
			return
		}
		slog.Error("bot: events lookup failed", "chat", msg.Chat.ID, "error", err)
		return
	}
	events, err := i.store.ListEventsBySystem(ctx, chat.SystemID)
	if err != nil {
		slog.Error("bot: events list failed", "chat", msg.Chat.ID, "error", err)
		return
	}

	now := time.Now().UTC()
	upcoming := make([]string, 0, len(events))
	for _, event := range events {
		if event.EndDate.Before(now) {
			continue
		}
		upcoming = append(upcoming, formatEvent(event))
	}
	if len(upcoming) == 0 {
		i.reply(msg.Chat.ID, "No upcoming events.")
		return
	}
	i.reply(msg.Chat.ID, "Upcoming events:\n\n"+strings.Join(upcoming, "\n\n"))
}

// observe records a user sighting in a tracked chat, creating the user
// row and relation on first sight. Untracked chats are ignored.
func (i *Ingress) observe(ctx context.Context, from *tgbotapi.User, chatID int64) {
	chat, err := i.store.GetChatByPlatformID(ctx, chatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("bot: observe chat lookup failed", "chat", chatID, "error", err)
		}
		return
	}

	switch i.index.Touch(from.ID, chatID) {
	case userindex.KnownRelation:
		return
	case userindex.NewUser:
		user, err := i.store.GetUserByPlatformID(ctx, from.ID)
		if errors.Is(err, store.ErrNotFound) {
			user, err = i.store.CreateUser(ctx, &store.User{UserID: from.ID, Username: from.UserName})
		}
		if err != nil {
			slog.Error("bot: observe user create failed", "user", from.ID, "error", err)
			return
		}
		if err := i.store.AddUserChat(ctx, user.ID, chat.ID); err != nil {
			slog.Error("bot: observe relation failed", "user", from.ID, "chat", chatID, "error", err)
		}
	case userindex.NewRelation:
		user, err := i.store.GetUserByPlatformID(ctx, from.ID)
		if err != nil {
			slog.Error("bot: observe user lookup failed", "user", from.ID, "error", err)
			return
		}
		if err := i.store.AddUserChat(ctx, user.ID, chat.ID); err != nil {
			slog.Error("bot: observe relation failed", "user", from.ID, "chat", chatID, "error", err)
		}
	}
}

// unobserve removes a user/chat relation when the user leaves. A user
// with no remaining chats is deleted outright; cascades clean up host
// entries and relations.
func (i *Ingress) unobserve(ctx context.Context, from *tgbotapi.User, chatID int64) {
	result := i.index.RemoveRelation(from.ID, chatID)
	if result == userindex.UnknownRelation {
		return
	}

	user, err := i.store.GetUserByPlatformID(ctx, from.ID)
	if err != nil {
		slog.Error("bot: unobserve user lookup failed", "user", from.ID, "error", err)
		return
	}
	if result == userindex.UserEmpty {
		if err := i.store.DeleteUser(ctx, user.ID); err != nil {
			slog.Error("bot: unobserve user delete failed", "user", from.ID, "error", err)
		}
		return
	}
	chat, err := i.store.GetChatByPlatformID(ctx, chatID)
	if err != nil {
		slog.Error("bot: unobserve chat lookup failed", "chat", chatID, "error", err)
		return
	}
	if err := i.store.RemoveUserChat(ctx, user.ID, chat.ID); err != nil {
		slog.Error("bot: unobserve relation failed", "user", from.ID, "chat", chatID, "error", err)
	}
}

// Private chats carry the event management commands.

func (i *Ingress) handlePrivate(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "start", "help":
		i.reply(msg.Chat.ID, helpText)
	case "id":
		i.reply(msg.Chat.ID, fmt.Sprintf("This chat's id is %d", msg.Chat.ID))
	case "new":
		i.handleNew(msg)
	case "edit":
		i.handleHosted(ctx, msg, callbackEditEvent, "Pick an event to edit:")
	case "delete":
		i.handleHosted(ctx, msg, callbackDeleteEvent, "Pick an event to delete:")
	}
}

func (i *Ingress) handleNew(msg *tgbotapi.Message) {
	channels := i.index.LookupChannels(msg.From.ID)
	if len(channels) == 0 {
		i.reply(msg.Chat.ID, "You are not in any chats linked to an events channel.")
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, "Pick a channel for the new event:")
	out.ReplyMarkup = channelKeyboard(channels)
	if _, err := i.client.Send(out); err != nil {
		slog.Error("bot: reply failed", "chat", msg.Chat.ID, "error", err)
	}
}

func (i *Ingress) handleHosted(ctx context.Context, msg *tgbotapi.Message, kind, prompt string) {
	user, err := i.store.GetUserByPlatformID(ctx, msg.From.ID)
	if err != nil {
		i.reply(msg.Chat.ID, "You do not host any events.")
		return
	}
	events, err := i.store.ListEventsByHost(ctx, user.ID)
	if err != nil {
		slog.Error("bot: hosted events lookup failed", "user", msg.From.ID, "error", err)
		return
	}
	if len(events) == 0 {
		i.reply(msg.Chat.ID, "You do not host any events.")
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, prompt)
	out.ReplyMarkup = eventKeyboard(events, kind)
	if _, err := i.client.Send(out); err != nil {
		slog.Error("bot: reply failed", "chat", msg.Chat.ID, "error", err)
	}
}

func (i *Ingress) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := i.client.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			slog.Warn("bot: callback answer failed", "error", err)
		}
	}()

	var payload callbackPayload
	if err := json.Unmarshal([]byte(q.Data), &payload); err != nil {
		slog.Warn("bot: malformed callback payload", "data", q.Data)
		return
	}
	chatID := q.From.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}

	switch payload.Type {
	case callbackNewEvent:
		url, err := i.broker.IssueNewEventLink(ctx, q.From.ID, payload.ChannelID)
		if err != nil {
			slog.Error("bot: new link issue failed", "user", q.From.ID, "error", err)
			i.reply(chatID, "Could not create a link for that channel.")
			return
		}
		i.reply(chatID, "Fill in the event here (single use):\n"+url)
	case callbackEditEvent:
		url, err := i.broker.IssueEditEventLink(ctx, q.From.ID, payload.EventID)
		if err != nil {
			if errors.Is(err, linkbroker.ErrPermissions) {
				i.reply(chatID, "You do not host that event.")
				return
			}
			slog.Error("bot: edit link issue failed", "user", q.From.ID, "error", err)
			i.reply(chatID, "Could not create an edit link for that event.")
			return
		}
		i.reply(chatID, "Edit the event here (single use):\n"+url)
	case callbackDeleteEvent:
		i.handleDelete(ctx, chatID, payload)
	}
}

func (i *Ingress) handleDelete(ctx context.Context, chatID int64, payload callbackPayload) {
	if err := i.store.DeleteEvent(ctx, payload.EventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			i.reply(chatID, "That event is already gone.")
			return
		}
		slog.Error("bot: event delete failed", "event", payload.EventID, "error", err)
		return
	}
	if err := i.sched.Remove(ctx, payload.EventID); err != nil {
		slog.Error("bot: scheduler remove failed", "event", payload.EventID, "error", err)
	}
	if err := i.gateway.AnnounceCancelled(ctx, payload.SystemID, payload.Title); err != nil {
		slog.Error("bot: cancel announcement failed", "event", payload.EventID, "error", err)
	}
	i.reply(chatID, fmt.Sprintf("Deleted '%s'.", payload.Title))
}

func (i *Ingress) reply(chatID int64, text string) {
	if _, err := i.client.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("bot: reply failed", "chat", chatID, "error", err)
	}
}

func (i *Ingress) adminSet(chatID int64) (map[int64]struct{}, error) {
	members, err := i.client.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(members))
	for _, member := range members {
		if member.User != nil {
			set[member.User.ID] = struct{}{}
		}
	}
	return set, nil
}

func overlaps(a, b map[int64]struct{}) bool {
	for id := range a {
		if _, ok := b[id]; ok {
			return true
		}
	}
	return false
}
