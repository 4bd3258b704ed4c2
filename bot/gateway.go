// Package bot is the Telegram surface: the ingress long-poll loop that
// turns updates into store and index mutations, and the outbound gateway
// that posts announcements to events channels.
package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/herald/internal/metrics"
	"github.com/hrygo/herald/scheduler"
	"github.com/hrygo/herald/store"
)

// Sender is the slice of the Telegram client the gateway needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// SystemStore resolves an event's system to its announcement channel.
type SystemStore interface {
	GetChatSystem(ctx context.Context, id int32) (*store.ChatSystem, error)
}

// Gateway posts announcement messages to the events channel of a chat
// system. Sends are rate limited globally; Telegram allows roughly 30
// messages per second across all chats.
type Gateway struct {
	sender  Sender
	store   SystemStore
	limiter *rate.Limiter
}

var _ scheduler.Announcer = (*Gateway)(nil)

func NewGateway(sender Sender, systems SystemStore) *Gateway {
	return &Gateway{
		sender:  sender,
		store:   systems,
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}
}

// AnnounceCreated posts the "New Event!" message after a create form is
// redeemed.
func (g *Gateway) AnnounceCreated(ctx context.Context, event *store.Event) error {
	return g.announce(ctx, event, headerCreated, "created")
}

// AnnounceUpdated posts the "Event updated!" message after an edit form
// is redeemed.
func (g *Gateway) AnnounceUpdated(ctx context.Context, event *store.Event) error {
	return g.announce(ctx, event, headerUpdated, "updated")
}

func (g *Gateway) AnnounceSoon(ctx context.Context, event *store.Event) error {
	return g.announce(ctx, event, headerSoon, "soon")
}

func (g *Gateway) AnnounceStarted(ctx context.Context, event *store.Event) error {
	return g.announce(ctx, event, headerStarted, "started")
}

func (g *Gateway) AnnounceEnded(ctx context.Context, event *store.Event) error {
	return g.announce(ctx, event, headerEnded, "ended")
}

// AnnounceCancelled posts a short deletion notice. The event row is gone
// by the time this runs, so it takes the surviving fields directly.
func (g *Gateway) AnnounceCancelled(ctx context.Context, systemID int32, title string) error {
	system, err := g.store.GetChatSystem(ctx, systemID)
	if err != nil {
		return errors.Wrap(err, "failed to resolve chat system")
	}
	metrics.Announcements.WithLabelValues("cancelled").Inc()
	return g.send(ctx, system.EventsChannel, "Event cancelled: "+title)
}

func (g *Gateway) announce(ctx context.Context, event *store.Event, header, kind string) error {
	system, err := g.store.GetChatSystem(ctx, event.SystemID)
	if err != nil {
		return errors.Wrap(err, "failed to resolve chat system")
	}
	metrics.Announcements.WithLabelValues(kind).Inc()
	return g.send(ctx, system.EventsChannel, header+"\n"+formatEvent(event))
}

// send pushes one message through the rate limiter. Failures are logged
// and counted; the message is dropped, never retried.
func (g *Gateway) send(ctx context.Context, chatID int64, text string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := g.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		metrics.SendFailures.Inc()
		slog.Error("bot: send failed", "chat", chatID, "error", err)
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}
