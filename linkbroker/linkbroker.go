// Package linkbroker mediates the one-time-link protocol for the
// new-event and edit-event flows. A link is issued as a plaintext token
// whose bcrypt hash is stored; redeeming presents the plaintext, which is
// verified and consumed exactly once.
package linkbroker

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrygo/herald/internal/metrics"
	"github.com/hrygo/herald/store"
)

// tokenAlphabet is the fixed 36-character encoding alphabet for link
// tokens. Kept byte-for-byte stable: issued URLs must remain parseable
// across releases.
const tokenAlphabet = "abcdefghizklmnopqrstuvwxyz1234567890"

// tokenBytes is the entropy drawn per token.
const tokenBytes = 8

var (
	// ErrUsed: the link was already redeemed.
	ErrUsed = errors.New("link already used")
	// ErrVerify: the presented token does not match the stored hash, or
	// the token is malformed. Surfaced to the form as a client error.
	ErrVerify = errors.New("link verification failed")
	// ErrPermissions: possession is not enough; the redeeming user lacks
	// the required chat relation or host entry.
	ErrPermissions = errors.New("permission denied")
)

// Membership answers whether a user currently belongs to a chat linked to
// an announcement channel. Implemented by the user index.
type Membership interface {
	HasChannelAccess(user, channel int64) bool
}

// Broker issues and redeems one-time event links.
type Broker struct {
	store   *store.Store
	index   Membership
	baseURL string
	cost    int
}

// Option configures a Broker.
type Option func(*Broker)

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(b *Broker) { b.cost = cost }
}

func New(st *store.Store, index Membership, baseURL string, opts ...Option) *Broker {
	b := &Broker{
		store:   st,
		index:   index,
		baseURL: strings.TrimRight(baseURL, "/"),
		cost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IssueNewEventLink creates a pending create-event authorization for the
// user against the given announcement channel and returns the form URL.
func (b *Broker) IssueNewEventLink(ctx context.Context, userID int64, channel int64) (string, error) {
	user, err := b.store.GetUserByPlatformID(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "failed to look up issuing user")
	}
	system, err := b.store.GetChatSystemByChannel(ctx, channel)
	if err != nil {
		return "", errors.Wrap(err, "failed to look up channel")
	}

	token, hash, err := b.generateToken()
	if err != nil {
		return "", err
	}
	link, err := b.store.CreateNewEventLink(ctx, &store.NewEventLink{
		UsersID:    user.ID,
		SystemID:   system.ID,
		SecretHash: hash,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to store new-event link")
	}

	metrics.LinksIssued.WithLabelValues("new").Inc()
	return fmt.Sprintf("%s/events/new/%s=%d", b.baseURL, token, link.ID), nil
}

// IssueEditEventLink creates a pending edit-event authorization. The
// issuing user must host the event.
func (b *Broker) IssueEditEventLink(ctx context.Context, userID int64, eventID int32) (string, error) {
	user, err := b.store.GetUserByPlatformID(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "failed to look up issuing user")
	}
	event, err := b.store.GetEvent(ctx, eventID)
	if err != nil {
		return "", errors.Wrap(err, "failed to look up event")
	}
	if !hostsUser(event, user.ID) {
		return "", ErrPermissions
	}

	token, hash, err := b.generateToken()
	if err != nil {
		return "", err
	}
	link, err := b.store.CreateEditEventLink(ctx, &store.EditEventLink{
		UsersID:    user.ID,
		SystemID:   event.SystemID,
		EventID:    event.ID,
		SecretHash: hash,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to store edit-event link")
	}

	metrics.LinksIssued.WithLabelValues("edit").Inc()
	return fmt.Sprintf("%s/events/edit/%s=%d", b.baseURL, token, link.ID), nil
}

// InspectNewLink verifies a raw token without consuming it, so the form
// can be rendered. Returns the link row on success.
func (b *Broker) InspectNewLink(ctx context.Context, raw string) (*store.NewEventLink, error) {
	token, id, err := ParseToken(raw)
	if err != nil {
		return nil, err
	}
	link, err := b.store.GetNewEventLink(ctx, id)
	if err != nil {
		return nil, ErrVerify
	}
	if link.Used {
		return nil, ErrUsed
	}
	if bcrypt.CompareHashAndPassword([]byte(link.SecretHash), []byte(token)) != nil {
		return nil, ErrVerify
	}
	// Link rows carry no foreign keys, so the target system may be gone
	// by now. A link pointing nowhere looks invalid, not broken.
	if _, err := b.store.GetChatSystem(ctx, link.SystemID); err != nil {
		return nil, ErrVerify
	}
	return link, nil
}

// InspectEditLink verifies a raw edit token without consuming it and
// returns the target event for form pre-fill.
func (b *Broker) InspectEditLink(ctx context.Context, raw string) (*store.Event, error) {
	link, err := b.verifyEditLink(ctx, raw)
	if err != nil {
		return nil, err
	}
	event, err := b.store.GetEvent(ctx, link.EventID)
	if err != nil {
		return nil, ErrVerify
	}
	return event, nil
}

// RedeemNewEventLink consumes a new-event link and creates the event. The
// link's issuer becomes the sole host; SystemID on create is taken from
// the link, never from the form.
func (b *Broker) RedeemNewEventLink(ctx context.Context, raw string, create *store.CreateEvent) (*store.Event, error) {
	token, id, err := ParseToken(raw)
	if err != nil {
		metrics.LinkRedemptions.WithLabelValues("new", "verify").Inc()
		return nil, err
	}
	link, err := b.store.GetNewEventLink(ctx, id)
	if err != nil {
		metrics.LinkRedemptions.WithLabelValues("new", "verify").Inc()
		return nil, ErrVerify
	}
	if link.Used {
		metrics.LinkRedemptions.WithLabelValues("new", "used").Inc()
		return nil, ErrUsed
	}
	if bcrypt.CompareHashAndPassword([]byte(link.SecretHash), []byte(token)) != nil {
		metrics.LinkRedemptions.WithLabelValues("new", "verify").Inc()
		return nil, ErrVerify
	}

	// Possession is not enough: the redeemer must still be in a chat
	// linked to the target channel.
	user, err := b.store.GetUser(ctx, link.UsersID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LinkRedemptions.WithLabelValues("new", "permissions").Inc()
			return nil, ErrPermissions
		}
		metrics.LinkRedemptions.WithLabelValues("new", "error").Inc()
		return nil, errors.Wrap(err, "failed to look up link user")
	}
	system, err := b.store.GetChatSystem(ctx, link.SystemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LinkRedemptions.WithLabelValues("new", "verify").Inc()
			return nil, ErrVerify
		}
		metrics.LinkRedemptions.WithLabelValues("new", "error").Inc()
		return nil, errors.Wrap(err, "failed to look up link system")
	}
	if !b.index.HasChannelAccess(user.UserID, system.EventsChannel) {
		metrics.LinkRedemptions.WithLabelValues("new", "permissions").Inc()
		return nil, ErrPermissions
	}

	create.SystemID = link.SystemID
	create.HostIDs = []int32{link.UsersID}
	event, err := b.store.ConsumeNewEventLink(ctx, link.ID, create)
	if err != nil {
		if errors.Is(err, store.ErrLinkUsed) {
			metrics.LinkRedemptions.WithLabelValues("new", "used").Inc()
			return nil, ErrUsed
		}
		metrics.LinkRedemptions.WithLabelValues("new", "error").Inc()
		return nil, err
	}
	metrics.LinkRedemptions.WithLabelValues("new", "ok").Inc()
	return event, nil
}

// RedeemEditEventLink consumes an edit-event link and applies the update.
func (b *Broker) RedeemEditEventLink(ctx context.Context, raw string, update *store.UpdateEvent) (*store.Event, error) {
	link, err := b.verifyEditLink(ctx, raw)
	if err != nil {
		result := "verify"
		if errors.Is(err, ErrUsed) {
			result = "used"
		}
		metrics.LinkRedemptions.WithLabelValues("edit", result).Inc()
		return nil, err
	}

	event, err := b.store.GetEvent(ctx, link.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LinkRedemptions.WithLabelValues("edit", "verify").Inc()
			return nil, ErrVerify
		}
		metrics.LinkRedemptions.WithLabelValues("edit", "error").Inc()
		return nil, errors.Wrap(err, "failed to look up event")
	}
	if !hostsUser(event, link.UsersID) {
		metrics.LinkRedemptions.WithLabelValues("edit", "permissions").Inc()
		return nil, ErrPermissions
	}

	update.ID = link.EventID
	updated, err := b.store.ConsumeEditEventLink(ctx, link.ID, update)
	if err != nil {
		if errors.Is(err, store.ErrLinkUsed) {
			metrics.LinkRedemptions.WithLabelValues("edit", "used").Inc()
			return nil, ErrUsed
		}
		metrics.LinkRedemptions.WithLabelValues("edit", "error").Inc()
		return nil, err
	}
	metrics.LinkRedemptions.WithLabelValues("edit", "ok").Inc()
	return updated, nil
}

func (b *Broker) verifyEditLink(ctx context.Context, raw string) (*store.EditEventLink, error) {
	token, id, err := ParseToken(raw)
	if err != nil {
		return nil, err
	}
	link, err := b.store.GetEditEventLink(ctx, id)
	if err != nil {
		return nil, ErrVerify
	}
	if link.Used {
		return nil, ErrUsed
	}
	if bcrypt.CompareHashAndPassword([]byte(link.SecretHash), []byte(token)) != nil {
		return nil, ErrVerify
	}
	return link, nil
}

// generateToken draws tokenBytes of entropy and returns the encoded
// plaintext together with its bcrypt hash.
func (b *Broker) generateToken() (string, string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, "failed to read random bytes")
	}
	token := make([]byte, tokenBytes)
	for i, v := range buf {
		token[i] = tokenAlphabet[int(v)%len(tokenAlphabet)]
	}
	hash, err := bcrypt.GenerateFromPassword(token, b.cost)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to hash token")
	}
	return string(token), string(hash), nil
}

// ParseToken splits a raw "{token}={id}" path segment at the LAST "=",
// so tokens containing "=" would still parse (the alphabet excludes it,
// but the contract is explicit).
func ParseToken(raw string) (string, int32, error) {
	sep := strings.LastIndex(raw, "=")
	if sep <= 0 || sep == len(raw)-1 {
		return "", 0, ErrVerify
	}
	id, err := strconv.ParseInt(raw[sep+1:], 10, 32)
	if err != nil {
		return "", 0, ErrVerify
	}
	return raw[:sep], int32(id), nil
}

func hostsUser(event *store.Event, usersID int32) bool {
	for _, host := range event.Hosts {
		if host.ID == usersID {
			return true
		}
	}
	return false
}
