package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/herald/internal/profile"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrLinkUsed is returned when a one-time link has already been redeemed.
var ErrLinkUsed = errors.New("link already used")

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate applies the embedded schema when the database is uninitialized.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check database state")
	}
	if initialized {
		return nil
	}
	if err := s.driver.ApplySchema(ctx); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// ChatSystem methods.

func (s *Store) CreateChatSystem(ctx context.Context, create *ChatSystem) (*ChatSystem, error) {
	return s.driver.CreateChatSystem(ctx, create)
}

func (s *Store) GetChatSystem(ctx context.Context, id int32) (*ChatSystem, error) {
	return s.driver.GetChatSystem(ctx, id)
}

func (s *Store) GetChatSystemByChannel(ctx context.Context, channel int64) (*ChatSystem, error) {
	return s.driver.GetChatSystemByChannel(ctx, channel)
}

func (s *Store) DeleteChatSystem(ctx context.Context, id int32) error {
	return s.driver.DeleteChatSystem(ctx, id)
}

func (s *Store) ListSystemChats(ctx context.Context) ([]*SystemChats, error) {
	return s.driver.ListSystemChats(ctx)
}

// Chat methods.

func (s *Store) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	return s.driver.CreateChat(ctx, create)
}

func (s *Store) GetChatByPlatformID(ctx context.Context, chatID int64) (*Chat, error) {
	return s.driver.GetChatByPlatformID(ctx, chatID)
}

func (s *Store) ListChatsBySystem(ctx context.Context, systemID int32) ([]*Chat, error) {
	return s.driver.ListChatsBySystem(ctx, systemID)
}

func (s *Store) DeleteChat(ctx context.Context, id int32) error {
	return s.driver.DeleteChat(ctx, id)
}

// User methods.

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) GetUser(ctx context.Context, id int32) (*User, error) {
	return s.driver.GetUser(ctx, id)
}

func (s *Store) GetUserByPlatformID(ctx context.Context, userID int64) (*User, error) {
	return s.driver.GetUserByPlatformID(ctx, userID)
}

func (s *Store) DeleteUser(ctx context.Context, id int32) error {
	return s.driver.DeleteUser(ctx, id)
}

func (s *Store) AddUserChat(ctx context.Context, usersID, chatsID int32) error {
	return s.driver.AddUserChat(ctx, usersID, chatsID)
}

func (s *Store) RemoveUserChat(ctx context.Context, usersID, chatsID int32) error {
	return s.driver.RemoveUserChat(ctx, usersID, chatsID)
}

func (s *Store) ListUserChats(ctx context.Context) ([]*UserChats, error) {
	return s.driver.ListUserChats(ctx)
}

// Event methods.

func (s *Store) CreateEvent(ctx context.Context, create *CreateEvent) (*Event, error) {
	return s.driver.CreateEvent(ctx, create)
}

func (s *Store) GetEvent(ctx context.Context, id int32) (*Event, error) {
	return s.driver.GetEvent(ctx, id)
}

func (s *Store) UpdateEvent(ctx context.Context, update *UpdateEvent) (*Event, error) {
	return s.driver.UpdateEvent(ctx, update)
}

func (s *Store) DeleteEvent(ctx context.Context, id int32) error {
	return s.driver.DeleteEvent(ctx, id)
}

func (s *Store) ListEventsInRange(ctx context.Context, find *FindEventRange) ([]*Event, error) {
	return s.driver.ListEventsInRange(ctx, find)
}

func (s *Store) ListEventsBySystem(ctx context.Context, systemID int32) ([]*Event, error) {
	return s.driver.ListEventsBySystem(ctx, systemID)
}

func (s *Store) ListEventsByHost(ctx context.Context, usersID int32) ([]*Event, error) {
	return s.driver.ListEventsByHost(ctx, usersID)
}

// Link methods.

func (s *Store) CreateNewEventLink(ctx context.Context, create *NewEventLink) (*NewEventLink, error) {
	return s.driver.CreateNewEventLink(ctx, create)
}

func (s *Store) GetNewEventLink(ctx context.Context, id int32) (*NewEventLink, error) {
	return s.driver.GetNewEventLink(ctx, id)
}

func (s *Store) ConsumeNewEventLink(ctx context.Context, linkID int32, create *CreateEvent) (*Event, error) {
	return s.driver.ConsumeNewEventLink(ctx, linkID, create)
}

func (s *Store) CreateEditEventLink(ctx context.Context, create *EditEventLink) (*EditEventLink, error) {
	return s.driver.CreateEditEventLink(ctx, create)
}

func (s *Store) GetEditEventLink(ctx context.Context, id int32) (*EditEventLink, error) {
	return s.driver.GetEditEventLink(ctx, id)
}

func (s *Store) ConsumeEditEventLink(ctx context.Context, linkID int32, update *UpdateEvent) (*Event, error) {
	return s.driver.ConsumeEditEventLink(ctx, linkID, update)
}
