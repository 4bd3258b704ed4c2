package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	ApplySchema(ctx context.Context) error

	CreateChatSystem(ctx context.Context, create *ChatSystem) (*ChatSystem, error)
	GetChatSystem(ctx context.Context, id int32) (*ChatSystem, error)
	GetChatSystemByChannel(ctx context.Context, channel int64) (*ChatSystem, error)
	DeleteChatSystem(ctx context.Context, id int32) error
	ListSystemChats(ctx context.Context) ([]*SystemChats, error)

	CreateChat(ctx context.Context, create *Chat) (*Chat, error)
	GetChatByPlatformID(ctx context.Context, chatID int64) (*Chat, error)
	ListChatsBySystem(ctx context.Context, systemID int32) ([]*Chat, error)
	DeleteChat(ctx context.Context, id int32) error

	CreateUser(ctx context.Context, create *User) (*User, error)
	GetUser(ctx context.Context, id int32) (*User, error)
	GetUserByPlatformID(ctx context.Context, userID int64) (*User, error)
	DeleteUser(ctx context.Context, id int32) error
	AddUserChat(ctx context.Context, usersID, chatsID int32) error
	RemoveUserChat(ctx context.Context, usersID, chatsID int32) error
	ListUserChats(ctx context.Context) ([]*UserChats, error)

	CreateEvent(ctx context.Context, create *CreateEvent) (*Event, error)
	GetEvent(ctx context.Context, id int32) (*Event, error)
	UpdateEvent(ctx context.Context, update *UpdateEvent) (*Event, error)
	DeleteEvent(ctx context.Context, id int32) error
	ListEventsInRange(ctx context.Context, find *FindEventRange) ([]*Event, error)
	ListEventsBySystem(ctx context.Context, systemID int32) ([]*Event, error)
	ListEventsByHost(ctx context.Context, usersID int32) ([]*Event, error)

	CreateNewEventLink(ctx context.Context, create *NewEventLink) (*NewEventLink, error)
	GetNewEventLink(ctx context.Context, id int32) (*NewEventLink, error)
	ConsumeNewEventLink(ctx context.Context, linkID int32, create *CreateEvent) (*Event, error)
	CreateEditEventLink(ctx context.Context, create *EditEventLink) (*EditEventLink, error)
	GetEditEventLink(ctx context.Context, id int32) (*EditEventLink, error)
	ConsumeEditEventLink(ctx context.Context, linkID int32, update *UpdateEvent) (*Event, error)
}
