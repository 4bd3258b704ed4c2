package store

// NewEventLink is a pending "create event" authorization. The secret column
// holds a bcrypt hash of the plaintext token, never the token itself.
type NewEventLink struct {
	ID int32
	// UsersID is the issuing user (users.id).
	UsersID  int32
	SystemID int32
	// SecretHash is the bcrypt hash of the one-time token.
	SecretHash string
	Used       bool
}

// EditEventLink is a pending "edit event" authorization. Same shape as
// NewEventLink but additionally scoped to one event.
type EditEventLink struct {
	ID         int32
	UsersID    int32
	SystemID   int32
	EventID    int32
	SecretHash string
	Used       bool
}
