package store

// User is a chat member who may host events.
type User struct {
	ID int32
	// UserID is the Telegram user id.
	UserID int64
	// Username is the display username, without the leading "@".
	Username string
}

// UserChats pairs a platform user id with the platform ids of the group
// chats the user belongs to. Used to warm the user index at startup.
type UserChats struct {
	UserID  int64
	ChatIDs []int64
}
