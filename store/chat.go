package store

// Chat is a group chat that receives mentions of announcements.
type Chat struct {
	ID int32
	// ChatID is the Telegram chat id.
	ChatID int64
	// SystemID is the owning chat system.
	SystemID int32
}
