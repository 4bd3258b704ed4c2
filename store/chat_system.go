package store

// ChatSystem is the channel-plus-linked-chats unit; one per announcement channel.
type ChatSystem struct {
	ID int32
	// EventsChannel is the Telegram channel id announcements are posted to.
	EventsChannel int64
}

// SystemChats pairs an announcement channel with the platform ids of its
// linked group chats. Used to warm the user index at startup.
type SystemChats struct {
	EventsChannel int64
	ChatIDs       []int64
}
