package store

import "time"

// Event is a scheduled happening. StartDate and EndDate are stored in UTC;
// Timezone keeps the zone the event was authored in for display.
type Event struct {
	ID          int32
	StartDate   time.Time
	EndDate     time.Time
	Title       string
	Description string
	SystemID    int32
	Timezone    string
	// Hosts is the ordered list of hosting users. May be empty; an event
	// without hosts is a permissible state, not an error.
	Hosts []*User
}

// CreateEvent is the parameter object for creating an event with its hosts.
type CreateEvent struct {
	StartDate   time.Time
	EndDate     time.Time
	Title       string
	Description string
	SystemID    int32
	Timezone    string
	// HostIDs are internal user ids (users.id) inserted into the hosts relation.
	HostIDs []int32
}

// UpdateEvent is the parameter object for a partial event update.
type UpdateEvent struct {
	ID          int32
	StartDate   *time.Time
	EndDate     *time.Time
	Title       *string
	Description *string
	Timezone    *string
}

// FindEventRange selects events whose start date falls within [From, To].
type FindEventRange struct {
	From time.Time
	To   time.Time
}
