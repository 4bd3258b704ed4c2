// Package userindex keeps the in-memory membership cache: which group
// chats each user is in, and which group chats each announcement channel
// is linked to. It is authoritative for the "which channel-create forms
// may this user see?" decision.
package userindex

import (
	"sort"
	"sync"

	"github.com/hrygo/herald/store"
)

// TouchResult reports what recording a user/chat observation changed.
type TouchResult int

const (
	// NewUser: the user was unknown before this touch.
	NewUser TouchResult = iota
	// NewRelation: known user, first time in this chat.
	NewRelation
	// KnownRelation: nothing new.
	KnownRelation
)

// RemoveResult reports the effect of removing a user/chat relation.
type RemoveResult int

const (
	// RelationRemoved: the user still belongs to other chats.
	RelationRemoved RemoveResult = iota
	// UserEmpty: that was the user's last chat; the user row should go.
	UserEmpty
	// UnknownRelation: the relation was not in the index.
	UnknownRelation
)

// Index maps platform ids only; database row ids never enter the cache.
type Index struct {
	mu sync.RWMutex
	// userChats: user id -> set of group chat ids.
	userChats map[int64]map[int64]struct{}
	// channelChats: events channel id -> set of linked group chat ids.
	channelChats map[int64]map[int64]struct{}
}

func New() *Index {
	return &Index{
		userChats:    make(map[int64]map[int64]struct{}),
		channelChats: make(map[int64]map[int64]struct{}),
	}
}

// Warm seeds the index from the two startup store queries.
func (i *Index) Warm(users []*store.UserChats, systems []*store.SystemChats) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, user := range users {
		set := make(map[int64]struct{}, len(user.ChatIDs))
		for _, chatID := range user.ChatIDs {
			set[chatID] = struct{}{}
		}
		i.userChats[user.UserID] = set
	}
	for _, system := range systems {
		set := make(map[int64]struct{}, len(system.ChatIDs))
		for _, chatID := range system.ChatIDs {
			set[chatID] = struct{}{}
		}
		i.channelChats[system.EventsChannel] = set
	}
}

// Touch records that user was observed in chat.
func (i *Index) Touch(user, chat int64) TouchResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	chats, known := i.userChats[user]
	if !known {
		i.userChats[user] = map[int64]struct{}{chat: {}}
		return NewUser
	}
	if _, ok := chats[chat]; ok {
		return KnownRelation
	}
	chats[chat] = struct{}{}
	return NewRelation
}

// TouchChannel records that chat is linked to the events channel.
func (i *Index) TouchChannel(channel, chat int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	chats, known := i.channelChats[channel]
	if !known {
		i.channelChats[channel] = map[int64]struct{}{chat: {}}
		return
	}
	chats[chat] = struct{}{}
}

// LookupChats returns the group chats the user is known to be in.
func (i *Index) LookupChats(user int64) []int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return sortedKeys(i.userChats[user])
}

// LookupChannels returns the announcement channels reachable by the user:
// every channel with at least one linked chat the user belongs to.
func (i *Index) LookupChannels(user int64) []int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	chats := i.userChats[user]
	if len(chats) == 0 {
		return nil
	}
	channels := make([]int64, 0)
	for channel, linked := range i.channelChats {
		for chat := range linked {
			if _, ok := chats[chat]; ok {
				channels = append(channels, channel)
				break
			}
		}
	}
	sort.Slice(channels, func(a, b int) bool { return channels[a] < channels[b] })
	return channels
}

// HasChannelAccess reports whether the user belongs to at least one chat
// linked to the channel. The link broker consults this on redemption.
func (i *Index) HasChannelAccess(user, channel int64) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	chats := i.userChats[user]
	for chat := range i.channelChats[channel] {
		if _, ok := chats[chat]; ok {
			return true
		}
	}
	return false
}

// RemoveRelation forgets that user belongs to chat.
func (i *Index) RemoveRelation(user, chat int64) RemoveResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	chats, known := i.userChats[user]
	if !known {
		return UnknownRelation
	}
	if _, ok := chats[chat]; !ok {
		return UnknownRelation
	}
	delete(chats, chat)
	if len(chats) == 0 {
		delete(i.userChats, user)
		return UserEmpty
	}
	return RelationRemoved
}

func sortedKeys(set map[int64]struct{}) []int64 {
	if len(set) == 0 {
		return nil
	}
	keys := make([]int64, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}
