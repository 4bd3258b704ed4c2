package bot

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/herald/store"
)

// Callback payload kinds. Telegram caps callback_data at 64 bytes, so the
// payloads carry only ids and a truncated title.
const (
	callbackNewEvent    = "new_event"
	callbackEditEvent   = "edit_event"
	callbackDeleteEvent = "delete_event"
)

type callbackPayload struct {
	Type      string `json:"type"`
	ChannelID int64  `json:"channel_id,omitempty"`
	EventID   int32  `json:"event_id,omitempty"`
	SystemID  int32  `json:"system_id,omitempty"`
	Title     string `json:"title,omitempty"`
}

func marshalPayload(p callbackPayload) string {
	data, _ := json.Marshal(p)
	return string(data)
}

// channelKeyboard builds the channel picker for /new. One button per
// announcement channel the user can reach.
func channelKeyboard(channels []int64) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(channels))
	for _, channel := range channels {
		data := marshalPayload(callbackPayload{Type: callbackNewEvent, ChannelID: channel})
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Channel %d", channel), data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// eventKeyboard builds the event picker for /edit and /delete.
func eventKeyboard(events []*store.Event, kind string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(events))
	for _, event := range events {
		payload := callbackPayload{Type: kind, EventID: event.ID}
		if kind == callbackDeleteEvent {
			payload.SystemID = event.SystemID
			payload.Title = truncate(event.Title, 24)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncate(event.Title, 32), marshalPayload(payload)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
