package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/herald/store"
)

func TestFormatEvent(t *testing.T) {
	central, err := time.LoadLocation("US/Central")
	require.NoError(t, err)

	start := time.Date(2030, 1, 15, 10, 0, 0, 0, central)
	event := &store.Event{
		ID:          1,
		Title:       "Demo",
		Description: "hi",
		StartDate:   start.UTC(),
		EndDate:     start.Add(time.Hour).UTC(),
		Timezone:    "US/Central",
		Hosts:       []*store.User{{ID: 1, UserID: 100, Username: "user100"}},
	}

	expected := "Demo\n" +
		"When: 10:00 US/Central, Tuesday, January 15th\n" +
		"Duration: 1 Hours\n" +
		"Description: hi\n" +
		"Hosts: @user100"
	assert.Equal(t, expected, formatEvent(event))
	assert.Equal(t, "New Event!\n"+expected, headerCreated+"\n"+formatEvent(event))
}

func TestFormatEventMultipleHosts(t *testing.T) {
	event := &store.Event{
		Title:     "Raid night",
		StartDate: time.Date(2030, 3, 2, 20, 30, 0, 0, time.UTC),
		EndDate:   time.Date(2030, 3, 2, 20, 30, 30, 0, time.UTC),
		Timezone:  "UTC",
		Hosts: []*store.User{
			{UserID: 1, Username: "alice"},
			{UserID: 2, Username: "bob"},
		},
	}

	got := formatEvent(event)
	assert.Contains(t, got, "When: 20:30 UTC, Saturday, March 2nd")
	assert.Contains(t, got, "Duration: No time")
	assert.Contains(t, got, "Hosts: @alice, @bob")
}

func TestFormatEventUnknownTimezoneFallsBackToUTC(t *testing.T) {
	event := &store.Event{
		Title:     "Mystery",
		StartDate: time.Date(2030, 6, 1, 8, 5, 0, 0, time.UTC),
		EndDate:   time.Date(2030, 6, 1, 9, 5, 0, 0, time.UTC),
		Timezone:  "Mars/Olympus",
	}

	got := formatEvent(event)
	assert.Contains(t, got, "When: 8:05 Mars/Olympus, Saturday, June 1st")
	assert.Contains(t, got, "Hosts: ")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "No time"},
		{time.Minute, "1 Minutes"},
		{45 * time.Minute, "45 Minutes"},
		{time.Hour, "1 Hours"},
		{90 * time.Minute, "1 Hours"},
		{23 * time.Hour, "23 Hours"},
		{24 * time.Hour, "1 Days"},
		{6 * 24 * time.Hour, "6 Days"},
		{7 * 24 * time.Hour, "1 Weeks"},
		{3 * 7 * 24 * time.Hour, "3 Weeks"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d), "duration %s", tt.d)
	}
}

func TestOrdinalSuffix(t *testing.T) {
	tests := map[int]string{
		1: "st", 2: "nd", 3: "rd", 4: "th",
		11: "th", 12: "th", 13: "th",
		21: "st", 22: "nd", 23: "rd", 24: "th",
		30: "th", 31: "st",
	}
	for day, want := range tests {
		assert.Equal(t, want, ordinalSuffix(day), "day %d", day)
	}
}
