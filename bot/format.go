package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/herald/store"
)

// Announcement headers.
const (
	headerCreated = "New Event!"
	headerUpdated = "Event updated!"
	headerSoon    = "Event starting soon!"
	headerStarted = "Event started!"
	headerEnded   = "Event ended!"
)

// formatEvent renders the fixed human-readable announcement body:
//
//	Title
//	When: H:MM TZNAME, Weekday, Month D{st|nd|rd|th}
//	Duration: <N> Weeks|Days|Hours|Minutes|No time
//	Description: ...
//	Hosts: @u1, @u2
//
// The start time is shown in the zone the event was authored in.
func formatEvent(event *store.Event) string {
	start := event.StartDate
	if loc, err := time.LoadLocation(event.Timezone); err == nil {
		start = start.In(loc)
	}

	var b strings.Builder
	b.WriteString(event.Title)
	b.WriteString(fmt.Sprintf("\nWhen: %d:%02d %s, %s, %s %d%s",
		start.Hour(), start.Minute(), event.Timezone,
		start.Weekday(), start.Month(), start.Day(), ordinalSuffix(start.Day())))
	b.WriteString("\nDuration: ")
	b.WriteString(formatDuration(event.EndDate.Sub(event.StartDate)))
	b.WriteString("\nDescription: ")
	b.WriteString(event.Description)
	b.WriteString("\nHosts: ")
	b.WriteString(formatHosts(event.Hosts))
	return b.String()
}

// formatDuration picks the largest nonzero unit among weeks, days, hours
// and minutes, or "No time" when the interval is below one minute.
func formatDuration(d time.Duration) string {
	switch {
	case d >= 7*24*time.Hour:
		return fmt.Sprintf("%d Weeks", int(d/(7*24*time.Hour)))
	case d >= 24*time.Hour:
		return fmt.Sprintf("%d Days", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%d Hours", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%d Minutes", int(d/time.Minute))
	}
	return "No time"
}

func formatHosts(hosts []*store.User) string {
	names := make([]string, 0, len(hosts))
	for _, host := range hosts {
		names = append(names, "@"+host.Username)
	}
	return strings.Join(names, ", ")
}

// ordinalSuffix returns st/nd/rd/th for a day of month.
func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}
