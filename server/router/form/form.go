// Package form serves the browser-facing event forms reached through
// one-time links. Rendering a form inspects the link; submitting it
// redeems the link, so each form can be submitted exactly once.
package form

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/herald/bot"
	"github.com/hrygo/herald/linkbroker"
	"github.com/hrygo/herald/scheduler"
	"github.com/hrygo/herald/store"
)

// defaultTimezone pre-selects the zone picker on fresh forms.
const defaultTimezone = "US/Central"

// yearSpan is how many years past the current one the year picker offers.
const yearSpan = 4

var timezones = []string{
	"US/Pacific",
	"US/Mountain",
	"US/Central",
	"US/Eastern",
	"UTC",
	"Europe/London",
	"Europe/Berlin",
	"Europe/Moscow",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Australia/Sydney",
}

// fields are the required form keys. Month is zero-based on the wire.
var fields = []string{
	"title", "description", "timezone",
	"start_year", "start_month", "start_day", "start_hour", "start_minute",
	"end_year", "end_month", "end_day", "end_hour", "end_minute",
}

// FormService wires the one-time-link forms to the broker, the scheduler
// and the announcement gateway.
type FormService struct {
	Broker    *linkbroker.Broker
	Scheduler *scheduler.Scheduler
	Gateway   *bot.Gateway
}

func NewFormService(broker *linkbroker.Broker, sched *scheduler.Scheduler, gateway *bot.Gateway) *FormService {
	return &FormService{
		Broker:    broker,
		Scheduler: sched,
		Gateway:   gateway,
	}
}

func (s *FormService) Register(g *echo.Group) {
	g.GET("/events/new/:token", s.newEventForm)
	g.POST("/events/new/:token", s.createEvent)
	g.GET("/events/edit/:token", s.editEventForm)
	g.POST("/events/edit/:token", s.updateEvent)
}

// dateParts carries one datetime's select values. Month is zero-based to
// match the wire format.
type dateParts struct {
	Year, Month, Day, Hour, Minute int
}

func partsOf(t time.Time) dateParts {
	return dateParts{
		Year:   t.Year(),
		Month:  int(t.Month()) - 1,
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

type formPage struct {
	Heading     string
	Title       string
	Description string
	Timezone    string
	Start       dateParts
	End         dateParts
	Years       []int
	Timezones   []string
	Missing     []string
	Errors      map[string]string
}

func yearRange() []int {
	base := time.Now().Year()
	years := make([]int, 0, yearSpan+1)
	for y := base; y <= base+yearSpan; y++ {
		years = append(years, y)
	}
	return years
}

func (s *FormService) newEventForm(c echo.Context) error {
	if _, err := s.Broker.InspectNewLink(c.Request().Context(), c.Param("token")); err != nil {
		return linkError(c, err)
	}
	now := time.Now()
	if loc, err := time.LoadLocation(defaultTimezone); err == nil {
		now = now.In(loc)
	}
	page := &formPage{
		Heading:   "New event",
		Timezone:  defaultTimezone,
		Start:     partsOf(now),
		End:       partsOf(now.Add(time.Hour)),
		Years:     yearRange(),
		Timezones: timezones,
	}
	return c.Render(http.StatusOK, "form.html", page)
}

func (s *FormService) editEventForm(c echo.Context) error {
	event, err := s.Broker.InspectEditLink(c.Request().Context(), c.Param("token"))
	if err != nil {
		return linkError(c, err)
	}
	start, end := event.StartDate, event.EndDate
	if loc, err := time.LoadLocation(event.Timezone); err == nil {
		start = start.In(loc)
		end = end.In(loc)
	}
	page := &formPage{
		Heading:     "Edit event",
		Title:       event.Title,
		Description: event.Description,
		Timezone:    event.Timezone,
		Start:       partsOf(start),
		End:         partsOf(end),
		Years:       yearRange(),
		Timezones:   timezones,
	}
	return c.Render(http.StatusOK, "form.html", page)
}

func (s *FormService) createEvent(c echo.Context) error {
	parsed, page := s.parseSubmission(c, "New event")
	if page != nil {
		return c.Render(http.StatusBadRequest, "form.html", page)
	}

	ctx := c.Request().Context()
	event, err := s.Broker.RedeemNewEventLink(ctx, c.Param("token"), &store.CreateEvent{
		Title:       parsed.title,
		Description: parsed.description,
		Timezone:    parsed.timezone,
		StartDate:   parsed.start,
		EndDate:     parsed.end,
	})
	if err != nil {
		return linkError(c, err)
	}
	s.announceAndTrack(ctx, event, false)
	return c.Render(http.StatusOK, "result.html", "Event created.")
}

func (s *FormService) updateEvent(c echo.Context) error {
	parsed, page := s.parseSubmission(c, "Edit event")
	if page != nil {
		return c.Render(http.StatusBadRequest, "form.html", page)
	}

	ctx := c.Request().Context()
	event, err := s.Broker.RedeemEditEventLink(ctx, c.Param("token"), &store.UpdateEvent{
		Title:       &parsed.title,
		Description: &parsed.description,
		Timezone:    &parsed.timezone,
		StartDate:   &parsed.start,
		EndDate:     &parsed.end,
	})
	if err != nil {
		return linkError(c, err)
	}
	s.announceAndTrack(ctx, event, true)
	return c.Render(http.StatusOK, "result.html", "Event updated.")
}

// announceAndTrack posts the create/update announcement and hands the
// event to the scheduler. Both are best effort; the redemption already
// committed.
func (s *FormService) announceAndTrack(ctx context.Context, event *store.Event, update bool) {
	var err error
	if update {
		err = s.Gateway.AnnounceUpdated(ctx, event)
	} else {
		err = s.Gateway.AnnounceCreated(ctx, event)
	}
	if err != nil {
		slog.Error("form: announcement failed", "event", event.ID, "error", err)
	}
	if update {
		err = s.Scheduler.Update(ctx, event)
	} else {
		err = s.Scheduler.Ingest(ctx, event)
	}
	if err != nil {
		slog.Error("form: scheduler handoff failed", "event", event.ID, "error", err)
	}
}

type submission struct {
	title       string
	description string
	timezone    string
	start       time.Time
	end         time.Time
}

// parseSubmission validates the posted form. On any problem it returns a
// re-renderable page carrying the submitted values, the missing keys and
// per-field errors; on success the page is nil.
func (s *FormService) parseSubmission(c echo.Context, heading string) (*submission, *formPage) {
	values, err := c.FormParams()
	if err != nil {
		return nil, &formPage{
			Heading:   heading,
			Years:     yearRange(),
			Timezones: timezones,
			Errors:    map[string]string{"form": "could not parse form body"},
		}
	}

	missing := make([]string, 0)
	for _, field := range fields {
		if !values.Has(field) {
			missing = append(missing, field)
		}
	}

	page := &formPage{
		Heading:     heading,
		Title:       values.Get("title"),
		Description: values.Get("description"),
		Timezone:    values.Get("timezone"),
		Years:       yearRange(),
		Timezones:   timezones,
		Missing:     missing,
		Errors:      make(map[string]string),
	}
	if len(missing) > 0 {
		return nil, page
	}

	loc, err := time.LoadLocation(page.Timezone)
	if err != nil {
		page.Errors["timezone"] = "unknown timezone"
	}
	page.Start = parseParts(values, "start", page.Errors)
	page.End = parseParts(values, "end", page.Errors)
	if page.Title == "" {
		page.Errors["title"] = "title must not be empty"
	}
	if len(page.Errors) > 0 {
		return nil, page
	}

	// time.Date normalizes overflow, so month 11 day 31 lands on Dec 31
	// and a day past the month's end rolls into the next month.
	start := time.Date(page.Start.Year, time.Month(page.Start.Month+1), page.Start.Day,
		page.Start.Hour, page.Start.Minute, 0, 0, loc).UTC()
	end := time.Date(page.End.Year, time.Month(page.End.Month+1), page.End.Day,
		page.End.Hour, page.End.Minute, 0, 0, loc).UTC()
	// Equal timestamps are allowed; they announce as "No time".
	if end.Before(start) {
		page.Errors["end_year"] = "event must not end before it starts"
		return nil, page
	}

	return &submission{
		title:       page.Title,
		description: page.Description,
		timezone:    page.Timezone,
		start:       start,
		end:         end,
	}, nil
}

// parseParts reads one datetime's five fields, recording range errors
// under the offending key.
func parseParts(values interface{ Get(string) string }, prefix string, errs map[string]string) dateParts {
	read := func(suffix string, min, max int) int {
		key := prefix + "_" + suffix
		n, err := strconv.Atoi(values.Get(key))
		if err != nil {
			errs[key] = "must be a number"
			return min
		}
		if n < min || n > max {
			errs[key] = "out of range"
			return min
		}
		return n
	}
	return dateParts{
		Year:   read("year", 1970, 9999),
		Month:  read("month", 0, 11),
		Day:    read("day", 1, 31),
		Hour:   read("hour", 0, 23),
		Minute: read("minute", 0, 59),
	}
}

// linkError maps broker failures to browser responses. Verification
// failures stay deliberately vague.
func linkError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, linkbroker.ErrUsed):
		return c.Render(http.StatusGone, "result.html", "This link has already been used.")
	case errors.Is(err, linkbroker.ErrVerify):
		return c.Render(http.StatusNotFound, "result.html", "This link is not valid.")
	case errors.Is(err, linkbroker.ErrPermissions):
		return c.Render(http.StatusForbidden, "result.html", "You are not allowed to do that.")
	}
	slog.Error("form: link handling failed", "error", err)
	return c.Render(http.StatusInternalServerError, "result.html", "Something went wrong.")
}
