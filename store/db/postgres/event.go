package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hrygo/herald/store"
)

func (d *DB) CreateEvent(ctx context.Context, create *store.CreateEvent) (*store.Event, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	event, err := createEventTx(ctx, tx, create)
	if err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event: %w", err)
	}
	if err := d.attachHosts(ctx, []*store.Event{event}); err != nil {
		return nil, err
	}
	return event, nil
}

// createEventTx inserts the event row and its host relations within tx.
func createEventTx(ctx context.Context, tx *sql.Tx, create *store.CreateEvent) (*store.Event, error) {
	fields := []string{"start_date", "end_date", "title", "description", "system_id", "timezone"}
	args := []any{create.StartDate.UTC().Unix(), create.EndDate.UTC().Unix(), create.Title, create.Description, create.SystemID, create.Timezone}

	event := &store.Event{
		StartDate:   create.StartDate.UTC(),
		EndDate:     create.EndDate.UTC(),
		Title:       create.Title,
		Description: create.Description,
		SystemID:    create.SystemID,
		Timezone:    create.Timezone,
	}

	stmt := `INSERT INTO events (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&event.ID); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	for _, hostID := range create.HostIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hosts (users_id, events_id) VALUES (`+placeholders(2)+`) ON CONFLICT DO NOTHING`,
			hostID, event.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to create host relation: %w", err)
		}
	}

	return event, nil
}

func (d *DB) GetEvent(ctx context.Context, id int32) (*store.Event, error) {
	event := &store.Event{}
	var startTs, endTs int64
	err := d.db.QueryRowContext(ctx,
		`SELECT id, start_date, end_date, title, description, system_id, timezone FROM events WHERE id = `+placeholder(1), id,
	).Scan(&event.ID, &startTs, &endTs, &event.Title, &event.Description, &event.SystemID, &event.Timezone)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	event.StartDate = time.Unix(startTs, 0).UTC()
	event.EndDate = time.Unix(endTs, 0).UTC()

	if err := d.attachHosts(ctx, []*store.Event{event}); err != nil {
		return nil, err
	}
	return event, nil
}

func (d *DB) UpdateEvent(ctx context.Context, update *store.UpdateEvent) (*store.Event, error) {
	event, err := updateEventTx(ctx, d.db, update)
	if err != nil {
		return nil, err
	}
	if err := d.attachHosts(ctx, []*store.Event{event}); err != nil {
		return nil, err
	}
	return event, nil
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func updateEventTx(ctx context.Context, q queryRower, update *store.UpdateEvent) (*store.Event, error) {
	set, args := []string{}, []any{}

	if update.StartDate != nil {
		set, args = append(set, "start_date = "+placeholder(len(args)+1)), append(args, update.StartDate.UTC().Unix())
	}
	if update.EndDate != nil {
		set, args = append(set, "end_date = "+placeholder(len(args)+1)), append(args, update.EndDate.UTC().Unix())
	}
	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Description != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *update.Description)
	}
	if update.Timezone != nil {
		set, args = append(set, "timezone = "+placeholder(len(args)+1)), append(args, *update.Timezone)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE events SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, start_date, end_date, title, description, system_id, timezone`

	event := &store.Event{}
	var startTs, endTs int64
	err := q.QueryRowContext(ctx, stmt, args...).Scan(
		&event.ID, &startTs, &endTs, &event.Title, &event.Description, &event.SystemID, &event.Timezone,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	event.StartDate = time.Unix(startTs, 0).UTC()
	event.EndDate = time.Unix(endTs, 0).UTC()
	return event, nil
}

func (d *DB) DeleteEvent(ctx context.Context, id int32) error {
	// Host relations cascade through the foreign key.
	result, err := d.db.ExecContext(ctx, `DELETE FROM events WHERE id = `+placeholder(1), id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) ListEventsInRange(ctx context.Context, find *store.FindEventRange) ([]*store.Event, error) {
	query := `SELECT id, start_date, end_date, title, description, system_id, timezone
		FROM events
		WHERE start_date >= ` + placeholder(1) + ` AND start_date <= ` + placeholder(2) + `
		ORDER BY start_date`
	return d.listEvents(ctx, query, find.From.UTC().Unix(), find.To.UTC().Unix())
}

func (d *DB) ListEventsBySystem(ctx context.Context, systemID int32) ([]*store.Event, error) {
	query := `SELECT id, start_date, end_date, title, description, system_id, timezone
		FROM events
		WHERE system_id = ` + placeholder(1) + `
		ORDER BY start_date`
	return d.listEvents(ctx, query, systemID)
}

func (d *DB) ListEventsByHost(ctx context.Context, usersID int32) ([]*store.Event, error) {
	query := `SELECT e.id, e.start_date, e.end_date, e.title, e.description, e.system_id, e.timezone
		FROM events e
		JOIN hosts h ON h.events_id = e.id
		WHERE h.users_id = ` + placeholder(1) + `
		ORDER BY e.start_date`
	return d.listEvents(ctx, query, usersID)
}

func (d *DB) listEvents(ctx context.Context, query string, args ...any) ([]*store.Event, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Event, 0)
	for rows.Next() {
		event := &store.Event{}
		var startTs, endTs int64
		if err := rows.Scan(&event.ID, &startTs, &endTs, &event.Title, &event.Description, &event.SystemID, &event.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.StartDate = time.Unix(startTs, 0).UTC()
		event.EndDate = time.Unix(endTs, 0).UTC()
		list = append(list, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	if err := d.attachHosts(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// attachHosts loads host users for the given events in one query to avoid
// the N+1 problem. Events without hosts keep an empty slice.
func (d *DB) attachHosts(ctx context.Context, events []*store.Event) error {
	if len(events) == 0 {
		return nil
	}

	byID := make(map[int32]*store.Event, len(events))
	ids := make([]int32, 0, len(events))
	for _, event := range events {
		event.Hosts = []*store.User{}
		byID[event.ID] = event
		ids = append(ids, event.ID)
	}

	query := `SELECT h.events_id, u.id, u.user_id, u.username
		FROM hosts h
		JOIN users u ON u.id = h.users_id
		WHERE h.events_id = ANY(` + placeholder(1) + `)
		ORDER BY h.events_id, u.id`

	rows, err := d.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID int32
		user := &store.User{}
		if err := rows.Scan(&eventID, &user.ID, &user.UserID, &user.Username); err != nil {
			return fmt.Errorf("failed to scan host: %w", err)
		}
		if event, ok := byID[eventID]; ok {
			event.Hosts = append(event.Hosts, user)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate hosts: %w", err)
	}
	return nil
}

// rollback aborts tx and keeps the original cause distinct from any
// rollback failure.
func rollback(tx *sql.Tx, cause error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, cause)
	}
	return cause
}
