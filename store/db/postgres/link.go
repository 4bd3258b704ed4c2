package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/herald/store"
)

func (d *DB) CreateNewEventLink(ctx context.Context, create *store.NewEventLink) (*store.NewEventLink, error) {
	stmt := `INSERT INTO new_event_links (users_id, system_id, secret, used)
		VALUES (` + placeholders(4) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, create.UsersID, create.SystemID, create.SecretHash, false).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create new_event_link: %w", err)
	}
	create.Used = false
	return create, nil
}

func (d *DB) GetNewEventLink(ctx context.Context, id int32) (*store.NewEventLink, error) {
	link := &store.NewEventLink{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, users_id, system_id, secret, used FROM new_event_links WHERE id = `+placeholder(1), id,
	).Scan(&link.ID, &link.UsersID, &link.SystemID, &link.SecretHash, &link.Used)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get new_event_link: %w", err)
	}
	return link, nil
}

// ConsumeNewEventLink marks the link used and creates the event in one
// transaction, so a link grants at most one successful mutation.
func (d *DB) ConsumeNewEventLink(ctx context.Context, linkID int32, create *store.CreateEvent) (*store.Event, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := markLinkUsedTx(ctx, tx, "new_event_links", linkID); err != nil {
		return nil, rollback(tx, err)
	}

	event, err := createEventTx(ctx, tx, create)
	if err != nil {
		return nil, rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit link redemption: %w", err)
	}

	if err := d.attachHosts(ctx, []*store.Event{event}); err != nil {
		return nil, err
	}
	return event, nil
}

func (d *DB) CreateEditEventLink(ctx context.Context, create *store.EditEventLink) (*store.EditEventLink, error) {
	stmt := `INSERT INTO edit_event_links (users_id, system_id, events_id, secret, used)
		VALUES (` + placeholders(5) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, create.UsersID, create.SystemID, create.EventID, create.SecretHash, false).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create edit_event_link: %w", err)
	}
	create.Used = false
	return create, nil
}

func (d *DB) GetEditEventLink(ctx context.Context, id int32) (*store.EditEventLink, error) {
	link := &store.EditEventLink{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, users_id, system_id, events_id, secret, used FROM edit_event_links WHERE id = `+placeholder(1), id,
	).Scan(&link.ID, &link.UsersID, &link.SystemID, &link.EventID, &link.SecretHash, &link.Used)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get edit_event_link: %w", err)
	}
	return link, nil
}

// ConsumeEditEventLink marks the link used and applies the update in one
// transaction.
func (d *DB) ConsumeEditEventLink(ctx context.Context, linkID int32, update *store.UpdateEvent) (*store.Event, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := markLinkUsedTx(ctx, tx, "edit_event_links", linkID); err != nil {
		return nil, rollback(tx, err)
	}

	event, err := updateEventTx(ctx, tx, update)
	if err != nil {
		return nil, rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit link redemption: %w", err)
	}

	if err := d.attachHosts(ctx, []*store.Event{event}); err != nil {
		return nil, err
	}
	return event, nil
}

// markLinkUsedTx flips used false->true exactly once. A second redemption
// matches zero rows and fails with ErrLinkUsed.
func markLinkUsedTx(ctx context.Context, tx *sql.Tx, table string, linkID int32) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET used = TRUE WHERE id = `+placeholder(1)+` AND used = FALSE`, linkID)
	if err != nil {
		return fmt.Errorf("failed to mark link used: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrLinkUsed
	}
	return nil
}
