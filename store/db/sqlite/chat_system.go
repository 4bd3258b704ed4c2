package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/herald/store"
)

func (d *DB) CreateChatSystem(ctx context.Context, create *store.ChatSystem) (*store.ChatSystem, error) {
	stmt := `INSERT INTO chat_systems (events_channel) VALUES (?) RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, create.EventsChannel).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat_system: %w", err)
	}
	return create, nil
}

func (d *DB) GetChatSystem(ctx context.Context, id int32) (*store.ChatSystem, error) {
	system := &store.ChatSystem{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, events_channel FROM chat_systems WHERE id = ?`, id,
	).Scan(&system.ID, &system.EventsChannel)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat_system: %w", err)
	}
	return system, nil
}

func (d *DB) GetChatSystemByChannel(ctx context.Context, channel int64) (*store.ChatSystem, error) {
	system := &store.ChatSystem{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, events_channel FROM chat_systems WHERE events_channel = ?`, channel,
	).Scan(&system.ID, &system.EventsChannel)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat_system by channel: %w", err)
	}
	return system, nil
}

func (d *DB) DeleteChatSystem(ctx context.Context, id int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM chat_systems WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat_system: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) ListSystemChats(ctx context.Context) ([]*store.SystemChats, error) {
	query := `
		SELECT s.events_channel, c.chat_id
		FROM chat_systems s
		JOIN chats c ON c.system_id = s.id
		ORDER BY s.events_channel, c.chat_id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list system chats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.SystemChats, 0)
	var current *store.SystemChats
	for rows.Next() {
		var channel, chatID int64
		if err := rows.Scan(&channel, &chatID); err != nil {
			return nil, fmt.Errorf("failed to scan system chats: %w", err)
		}
		if current == nil || current.EventsChannel != channel {
			current = &store.SystemChats{EventsChannel: channel}
			list = append(list, current)
		}
		current.ChatIDs = append(current.ChatIDs, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate system chats: %w", err)
	}
	return list, nil
}
