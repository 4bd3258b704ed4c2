package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/herald/store"
)

func (d *DB) CreateChat(ctx context.Context, create *store.Chat) (*store.Chat, error) {
	stmt := `INSERT INTO chats (chat_id, system_id) VALUES (` + placeholders(2) + `) RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, create.ChatID, create.SystemID).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return create, nil
}

func (d *DB) GetChatByPlatformID(ctx context.Context, chatID int64) (*store.Chat, error) {
	chat := &store.Chat{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, chat_id, system_id FROM chats WHERE chat_id = `+placeholder(1), chatID,
	).Scan(&chat.ID, &chat.ChatID, &chat.SystemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (d *DB) ListChatsBySystem(ctx context.Context, systemID int32) ([]*store.Chat, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, chat_id, system_id FROM chats WHERE system_id = `+placeholder(1)+` ORDER BY id`, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Chat, 0)
	for rows.Next() {
		chat := &store.Chat{}
		if err := rows.Scan(&chat.ID, &chat.ChatID, &chat.SystemID); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		list = append(list, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteChat(ctx context.Context, id int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM chats WHERE id = `+placeholder(1), id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
