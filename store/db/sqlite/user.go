package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/herald/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	stmt := `INSERT INTO users (user_id, username) VALUES (?, ?) RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, create.UserID, create.Username).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return create, nil
}

func (d *DB) GetUser(ctx context.Context, id int32) (*store.User, error) {
	user := &store.User{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, username FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.UserID, &user.Username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (d *DB) GetUserByPlatformID(ctx context.Context, userID int64) (*store.User, error) {
	user := &store.User{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, username FROM users WHERE user_id = ?`, userID,
	).Scan(&user.ID, &user.UserID, &user.Username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (d *DB) DeleteUser(ctx context.Context, id int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) AddUserChat(ctx context.Context, usersID, chatsID int32) error {
	stmt := `INSERT OR IGNORE INTO user_chats (users_id, chats_id) VALUES (?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt, usersID, chatsID); err != nil {
		return fmt.Errorf("failed to add user chat relation: %w", err)
	}
	return nil
}

func (d *DB) RemoveUserChat(ctx context.Context, usersID, chatsID int32) error {
	stmt := `DELETE FROM user_chats WHERE users_id = ? AND chats_id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, usersID, chatsID); err != nil {
		return fmt.Errorf("failed to remove user chat relation: %w", err)
	}
	return nil
}

func (d *DB) ListUserChats(ctx context.Context) ([]*store.UserChats, error) {
	query := `
		SELECT u.user_id, c.chat_id
		FROM users u
		JOIN user_chats uc ON uc.users_id = u.id
		JOIN chats c ON c.id = uc.chats_id
		ORDER BY u.user_id, c.chat_id`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user chats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.UserChats, 0)
	var current *store.UserChats
	for rows.Next() {
		var userID, chatID int64
		if err := rows.Scan(&userID, &chatID); err != nil {
			return nil, fmt.Errorf("failed to scan user chats: %w", err)
		}
		if current == nil || current.UserID != userID {
			current = &store.UserChats{UserID: userID}
			list = append(list, current)
		}
		current.ChatIDs = append(current.ChatIDs, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user chats: %w", err)
	}
	return list, nil
}
