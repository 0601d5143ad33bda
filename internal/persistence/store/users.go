package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type User struct {
	UserID    int64
	Username  string
	IsAdmin   bool
	CreatedAt time.Time
}

func (s *SQLite) UpsertUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO User (user_id, username, is_admin, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, is_admin = excluded.is_admin`,
		u.UserID, u.Username, boolInt(u.IsAdmin), u.CreatedAt.Unix())
	return err
}

func (s *SQLite) User(ctx context.Context, userID int64) (User, error) {
	u := User{UserID: userID}
	var admin int
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT username, is_admin, created_at FROM User WHERE user_id = ?`, userID).
		Scan(&u.Username, &admin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return u, err
	}
	u.IsAdmin = admin != 0
	u.CreatedAt = unixOrZero(created)
	return u, nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, username, is_admin, created_at FROM User ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		var admin int
		var created int64
		if err := rows.Scan(&u.UserID, &u.Username, &admin, &created); err != nil {
			return nil, err
		}
		u.IsAdmin = admin != 0
		u.CreatedAt = unixOrZero(created)
		out = append(out, u)
	}
	return out, rows.Err()
}
