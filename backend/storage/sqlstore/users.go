// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

// UpsertUser mirrors an identity record. An existing public key is kept.
func (s *Store) UpsertUser(ctx context.Context, user models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.timestamp()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, name, email, public_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, email = excluded.email,
			public_key = COALESCE(excluded.public_key, users.public_key)`),
		user.ID, user.Name, nullString(user.Email), nullString(user.PublicKey), toNanos(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *Store) userExists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM users WHERE id = ?`), userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		email     sql.NullString
		publicKey sql.NullString
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Name, &email, &publicKey, &createdAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.PublicKey = publicKey.String
	u.CreatedAt = fromNanos(createdAt)
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, email, public_key, created_at FROM users WHERE id = ?`), userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUsers loads the given users keyed by id. Unknown ids are absent from
// the result.
func (s *Store) GetUsers(ctx context.Context, userIDs []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, name, email, public_key, created_at FROM users
		WHERE id IN (`+placeholders(len(userIDs))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("get users: %w", err)
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

func (s *Store) SetPublicKey(ctx context.Context, userID, publicKey string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET public_key = ? WHERE id = ?`), publicKey, userID)
	if err != nil {
		return fmt.Errorf("set public key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set public key: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}
