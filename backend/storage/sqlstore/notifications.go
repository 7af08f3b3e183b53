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
	"fmt"

	"github.com/google/uuid"

	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

const defaultNotificationLimit = 50

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Type == "" {
		n.Type = models.NotificationTypeMessage
	}
	n.IsRead = false
	n.CreatedAt = s.timestamp()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO notifications (id, user_id, type, title, message, related_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullString(n.RelatedID), false, toNanos(n.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return &n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, type, title, message, related_id, is_read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n         models.Notification
			relatedID sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &relatedID, &n.IsRead, &createdAt); err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		n.RelatedID = relatedID.String
		n.CreatedAt = fromNanos(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`), true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`), userID, false).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}
