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
	"fmt"
)

// Migrate creates the chat schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Local mirror of the identity service. public_key is the only column
		// written by chat; private keys never reach the server.
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255),
			public_key TEXT,
			created_at BIGINT NOT NULL
		)`,

		// Messages keyed by conversation key + creation time. No conversation
		// table: conversations are derived from this one.
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			conversation_key VARCHAR(300) NOT NULL,
			sender_id VARCHAR(128) NOT NULL,
			receiver_id VARCHAR(128) NOT NULL,
			content TEXT NOT NULL,
			is_encrypted BOOLEAN NOT NULL DEFAULT FALSE,
			listing_id VARCHAR(128),
			client_message_id VARCHAR(128),
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at BIGINT,
			created_at BIGINT NOT NULL,
			CHECK (sender_id <> receiver_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_key, created_at, id)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_unread
		ON messages(receiver_id, is_read)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_sender
		ON messages(sender_id, created_at)`,

		// De-duplicates client resends carrying the same token.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_id
		ON messages(sender_id, client_message_id)
		WHERE client_message_id IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			type VARCHAR(32) NOT NULL,
			title VARCHAR(100) NOT NULL,
			message VARCHAR(500) NOT NULL,
			related_id VARCHAR(64),
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
