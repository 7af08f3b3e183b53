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

	"github.com/google/uuid"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/conversation"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

var _ storage.Store = (*Store)(nil)

const messageColumns = `id, conversation_key, sender_id, receiver_id, content, is_encrypted,
	listing_id, client_message_id, is_read, read_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m         models.Message
		listingID sql.NullString
		clientID  sql.NullString
		readAt    sql.NullInt64
		createdAt int64
	)
	err := row.Scan(&m.ID, &m.ConversationKey, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.IsEncrypted, &listingID, &clientID, &m.IsRead, &readAt, &createdAt)
	if err != nil {
		return nil, err
	}
	m.ListingID = listingID.String
	m.ClientMessageID = clientID.String
	m.CreatedAt = fromNanos(createdAt)
	if readAt.Valid {
		t := fromNanos(readAt.Int64)
		m.ReadAt = &t
	}
	return &m, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// Append validates and stores a new message. A repeated send carrying the
// same client message id returns the stored original with Duplicate set.
func (s *Store) Append(ctx context.Context, in models.NewMessage) (models.AppendResult, error) {
	key, in, err := storage.PrepareMessage(in)
	if err != nil {
		return models.AppendResult{}, err
	}

	exists, err := s.userExists(ctx, in.ReceiverID)
	if err != nil {
		return models.AppendResult{}, fmt.Errorf("lookup receiver: %w", err)
	}
	if !exists {
		return models.AppendResult{}, apperr.NotFound("Receiver not found")
	}

	if in.ClientMessageID != "" {
		prior, err := s.findByClientID(ctx, in.SenderID, in.ClientMessageID)
		if err != nil {
			return models.AppendResult{}, err
		}
		if prior != nil {
			return models.AppendResult{Message: *prior, Duplicate: true}, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.AppendResult{}, fmt.Errorf("generate message id: %w", err)
	}
	msg := models.Message{
		ID:              id.String(),
		ConversationKey: key.String(),
		SenderID:        in.SenderID,
		ReceiverID:      in.ReceiverID,
		Content:         in.Content,
		IsEncrypted:     in.IsEncrypted,
		ListingID:       in.ListingID,
		ClientMessageID: in.ClientMessageID,
		CreatedAt:       s.timestamp(),
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO messages (id, conversation_key, sender_id, receiver_id, content,
			is_encrypted, listing_id, client_message_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.ConversationKey, msg.SenderID, msg.ReceiverID, msg.Content,
		msg.IsEncrypted, nullString(msg.ListingID), nullString(msg.ClientMessageID),
		false, toNanos(msg.CreatedAt))
	if err != nil {
		// A concurrent resend may have won the unique index.
		if in.ClientMessageID != "" {
			if prior, lookupErr := s.findByClientID(ctx, in.SenderID, in.ClientMessageID); lookupErr == nil && prior != nil {
				return models.AppendResult{Message: *prior, Duplicate: true}, nil
			}
		}
		return models.AppendResult{}, fmt.Errorf("insert message: %w", err)
	}

	return models.AppendResult{Message: msg}, nil
}

func (s *Store) findByClientID(ctx context.Context, senderID, clientID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? AND client_message_id = ?`), senderID, clientID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client message id: %w", err)
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, messageID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListByConversation returns the thread oldest first. Ids are time-ordered,
// so they break ties between writes in the same clock tick.
func (s *Store) ListByConversation(ctx context.Context, key conversation.Key) ([]models.Message, error) {
	messages, err := s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_key = ?
		ORDER BY created_at ASC, id ASC`, key.String())
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

// MarkConversationRead marks every unread message addressed to readerID.
// Reapplying it changes nothing.
func (s *Store) MarkConversationRead(ctx context.Context, key conversation.Key, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE messages SET is_read = ?, read_at = ?
		WHERE conversation_key = ? AND receiver_id = ? AND is_read = ?`),
		true, toNanos(s.timestamp()), key.String(), readerID, false)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return n, nil
}

// MarkOneRead marks a single message read on behalf of its receiver. An
// already-read message keeps its original readAt.
func (s *Store) MarkOneRead(ctx context.Context, messageID, readerID string) (*models.Message, error) {
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != readerID {
		return nil, apperr.Forbidden("Not authorized")
	}
	if msg.IsRead {
		return msg, nil
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		UPDATE messages SET is_read = ?, read_at = ?
		WHERE id = ? AND is_read = ?`),
		true, toNanos(s.timestamp()), messageID, false)
	if err != nil {
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	return s.Get(ctx, messageID)
}

// Delete removes a message. Only its sender may do so.
func (s *Store) Delete(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return apperr.Forbidden("Not authorized to delete this message")
	}
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM messages WHERE id = ? AND sender_id = ?`),
		messageID, requesterID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = ?`),
		userID, false).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ListConversations returns the newest message and the unread count of every
// conversation touching userID, most recent conversation first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`WITH ranked AS (
			SELECT `+messageColumns+`,
				ROW_NUMBER() OVER (PARTITION BY conversation_key
					ORDER BY created_at DESC, id DESC) AS pos,
				SUM(CASE WHEN receiver_id = ? AND NOT is_read THEN 1 ELSE 0 END)
					OVER (PARTITION BY conversation_key) AS unread
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
		)
		SELECT `+messageColumns+`, unread FROM ranked
		WHERE pos = 1
		ORDER BY created_at DESC, id DESC`), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var unread int64
		m, err := scanMessage(withTrailing{rows, &unread})
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		summaries = append(summaries, models.ConversationSummary{
			ConversationKey: m.ConversationKey,
			OtherUserID:     conversation.Key(m.ConversationKey).Other(userID),
			LastMessage:     *m,
			UnreadCount:     int(unread),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return summaries, nil
}

// withTrailing scans extra columns that follow the message columns.
type withTrailing struct {
	rows  *sql.Rows
	extra any
}

func (w withTrailing) Scan(dest ...any) error {
	return w.rows.Scan(append(dest, w.extra)...)
}
