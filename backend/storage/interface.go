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

package storage

import (
	"context"

	"github.com/angad2803/Thapar-Marketplace/backend/conversation"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

type MessageStore interface {
	Append(ctx context.Context, msg models.NewMessage) (models.AppendResult, error)
	Get(ctx context.Context, messageID string) (*models.Message, error)
	ListByConversation(ctx context.Context, key conversation.Key) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, key conversation.Key, readerID string) (int64, error)
	MarkOneRead(ctx context.Context, messageID, readerID string) (*models.Message, error)
	Delete(ctx context.Context, messageID, requesterID string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// UserStore is the local view of the external identity service.
type UserStore interface {
	UpsertUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]*models.User, error)
	SetPublicKey(ctx context.Context, userID, publicKey string) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID string) (int64, error)
	UnreadNotificationCount(ctx context.Context, userID string) (int, error)
}

type Store interface {
	MessageStore
	UserStore
	NotificationStore
	Ping(ctx context.Context) error
}

// PresenceMirror receives presence changes after the in-process registry has
// applied them. Implementations must not block for long.
type PresenceMirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// Notifier publishes new-message events for consumers outside this process.
type Notifier interface {
	NotifyMessage(ctx context.Context, msg models.Message) error
}
