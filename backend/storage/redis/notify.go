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

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/angad2803/Thapar-Marketplace/backend/models"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

// Redis key prefixes
const dmNotifyPrefix = "dm:notify:" // dm:notify:{userId}

var _ storage.Notifier = (*Notifier)(nil)

// Notice is published for every stored message. It never carries content.
type Notice struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	IsEncrypted    bool   `json:"is_encrypted"`
}

// Notifier publishes new-message notices for push and e-mail workers.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

func (n *Notifier) NotifyMessage(ctx context.Context, msg models.Message) error {
	notification, err := json.Marshal(Notice{
		Type:           "new_message",
		MessageID:      msg.ID,
		ConversationID: msg.ConversationKey,
		SenderID:       msg.SenderID,
		IsEncrypted:    msg.IsEncrypted,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	if err := n.rdb.Publish(ctx, dmNotifyPrefix+msg.ReceiverID, notification).Err(); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}
	return nil
}

// SubscribeToDMs subscribes to real-time DM notifications for a user
func (n *Notifier) SubscribeToDMs(ctx context.Context, userID string) *redis.PubSub {
	return n.rdb.Subscribe(ctx, dmNotifyPrefix+userID)
}
