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
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

const (
	// presenceKey is a hash of userId -> instance id holding the connection.
	presenceKey = "chat:presence"
	// presenceChannel carries {"event","userId","instance"} on every change.
	presenceChannel = "chat:presence"
)

var _ storage.PresenceMirror = (*PresenceMirror)(nil)

// NewClient connects to url, which may be a redis:// URL or a bare host:port.
func NewClient(url string) (*redis.Client, error) {
	if !strings.Contains(url, "://") {
		return redis.NewClient(&redis.Options{Addr: url}), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

type PresenceChange struct {
	Event    string `json:"event"`
	UserID   string `json:"userId"`
	Instance string `json:"instance"`
}

// PresenceMirror publishes this instance's presence changes so other
// processes can see who is online.
type PresenceMirror struct {
	rdb      *redis.Client
	instance string
}

func NewPresenceMirror(rdb *redis.Client, instanceID string) *PresenceMirror {
	return &PresenceMirror{rdb: rdb, instance: instanceID}
}

func (m *PresenceMirror) Online(ctx context.Context, userID string) error {
	return m.apply(ctx, "online", userID, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, presenceKey, userID, m.instance)
	})
}

func (m *PresenceMirror) Offline(ctx context.Context, userID string) error {
	return m.apply(ctx, "offline", userID, func(pipe redis.Pipeliner) {
		pipe.HDel(ctx, presenceKey, userID)
	})
}

func (m *PresenceMirror) apply(ctx context.Context, event, userID string, write func(redis.Pipeliner)) error {
	payload, err := json.Marshal(PresenceChange{Event: event, UserID: userID, Instance: m.instance})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		write(pipe)
		pipe.Publish(ctx, presenceChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror %s: %w", event, err)
	}
	return nil
}

// OnlineUsers lists users online on any instance, sorted.
func (m *PresenceMirror) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := m.rdb.HKeys(ctx, presenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

// ClearInstance removes every entry owned by this instance. It runs on
// shutdown so a stopped process leaves no ghosts behind.
func (m *PresenceMirror) ClearInstance(ctx context.Context) (int, error) {
	entries, err := m.rdb.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read presence: %w", err)
	}
	var mine []string
	for userID, instance := range entries {
		if instance == m.instance {
			mine = append(mine, userID)
		}
	}
	if len(mine) == 0 {
		return 0, nil
	}
	if err := m.rdb.HDel(ctx, presenceKey, mine...).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear presence: %w", err)
	}
	return len(mine), nil
}

// SubscribePresence follows presence changes from every instance.
func (m *PresenceMirror) SubscribePresence(ctx context.Context) *redis.PubSub {
	return m.rdb.Subscribe(ctx, presenceChannel)
}
