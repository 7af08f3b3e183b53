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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewClientURL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	_, err = NewClient("http://localhost:6379")
	require.Error(t, err)
}

func TestPresenceMirror(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()
	a := NewPresenceMirror(rdb, "node-a")
	b := NewPresenceMirror(rdb, "node-b")

	sub := a.SubscribePresence(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Online(ctx, "alice"))
	require.NoError(t, b.Online(ctx, "bob"))
	require.Equal(t, "node-a", mr.HGet(presenceKey, "alice"))

	users, err := a.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, users)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var change PresenceChange
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &change))
	require.Equal(t, PresenceChange{Event: "online", UserID: "alice", Instance: "node-a"}, change)

	require.NoError(t, a.Offline(ctx, "alice"))
	users, err = b.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, users)
}

func TestClearInstance(t *testing.T) {
	_, rdb := newTestClient(t)
	ctx := context.Background()
	a := NewPresenceMirror(rdb, "node-a")
	b := NewPresenceMirror(rdb, "node-b")

	require.NoError(t, a.Online(ctx, "alice"))
	require.NoError(t, a.Online(ctx, "carol"))
	require.NoError(t, b.Online(ctx, "bob"))

	n, err := a.ClearInstance(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	users, err := b.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, users)

	n, err = a.ClearInstance(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNotifierPublishesWithoutContent(t *testing.T) {
	_, rdb := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := NewNotifier(rdb)

	sub := n.SubscribeToDMs(ctx, "bob")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.NotifyMessage(ctx, models.Message{
		ID:              "m1",
		ConversationKey: "alice:bob",
		SenderID:        "alice",
		ReceiverID:      "bob",
		Content:         "v1:secret",
		IsEncrypted:     true,
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "dm:notify:bob", msg.Channel)
	require.NotContains(t, msg.Payload, "secret")

	var notice Notice
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &notice))
	require.Equal(t, Notice{
		Type:           "new_message",
		MessageID:      "m1",
		ConversationID: "alice:bob",
		SenderID:       "alice",
		IsEncrypted:    true,
	}, notice)
}

func TestMirrorReportsRedisErrors(t *testing.T) {
	mr, rdb := newTestClient(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.Error(t, NewPresenceMirror(rdb, "node-a").Online(ctx, "alice"))
	require.Error(t, NewNotifier(rdb).NotifyMessage(ctx, models.Message{ID: "m1", ReceiverID: "bob"}))
}
