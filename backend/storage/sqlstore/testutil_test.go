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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

// fakeClock advances by step on every reading so timestamps are distinct
// unless a test freezes it.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat.db")
	store, err := Open(DriverSQLite, "file:"+path+"?_foreign_keys=on", opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	require.NoError(t, store.Migrate(context.Background()))

	return store
}

func mustAddUser(t *testing.T, store *Store, id, name string) {
	t.Helper()

	err := store.UpsertUser(context.Background(), models.User{ID: id, Name: name, Email: id + "@thapar.edu"})
	require.NoError(t, err)
}

func mustSend(t *testing.T, store *Store, from, to, content string) models.Message {
	t.Helper()

	res, err := store.Append(context.Background(), models.NewMessage{
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	return res.Message
}
