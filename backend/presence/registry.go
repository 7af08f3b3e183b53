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

// Package presence tracks which users hold an active realtime connection in
// this process. It only mutates state; broadcasting the change is the
// caller's job.
package presence

import (
	"sort"
	"sync"
)

// Registry maps a user id to its single tracked connection. C is whatever
// handle the gateway uses for a live connection.
type Registry[C comparable] struct {
	mu      sync.RWMutex
	entries map[string]C
}

func NewRegistry[C comparable]() *Registry[C] {
	return &Registry[C]{entries: make(map[string]C)}
}

// Register records conn for userID, replacing any earlier entry. The
// replaced connection is returned so the caller can evict it.
func (r *Registry[C]) Register(userID string, conn C) (prev C, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced = r.entries[userID]
	r.entries[userID] = conn
	return prev, replaced
}

// Unregister removes userID. It reports whether an entry existed.
func (r *Registry[C]) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[userID]
	delete(r.entries, userID)
	return ok
}

// Release removes userID only while conn is still its registered
// connection, so a connection that was evicted cannot remove its successor.
func (r *Registry[C]) Release(userID string, conn C) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[userID]
	if !ok || cur != conn {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *Registry[C]) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[userID]
	return ok
}

// Lookup returns the connection registered for userID.
func (r *Registry[C]) Lookup(userID string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.entries[userID]
	return c, ok
}

// Snapshot returns the online user ids in sorted order.
func (r *Registry[C]) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connections returns every registered connection.
func (r *Registry[C]) Connections() []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]C, 0, len(r.entries))
	for _, c := range r.entries {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
