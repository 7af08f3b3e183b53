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

// Package conversation derives the canonical key that addresses the message
// thread between two users.
package conversation

import (
	"strings"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
)

// Separator joins the two participant ids. It is outside the identifier
// alphabet, so a key always splits back into exactly two ids.
const Separator = ":"

const maxIDLength = 128

// Key is the order-independent identifier of a two-party conversation.
type Key string

// DeriveKey returns the same Key for (a, b) and (b, a).
func DeriveKey(a, b string) (Key, error) {
	if err := ValidateID(a); err != nil {
		return "", err
	}
	if err := ValidateID(b); err != nil {
		return "", err
	}
	if a == b {
		return "", apperr.InvalidArgument("Cannot start a conversation with yourself")
	}
	if a > b {
		a, b = b, a
	}
	return Key(a + Separator + b), nil
}

// ValidateID checks that id is usable as a participant identifier.
func ValidateID(id string) error {
	if id == "" {
		return apperr.InvalidArgument("User ID is required")
	}
	if len(id) > maxIDLength {
		return apperr.InvalidArgument("User ID is too long")
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return apperr.InvalidArgument("Invalid user ID")
		}
	}
	return nil
}

// Participants returns the two ids in key order.
func (k Key) Participants() (string, string) {
	a, b, _ := strings.Cut(string(k), Separator)
	return a, b
}

// Other returns the participant that is not userID, or "" if userID is not
// part of the conversation.
func (k Key) Other(userID string) string {
	a, b := k.Participants()
	switch userID {
	case a:
		return b
	case b:
		return a
	}
	return ""
}

// Includes reports whether userID is one of the two participants.
func (k Key) Includes(userID string) bool {
	return k.Other(userID) != ""
}

func (k Key) String() string { return string(k) }
