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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/conversation"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

func TestPrepareMessage(t *testing.T) {
	key, msg, err := PrepareMessage(models.NewMessage{
		SenderID:   "bob",
		ReceiverID: "alice",
		Content:    "  is the bike still available?  ",
	})
	require.NoError(t, err)
	require.Equal(t, conversation.Key("alice:bob"), key)
	require.Equal(t, "is the bike still available?", msg.Content)
}

func TestPrepareMessageKeepsEnvelopeVerbatim(t *testing.T) {
	_, msg, err := PrepareMessage(models.NewMessage{
		SenderID:    "bob",
		ReceiverID:  "alice",
		Content:     "v1:AAAA ",
		IsEncrypted: true,
	})
	require.NoError(t, err)
	require.Equal(t, "v1:AAAA ", msg.Content)
}

func TestPrepareMessageRejects(t *testing.T) {
	cases := []struct {
		name string
		msg  models.NewMessage
	}{
		{"self", models.NewMessage{SenderID: "bob", ReceiverID: "bob", Content: "hi"}},
		{"blank", models.NewMessage{SenderID: "bob", ReceiverID: "alice", Content: "   "}},
		{"too long", models.NewMessage{SenderID: "bob", ReceiverID: "alice", Content: strings.Repeat("é", MaxPlaintextRunes+1)}},
		{"envelope too large", models.NewMessage{SenderID: "bob", ReceiverID: "alice", IsEncrypted: true, Content: strings.Repeat("A", MaxEnvelopeBytes+1)}},
		{"bad receiver", models.NewMessage{SenderID: "bob", ReceiverID: "al ice", Content: "hi"}},
		{"bad listing", models.NewMessage{SenderID: "bob", ReceiverID: "alice", Content: "hi", ListingID: "x/y"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := PrepareMessage(tc.msg)
			require.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}
}

func TestPrepareMessageAllowsMaxLength(t *testing.T) {
	_, _, err := PrepareMessage(models.NewMessage{
		SenderID:   "bob",
		ReceiverID: "alice",
		Content:    strings.Repeat("é", MaxPlaintextRunes),
	})
	require.NoError(t, err)
}
