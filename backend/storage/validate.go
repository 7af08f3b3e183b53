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
	"unicode/utf8"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/conversation"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

const (
	// MaxPlaintextRunes matches the marketplace's message form limit.
	MaxPlaintextRunes = 1000
	// MaxEnvelopeBytes bounds encrypted bodies, which base64 and the box
	// overhead inflate well past the plaintext limit.
	MaxEnvelopeBytes = 8192
	maxClientIDBytes = 128
)

// PrepareMessage validates msg and derives its conversation key. The returned
// message has its plaintext content trimmed.
func PrepareMessage(msg models.NewMessage) (conversation.Key, models.NewMessage, error) {
	if msg.SenderID == msg.ReceiverID && msg.SenderID != "" {
		return "", msg, apperr.InvalidArgument("Cannot send a message to yourself")
	}
	key, err := conversation.DeriveKey(msg.SenderID, msg.ReceiverID)
	if err != nil {
		return "", msg, err
	}

	if msg.IsEncrypted {
		if msg.Content == "" {
			return "", msg, apperr.InvalidArgument("Message content is required")
		}
		if len(msg.Content) > MaxEnvelopeBytes {
			return "", msg, apperr.InvalidArgument("Encrypted message is too large")
		}
	} else {
		msg.Content = strings.TrimSpace(msg.Content)
		if msg.Content == "" {
			return "", msg, apperr.InvalidArgument("Message content is required")
		}
		if utf8.RuneCountInString(msg.Content) > MaxPlaintextRunes {
			return "", msg, apperr.InvalidArgument("Message must be between 1 and 1000 characters")
		}
	}

	if len(msg.ClientMessageID) > maxClientIDBytes {
		return "", msg, apperr.InvalidArgument("Client message ID is too long")
	}
	if msg.ListingID != "" {
		if err := conversation.ValidateID(msg.ListingID); err != nil {
			return "", msg, apperr.InvalidArgument("Invalid listing ID")
		}
	}

	return key, msg, nil
}
