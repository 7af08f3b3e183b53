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

package models

import "time"

// Message is one persisted chat message. Content is either plaintext or a
// versioned ciphertext envelope; the server never looks inside it.
type Message struct {
	ID              string     `json:"id" db:"id"`
	ConversationKey string     `json:"conversationId" db:"conversation_key"`
	SenderID        string     `json:"senderId" db:"sender_id"`
	ReceiverID      string     `json:"receiverId" db:"receiver_id"`
	Content         string     `json:"content" db:"content"`
	IsEncrypted     bool       `json:"isEncrypted" db:"is_encrypted"`
	ListingID       string     `json:"listingId,omitempty" db:"listing_id"`
	ClientMessageID string     `json:"clientMessageId,omitempty" db:"client_message_id"`
	IsRead          bool       `json:"isRead" db:"is_read"`
	ReadAt          *time.Time `json:"readAt,omitempty" db:"read_at"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}

// NewMessage is the input to MessageStore.Append.
type NewMessage struct {
	SenderID        string
	ReceiverID      string
	Content         string
	IsEncrypted     bool
	ListingID       string
	ClientMessageID string
}

// AppendResult reports whether Append stored a new row or found an earlier
// send carrying the same client message id.
type AppendResult struct {
	Message   Message
	Duplicate bool
}

// UserRef is the public slice of a user attached to populated messages.
type UserRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"publicKey,omitempty"`
}

// MessageView is a message with both participants populated, the shape sent
// to clients over the socket and REST.
type MessageView struct {
	Message
	Sender   *UserRef `json:"sender,omitempty"`
	Receiver *UserRef `json:"receiver,omitempty"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ConversationKey string   `json:"conversationId"`
	OtherUserID     string   `json:"otherUserId"`
	OtherUser       *UserRef `json:"otherUser,omitempty"`
	LastMessage     Message  `json:"lastMessage"`
	UnreadCount     int      `json:"unreadCount"`
}
