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

package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
)

// Socket event names.
const (
	EventMessageSend     = "message:send"
	EventMessageReceived = "message:received"
	EventMessageNew      = "message:new"
	EventMessageRead     = "message:read"
	EventNotificationNew = "notification:new"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventUserTyping      = "user:typing"
	EventUserStopTyping  = "user:stop-typing"
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
	EventPresenceSnap    = "presence:snapshot"
	EventError           = "error"
)

// Frame is the JSON shape of every socket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendPayload struct {
	ReceiverID      string `json:"receiverId"`
	Content         string `json:"content"`
	ListingID       string `json:"listingId,omitempty"`
	IsEncrypted     bool   `json:"isEncrypted,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type ReadPayload struct {
	MessageID string    `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

type NotificationPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// idArg decodes an event argument that clients send either as a bare string
// or as an object carrying field.
func idArg(data json.RawMessage, field string) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	if err := json.Unmarshal(obj[field], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.InvalidArgument("Invalid payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.InvalidArgument("Invalid payload")
	}
	return nil
}
