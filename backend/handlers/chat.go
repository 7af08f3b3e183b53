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

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/chat"
	"github.com/angad2803/Thapar-Marketplace/backend/metrics"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
)

// Pusher delivers REST-originated events to connected sockets.
type Pusher interface {
	PushMessage(sent *chat.Sent)
	PushRead(msg *models.Message)
}

type ChatHandler struct {
	chat    *chat.Service
	push    Pusher
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewChatHandler; push may be nil when no gateway runs in this process.
func NewChatHandler(svc *chat.Service, push Pusher, m *metrics.Metrics, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, push: push, metrics: m, logger: logger}
}

type sendRequest struct {
	ReceiverID      string `json:"receiverId"`
	Content         string `json:"content"`
	ListingID       string `json:"listingId,omitempty"`
	IsEncrypted     bool   `json:"isEncrypted,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetUserID(r)
	if !ok {
		middleware.WriteError(w, apperr.Unauthenticated("Unauthorized"))
	}
	return id, ok
}

func (h *ChatHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	middleware.WriteError(w, err)
}

// Conversations lists the caller's conversations, most recent first.
func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	convs, err := h.chat.Conversations(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, convs)
}

// Messages returns the thread with {userId} and marks it read for the caller.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	thread, err := h.chat.Thread(r.Context(), uid, mux.Vars(r)["userId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, thread)
}

// Send is the REST fallback for message:send.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperr.InvalidArgument("Invalid request body"))
		return
	}

	sent, err := h.chat.Send(r.Context(), models.NewMessage{
		SenderID:        uid,
		ReceiverID:      req.ReceiverID,
		Content:         req.Content,
		IsEncrypted:     req.IsEncrypted,
		ListingID:       req.ListingID,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sent.Duplicate {
		middleware.WriteJSON(w, http.StatusOK, sent.View)
		return
	}

	h.metrics.Messages.WithLabelValues(metrics.PathREST).Inc()
	if h.push != nil {
		h.push.PushMessage(sent)
	}
	middleware.WriteJSON(w, http.StatusCreated, sent.View)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	msg, err := h.chat.MarkRead(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.push != nil {
		h.push.PushRead(msg)
	}
	middleware.WriteJSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.chat.Delete(r.Context(), mux.Vars(r)["id"], uid); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Message deleted successfully")
}

func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	count, err := h.chat.UnreadCount(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}
