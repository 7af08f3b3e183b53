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
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

const maxNotificationLimit = 200

type NotificationHandler struct {
	store  storage.NotificationStore
	logger *zap.Logger
}

func NewNotificationHandler(store storage.NotificationStore, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

func (h *NotificationHandler) internal(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	middleware.WriteError(w, apperr.Internal(msg, err))
}

// List returns the caller's notifications, newest first. ?limit= caps the
// page size.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			middleware.WriteError(w, apperr.InvalidArgument("limit must be a positive integer"))
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	notes, err := h.store.ListNotifications(r.Context(), uid, limit)
	if err != nil {
		h.internal(w, "Failed to fetch notifications", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, notes)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkNotificationsRead(r.Context(), uid)
	if err != nil {
		h.internal(w, "Failed to mark notifications as read", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.store.UnreadNotificationCount(r.Context(), uid)
	if err != nil {
		h.internal(w, "Failed to fetch unread count", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}
