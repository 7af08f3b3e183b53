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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

const publicKeySize = 32

type KeyHandler struct {
	store  storage.UserStore
	logger *zap.Logger
}

func NewKeyHandler(store storage.UserStore, logger *zap.Logger) *KeyHandler {
	return &KeyHandler{store: store, logger: logger}
}

// PublicKeyResponse has a nil PublicKey when the user never published one.
type PublicKeyResponse struct {
	UserID    string  `json:"userId"`
	Name      string  `json:"name"`
	PublicKey *string `json:"publicKey"`
}

// PublishKey stores the caller's public key. Only the public half of a key
// pair ever reaches the server.
func (h *KeyHandler) PublishKey(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	key := strings.TrimSpace(req.PublicKey)
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != publicKeySize {
		middleware.WriteError(w, apperr.InvalidArgument("Public key must be a base64 encoded 32 byte key"))
		return
	}

	if err := h.store.SetPublicKey(r.Context(), uid, key); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("save public key", zap.String("user_id", uid), zap.Error(err))
			err = apperr.Internal("Failed to save public key", err)
		}
		middleware.WriteError(w, err)
		return
	}
	h.logger.Info("public key published", zap.String("user_id", uid))
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"publicKey": key})
}

func (h *KeyHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}

	user, err := h.store.GetUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("load public key", zap.Error(err))
			err = apperr.Internal("Failed to fetch public key", err)
		}
		middleware.WriteError(w, err)
		return
	}

	resp := PublicKeyResponse{UserID: user.ID, Name: user.Name}
	if user.PublicKey != "" {
		resp.PublicKey = &user.PublicKey
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
