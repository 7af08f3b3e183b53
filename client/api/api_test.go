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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "tok")
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFetchPublicKey(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/auth/public-key/bob":
			reply(w, http.StatusOK, `{"success":true,"data":{"userId":"bob","name":"Bob","publicKey":"AAAA"}}`)
		case "/api/auth/public-key/carol":
			reply(w, http.StatusOK, `{"success":true,"data":{"userId":"carol","name":"Carol","publicKey":null}}`)
		default:
			reply(w, http.StatusNotFound, `{"success":false,"message":"User not found"}`)
		}
	})
	ctx := context.Background()

	pk, err := c.FetchPublicKey(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, PublicKey{UserID: "bob", Name: "Bob", Key: "AAAA"}, pk)

	pk, err = c.FetchPublicKey(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, pk.Key)

	_, err = c.FetchPublicKey(ctx, "zed")
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, StatusOf(err))
	require.Contains(t, err.Error(), "User not found")
}

func TestSendEncodesRequest(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)
		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, SendRequest{ReceiverID: "bob", Content: "v1:xyz", IsEncrypted: true}, req)
		reply(w, http.StatusCreated, `{"success":true,"data":{"id":"m1","conversationId":"alice:bob","content":"v1:xyz","isEncrypted":true}}`)
	})

	msg, err := c.Send(context.Background(), SendRequest{ReceiverID: "bob", Content: "v1:xyz", IsEncrypted: true})
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "alice:bob", msg.ConversationID)
}

func TestUnreadCountAndErrors(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/unread/count":
			reply(w, http.StatusOK, `{"success":true,"data":{"count":3}}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})
	ctx := context.Background()

	n, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = c.Conversations(ctx)
	require.Equal(t, http.StatusBadGateway, StatusOf(err))
	require.Zero(t, StatusOf(nil))
}

func TestSocketURL(t *testing.T) {
	u, err := New("https://chat.example.edu/", "").SocketURL()
	require.NoError(t, err)
	require.Equal(t, "wss://chat.example.edu/socket", u)

	u, err = New("http://localhost:8081", "").SocketURL()
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8081/socket", u)
}
