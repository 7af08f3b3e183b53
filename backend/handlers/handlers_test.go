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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/chat"
	"github.com/angad2803/Thapar-Marketplace/backend/metrics"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
	"github.com/angad2803/Thapar-Marketplace/backend/storage/sqlstore"
)

type recordingPusher struct {
	mu       sync.Mutex
	messages []string
	reads    []string
}

func (p *recordingPusher) PushMessage(sent *chat.Sent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, sent.View.ID)
}

func (p *recordingPusher) PushRead(msg *models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, msg.ID)
}

type testAPI struct {
	t      *testing.T
	router *mux.Router
	store  *sqlstore.Store
	pusher *recordingPusher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlstore.Open(sqlstore.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	for id, name := range map[string]string{"alice": "Alice", "bob": "Bob"} {
		require.NoError(t, store.UpsertUser(ctx, models.User{ID: id, Name: name}))
	}

	logger := zap.NewNop()
	pusher := &recordingPusher{}
	svc := chat.NewService(store, logger)
	ch := NewChatHandler(svc, pusher, metrics.New(), logger)
	kh := NewKeyHandler(store, logger)
	nh := NewNotificationHandler(store, logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", Health(store)).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get("X-Test-User"); id != "" {
				req = req.WithContext(middleware.WithUserID(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	api.HandleFunc("/chat/conversations", ch.Conversations).Methods("GET")
	api.HandleFunc("/chat/unread/count", ch.UnreadCount).Methods("GET")
	api.HandleFunc("/chat", ch.Send).Methods("POST")
	api.HandleFunc("/chat/{id}/read", ch.MarkRead).Methods("PUT")
	api.HandleFunc("/chat/{id}", ch.Delete).Methods("DELETE")
	api.HandleFunc("/chat/{userId}", ch.Messages).Methods("GET")
	api.HandleFunc("/auth/public-key", kh.PublishKey).Methods("PUT")
	api.HandleFunc("/auth/public-key/{userId}", kh.GetPublicKey).Methods("GET")
	api.HandleFunc("/notifications", nh.List).Methods("GET")
	api.HandleFunc("/notifications/read-all", nh.MarkAllRead).Methods("PUT")
	api.HandleFunc("/notifications/unread-count", nh.UnreadCount).Methods("GET")

	return &testAPI{t: t, router: r, store: store, pusher: pusher}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testAPI) do(method, path, user string, body any) (int, response) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (a *testAPI) send(from, to, content string) models.MessageView {
	a.t.Helper()
	code, resp := a.do(http.MethodPost, "/api/chat", from, map[string]any{"receiverId": to, "content": content})
	require.Equal(a.t, http.StatusCreated, code, resp.Message)
	return decode[models.MessageView](a.t, resp.Data)
}

func TestRequiresUser(t *testing.T) {
	api := newTestAPI(t)
	code, resp := api.do(http.MethodGet, "/api/chat/conversations", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.False(t, resp.Success)
}

func TestSendAndFetchThread(t *testing.T) {
	api := newTestAPI(t)

	sent := api.send("alice", "bob", "is the cycle available?")
	require.Equal(t, "alice:bob", sent.ConversationKey)
	require.Equal(t, "Bob", sent.Receiver.Name)
	require.Equal(t, []string{sent.ID}, api.pusher.messages)

	code, resp := api.do(http.MethodGet, "/api/chat/unread/count", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]int{"count": 1}, decode[map[string]int](t, resp.Data))

	code, resp = api.do(http.MethodGet, "/api/chat/alice", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	thread := decode[[]models.MessageView](t, resp.Data)
	require.Len(t, thread, 1)
	require.True(t, thread[0].IsRead)

	_, resp = api.do(http.MethodGet, "/api/chat/unread/count", "bob", nil)
	require.Equal(t, map[string]int{"count": 0}, decode[map[string]int](t, resp.Data))
}

func TestSendDuplicateReturnsOriginal(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]any{"receiverId": "bob", "content": "hi", "clientMessageId": "c-9"}

	code, first := api.do(http.MethodPost, "/api/chat", "alice", body)
	require.Equal(t, http.StatusCreated, code)
	code, again := api.do(http.MethodPost, "/api/chat", "alice", body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, decode[models.MessageView](t, first.Data).ID, decode[models.MessageView](t, again.Data).ID)
	require.Len(t, api.pusher.messages, 1)
}

func TestSendValidation(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(http.MethodPost, "/api/chat", "alice", map[string]any{"receiverId": "alice", "content": "hi"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Cannot send a message to yourself", resp.Message)

	code, resp = api.do(http.MethodPost, "/api/chat", "alice", map[string]any{"receiverId": "zed", "content": "hi"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Receiver not found", resp.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{"))
	req.Header.Set("X-Test-User", "alice")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversations(t *testing.T) {
	api := newTestAPI(t)
	api.send("alice", "bob", "one")
	api.send("bob", "alice", "two")

	code, resp := api.do(http.MethodGet, "/api/chat/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	convs := decode[[]models.ConversationSummary](t, resp.Data)
	require.Len(t, convs, 1)
	require.Equal(t, "two", convs[0].LastMessage.Content)
	require.Equal(t, 1, convs[0].UnreadCount)
	require.Equal(t, "Bob", convs[0].OtherUser.Name)

	_, resp = api.do(http.MethodGet, "/api/chat/conversations", "carol", nil)
	require.Equal(t, "[]", string(resp.Data))
}

func TestMarkReadForbiddenAndPushes(t *testing.T) {
	api := newTestAPI(t)
	sent := api.send("alice", "bob", "hi")

	code, resp := api.do(http.MethodPut, "/api/chat/"+sent.ID+"/read", "alice", nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "Not authorized", resp.Message)

	code, resp = api.do(http.MethodPut, "/api/chat/"+sent.ID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, decode[models.Message](t, resp.Data).IsRead)
	require.Equal(t, []string{sent.ID}, api.pusher.reads)

	code, _ = api.do(http.MethodPut, "/api/chat/missing/read", "bob", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestDeleteOnlyBySender(t *testing.T) {
	api := newTestAPI(t)
	sent := api.send("alice", "bob", "oops")

	code, resp := api.do(http.MethodDelete, "/api/chat/"+sent.ID, "bob", nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "Not authorized to delete this message", resp.Message)

	code, resp = api.do(http.MethodDelete, "/api/chat/"+sent.ID, "alice", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)

	code, _ = api.do(http.MethodDelete, "/api/chat/"+sent.ID, "alice", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestPublicKeys(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(http.MethodGet, "/api/auth/public-key/bob", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"userId":"bob","name":"Bob","publicKey":null}`, string(resp.Data))

	code, resp = api.do(http.MethodPut, "/api/auth/public-key", "bob", map[string]string{"publicKey": "short"})
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, resp.Success)

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	code, _ = api.do(http.MethodPut, "/api/auth/public-key", "bob", map[string]string{"publicKey": key})
	require.Equal(t, http.StatusOK, code)

	_, resp = api.do(http.MethodGet, "/api/auth/public-key/bob", "alice", nil)
	got := decode[PublicKeyResponse](t, resp.Data)
	require.NotNil(t, got.PublicKey)
	require.Equal(t, key, *got.PublicKey)

	code, _ = api.do(http.MethodGet, "/api/auth/public-key/nobody", "alice", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(http.MethodPut, "/api/auth/public-key", "ghost", map[string]string{"publicKey": key})
	require.Equal(t, http.StatusNotFound, code)
}

func TestNotifications(t *testing.T) {
	api := newTestAPI(t)
	api.send("alice", "bob", "one")
	api.send("alice", "bob", "two")

	code, resp := api.do(http.MethodGet, "/api/notifications/unread-count", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]int{"count": 2}, decode[map[string]int](t, resp.Data))

	_, resp = api.do(http.MethodGet, "/api/notifications?limit=1", "bob", nil)
	notes := decode[[]models.Notification](t, resp.Data)
	require.Len(t, notes, 1)
	require.Equal(t, "Alice sent you a message", notes[0].Message)

	code, _ = api.do(http.MethodGet, "/api/notifications?limit=zero", "bob", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, resp = api.do(http.MethodPut, "/api/notifications/read-all", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]int64{"updated": 2}, decode[map[string]int64](t, resp.Data))

	_, resp = api.do(http.MethodGet, "/api/notifications/unread-count", "bob", nil)
	require.Equal(t, map[string]int{"count": 0}, decode[map[string]int](t, resp.Data))
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return context.DeadlineExceeded }

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	Health(downDB{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
