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

// Package gateway serves the chat socket: it authenticates each connection,
// tracks presence and routes send, typing and read events.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/chat"
	"github.com/angad2803/Thapar-Marketplace/backend/metrics"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
	"github.com/angad2803/Thapar-Marketplace/backend/presence"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

// ProtocolPrefix marks a bearer token carried in Sec-WebSocket-Protocol, for
// browser clients that cannot set headers on a socket.
const ProtocolPrefix = "bearer."

const sessionReplaced = "session replaced"

type Config struct {
	StoreTimeout    time.Duration
	EventsPerSecond int
	SendBuffer      int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

func (c *Config) setDefaults() {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 16 * 1024
	}
}

type Gateway struct {
	cfg     Config
	auth    *middleware.Authenticator
	chat    *chat.Service
	mirror  storage.PresenceMirror
	metrics *metrics.Metrics
	logger  *zap.Logger

	upgrader websocket.Upgrader

	// mu orders every presence change with its broadcast.
	mu       sync.Mutex
	presence *presence.Registry[*conn]

	// mirrorMu serializes mirror writes so the last one reflects the registry.
	mirrorMu sync.Mutex
}

type Option func(*Gateway)

// WithPresenceMirror reports presence changes to m after they happen.
func WithPresenceMirror(m storage.PresenceMirror) Option {
	return func(g *Gateway) { g.mirror = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func New(cfg Config, auth *middleware.Authenticator, svc *chat.Service, logger *zap.Logger, opts ...Option) *Gateway {
	cfg.setDefaults()
	g := &Gateway{
		cfg:      cfg,
		auth:     auth,
		chat:     svc,
		logger:   logger,
		presence: presence.NewRegistry[*conn](),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = metrics.New()
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return g
}

// requestToken finds the bearer token in the Authorization header, the token
// query parameter or a bearer.<token> subprotocol.
func requestToken(r *http.Request) (token, protocol string) {
	if t, ok := middleware.BearerToken(r); ok {
		return t, ""
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, ""
	}
	for _, p := range websocket.Subprotocols(r) {
		if strings.HasPrefix(p, ProtocolPrefix) {
			return strings.TrimPrefix(p, ProtocolPrefix), p
		}
	}
	return "", ""
}

// ServeHTTP authenticates and upgrades a socket request. Unauthenticated
// requests get a 401 and no socket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, protocol := requestToken(r)
	claims, err := g.auth.Authenticate(token)
	if err != nil {
		middleware.WriteError(w, apperr.Wrap(apperr.KindUnauthenticated, "Authentication error: Invalid token", err))
		return
	}
	userID := claims.Subject()

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.StoreTimeout)
	user, err := g.chat.Store().GetUser(ctx, userID)
	cancel()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			middleware.WriteError(w, apperr.Unauthenticated("Authentication error: User not found"))
			return
		}
		g.logger.Error("load socket user", zap.String("user_id", userID), zap.Error(err))
		middleware.WriteError(w, apperr.Internal("Internal server error", err))
		return
	}

	var header http.Header
	if protocol != "" {
		header = http.Header{"Sec-Websocket-Protocol": {protocol}}
	}
	ws, err := g.upgrader.Upgrade(w, r, header)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := &conn{
		gw:       g,
		ws:       ws,
		userID:   userID,
		userName: user.Name,
		send:     make(chan []byte, g.cfg.SendBuffer),
		quit:     make(chan struct{}),
		logger:   g.logger.With(zap.String("user_id", userID)),
	}
	if g.cfg.EventsPerSecond > 0 {
		c.limiter = ratelimit.New(g.cfg.EventsPerSecond)
	}

	go c.writePump()
	g.attach(c)
	go c.readPump()
}

func (g *Gateway) attach(c *conn) {
	g.mu.Lock()
	prev, replaced := g.presence.Register(c.userID, c)
	if replaced {
		prev.sendError(sessionReplaced)
		prev.shutdown()
	} else {
		g.broadcastLocked(EventPresenceOnline, PresencePayload{UserID: c.userID})
	}
	c.emit(EventPresenceSnap, g.presence.Snapshot())
	g.mu.Unlock()

	g.metrics.Connections.Inc()
	c.logger.Info("user connected", zap.Bool("replaced", replaced))
	if !replaced {
		g.syncMirror(c.userID)
	}
}

func (g *Gateway) detach(c *conn) {
	g.mu.Lock()
	released := g.presence.Release(c.userID, c)
	if released {
		g.broadcastLocked(EventPresenceOffline, PresencePayload{UserID: c.userID})
	}
	g.mu.Unlock()

	g.metrics.Connections.Dec()
	c.logger.Info("user disconnected")
	if released {
		g.syncMirror(c.userID)
	}
}

// syncMirror writes userID's current registry state to the mirror. A detach
// that loses a race with a reconnect writes online, not offline.
func (g *Gateway) syncMirror(userID string) {
	if g.mirror == nil {
		return
	}
	g.mirrorMu.Lock()
	defer g.mirrorMu.Unlock()

	fn := g.mirror.Offline
	if g.presence.IsOnline(userID) {
		fn = g.mirror.Online
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.StoreTimeout)
	defer cancel()
	if err := fn(ctx, userID); err != nil {
		g.logger.Warn("mirror presence", zap.String("user_id", userID), zap.Error(err))
	}
}

// broadcastLocked must be called with g.mu held.
func (g *Gateway) broadcastLocked(event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		g.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range g.presence.Connections() {
		c.enqueue(frame)
	}
}

// emitTo sends to userID's connection if it is online.
func (g *Gateway) emitTo(userID, event string, data any) bool {
	c, ok := g.presence.Lookup(userID)
	if !ok {
		return false
	}
	return c.emit(event, data)
}

func (g *Gateway) IsOnline(userID string) bool { return g.presence.IsOnline(userID) }

// Online returns the ids of connected users, sorted.
func (g *Gateway) Online() []string { return g.presence.Snapshot() }

// PushMessage delivers a stored message to its receiver if online. Repeated
// sends are not delivered again.
func (g *Gateway) PushMessage(sent *chat.Sent) {
	if sent.Duplicate {
		return
	}
	receiverID := sent.View.ReceiverID
	if !g.emitTo(receiverID, EventMessageNew, sent.View) {
		return
	}
	g.emitTo(receiverID, EventNotificationNew, NotificationPayload{
		Type:    models.NotificationTypeMessage,
		Message: "New message from " + sent.SenderName(),
		Data:    sent.View,
	})
}

// PushRead tells a message's sender that it was read.
func (g *Gateway) PushRead(msg *models.Message) {
	if msg.ReadAt == nil {
		return
	}
	g.emitTo(msg.SenderID, EventMessageRead, ReadPayload{MessageID: msg.ID, ReadAt: *msg.ReadAt})
}

// Close shuts every connection down.
func (g *Gateway) Close() {
	for _, c := range g.presence.Connections() {
		c.shutdown()
	}
}

func (g *Gateway) storeContext() (context.Context, context.CancelFunc) {
	// Not tied to the connection: a write in flight completes even if the
	// sender disconnects.
	return context.WithTimeout(context.Background(), g.cfg.StoreTimeout)
}

func (g *Gateway) fail(c *conn, event string, err error) {
	g.metrics.Errors.WithLabelValues(event).Inc()
	if apperr.KindOf(err) == apperr.KindInternal {
		c.logger.Error("event failed", zap.String("event", event), zap.Error(err))
	}
	c.sendError(apperr.PublicMessage(err))
}

func (g *Gateway) dispatch(c *conn, f Frame) {
	switch f.Event {
	case EventMessageSend:
		g.handleSend(c, f)
	case EventTypingStart, EventTypingStop:
		g.handleTyping(c, f)
	case EventMessageRead:
		g.handleRead(c, f)
	default:
		g.fail(c, "unknown", apperr.InvalidArgument("Unknown event"))
		return
	}
	g.metrics.Events.WithLabelValues(f.Event).Inc()
}

func (g *Gateway) handleSend(c *conn, f Frame) {
	var p SendPayload
	if err := decodeData(f.Data, &p); err != nil {
		g.fail(c, f.Event, err)
		return
	}

	ctx, cancel := g.storeContext()
	defer cancel()
	sent, err := g.chat.Send(ctx, models.NewMessage{
		SenderID:        c.userID,
		ReceiverID:      p.ReceiverID,
		Content:         p.Content,
		IsEncrypted:     p.IsEncrypted,
		ListingID:       p.ListingID,
		ClientMessageID: p.ClientMessageID,
	})
	if err != nil {
		g.fail(c, f.Event, err)
		return
	}

	c.emit(EventMessageReceived, sent.View)
	if !sent.Duplicate {
		g.metrics.Messages.WithLabelValues(metrics.PathSocket).Inc()
	}
	g.PushMessage(sent)
}

func (g *Gateway) handleTyping(c *conn, f Frame) {
	receiverID := idArg(f.Data, "receiverId")
	if receiverID == "" {
		g.fail(c, f.Event, apperr.InvalidArgument("receiverId is required"))
		return
	}
	if f.Event == EventTypingStart {
		g.emitTo(receiverID, EventUserTyping, TypingPayload{UserID: c.userID, UserName: c.userName})
	} else {
		g.emitTo(receiverID, EventUserStopTyping, TypingPayload{UserID: c.userID})
	}
}

func (g *Gateway) handleRead(c *conn, f Frame) {
	messageID := idArg(f.Data, "messageId")
	if messageID == "" {
		g.fail(c, f.Event, apperr.InvalidArgument("messageId is required"))
		return
	}

	ctx, cancel := g.storeContext()
	defer cancel()
	msg, err := g.chat.MarkRead(ctx, messageID, c.userID)
	if err != nil {
		g.fail(c, f.Event, err)
		return
	}
	g.PushRead(msg)
}
