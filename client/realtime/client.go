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

// Package realtime is a client for the chat socket.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("realtime: connection closed")

// Event is one frame received from the server.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (e Event) Decode(v any) error {
	return errors.Wrapf(json.Unmarshal(e.Data, v), "realtime: decode %s", e.Name)
}

// Message is the payload of message:send.
type Message struct {
	ReceiverID      string `json:"receiverId"`
	Content         string `json:"content"`
	ListingID       string `json:"listingId,omitempty"`
	IsEncrypted     bool   `json:"isEncrypted,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type tokenMode int

const (
	tokenHeader tokenMode = iota
	tokenQuery
	tokenSubprotocol
)

type dialConfig struct {
	mode   tokenMode
	buffer int
	dialer *websocket.Dialer
}

type DialOption func(*dialConfig)

// WithQueryToken passes the token as ?token= instead of a header.
func WithQueryToken() DialOption { return func(c *dialConfig) { c.mode = tokenQuery } }

// WithSubprotocolToken passes the token as a bearer.<token> subprotocol.
func WithSubprotocolToken() DialOption { return func(c *dialConfig) { c.mode = tokenSubprotocol } }

// WithBuffer sets how many unread events are held before the reader stalls.
func WithBuffer(n int) DialOption { return func(c *dialConfig) { c.buffer = n } }

type Client struct {
	ws     *websocket.Conn
	events chan Event
	done   chan struct{}
	once   sync.Once

	writeMu sync.Mutex

	mu  sync.Mutex
	err error
}

// Dial connects to rawURL (ws:// or wss://) with token. On an auth failure the
// HTTP response is returned alongside the error.
func Dial(ctx context.Context, rawURL, token string, opts ...DialOption) (*Client, *http.Response, error) {
	cfg := dialConfig{buffer: 64, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&cfg)
	}

	header := http.Header{}
	dialer := *cfg.dialer
	switch cfg.mode {
	case tokenQuery:
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "realtime: parse url")
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		rawURL = u.String()
	case tokenSubprotocol:
		dialer.Subprotocols = []string{"bearer." + token}
	default:
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, resp, errors.Wrap(err, "realtime: dial")
	}
	c := &Client{ws: ws, events: make(chan Event, cfg.buffer), done: make(chan struct{})}
	go c.readLoop()
	return c, resp, nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var ev Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// Err reports why the event stream ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Events() <-chan Event { return c.events }

// Next returns the next event of any kind.
func (c *Client) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event{}, errors.Wrap(ErrClosed, errString(c.Err()))
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// WaitFor discards events until one named name arrives.
func (c *Client) WaitFor(ctx context.Context, name string) (Event, error) {
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return Event{}, err
		}
		if ev.Name == name {
			return ev, nil
		}
	}
}

func (c *Client) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "realtime: encode")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return errors.Wrapf(c.ws.WriteJSON(Event{Name: event, Data: raw}), "realtime: write %s", event)
}

func (c *Client) Send(msg Message) error { return c.Emit("message:send", msg) }

func (c *Client) StartTyping(receiverID string) error { return c.Emit("typing:start", receiverID) }

func (c *Client) StopTyping(receiverID string) error { return c.Emit("typing:stop", receiverID) }

func (c *Client) MarkRead(messageID string) error { return c.Emit("message:read", messageID) }

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func errString(err error) string {
	if err == nil {
		return "eof"
	}
	return err.Error()
}
