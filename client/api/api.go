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

// Package api is a client for the chat REST endpoints.
//
// Every response uses the {"success","message","data"} envelope. A request
// that fails carries the server's message in an *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Error is a non-2xx response.
type Error struct {
	Method  string
	URL     string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
}

// StatusOf returns the HTTP status of an *Error in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	Base  string
	Token string
	HTTP  *http.Client
}

func New(base, token string) *Client {
	return &Client{
		Base:  strings.TrimRight(base, "/"),
		Token: token,
		HTTP:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SocketURL is the gateway endpoint on the same host.
func (c *Client) SocketURL() (string, error) {
	u, err := url.Parse(c.Base)
	if err != nil {
		return "", errors.Wrap(err, "api: parse base url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket"
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "api: encode request")
		}
		body = bytes.NewReader(b)
	}
	u := c.Base + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "api: build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "api: %s %s", method, u)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return errors.Wrapf(err, "api: decode %s %s", method, u)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &Error{Method: method, URL: u, Status: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(env.Data, out), "api: decode %s %s", method, u)
}

type Message struct {
	ID              string     `json:"id"`
	ConversationID  string     `json:"conversationId"`
	SenderID        string     `json:"senderId"`
	ReceiverID      string     `json:"receiverId"`
	Content         string     `json:"content"`
	IsEncrypted     bool       `json:"isEncrypted"`
	ListingID       string     `json:"listingId,omitempty"`
	ClientMessageID string     `json:"clientMessageId,omitempty"`
	IsRead          bool       `json:"isRead"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Sender          *User      `json:"sender,omitempty"`
	Receiver        *User      `json:"receiver,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"publicKey,omitempty"`
}

type Conversation struct {
	ConversationID string  `json:"conversationId"`
	OtherUserID    string  `json:"otherUserId"`
	OtherUser      *User   `json:"otherUser,omitempty"`
	LastMessage    Message `json:"lastMessage"`
	UnreadCount    int     `json:"unreadCount"`
}

type SendRequest struct {
	ReceiverID      string `json:"receiverId"`
	Content         string `json:"content"`
	ListingID       string `json:"listingId,omitempty"`
	IsEncrypted     bool   `json:"isEncrypted,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// PublicKey is a user's published key; Key is empty when none was published.
type PublicKey struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Key    string `json:"-"`
}

func (c *Client) PublishKey(ctx context.Context, publicKey string) error {
	return c.do(ctx, http.MethodPut, "/api/auth/public-key", map[string]string{"publicKey": publicKey}, nil)
}

func (c *Client) FetchPublicKey(ctx context.Context, userID string) (PublicKey, error) {
	var out struct {
		UserID    string  `json:"userId"`
		Name      string  `json:"name"`
		PublicKey *string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/public-key/"+url.PathEscape(userID), nil, &out); err != nil {
		return PublicKey{}, err
	}
	pk := PublicKey{UserID: out.UserID, Name: out.Name}
	if out.PublicKey != nil {
		pk.Key = *out.PublicKey
	}
	return pk, nil
}

func (c *Client) Send(ctx context.Context, req SendRequest) (Message, error) {
	var out Message
	err := c.do(ctx, http.MethodPost, "/api/chat", req, &out)
	return out, err
}

// Thread fetches the conversation with userID and marks it read.
func (c *Client) Thread(ctx context.Context, userID string) ([]Message, error) {
	var out []Message
	err := c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.do(ctx, http.MethodGet, "/api/chat/conversations", nil, &out)
	return out, err
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/api/chat/unread/count", nil, &out)
	return out.Count, err
}
