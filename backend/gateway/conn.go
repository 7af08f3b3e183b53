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
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// conn is one authenticated socket. Frames are written only by writePump;
// quit asks it to flush what is queued and close.
type conn struct {
	gw       *Gateway
	ws       *websocket.Conn
	userID   string
	userName string
	send     chan []byte
	quit     chan struct{}
	once     sync.Once
	limiter  ratelimit.Limiter
	logger   *zap.Logger
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.quit) })
}

// enqueue never blocks. A connection whose queue is full is shut down.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send queue full, dropping connection")
		c.shutdown()
		return false
	}
}

func (c *conn) emit(event string, data any) bool {
	frame, err := encodeFrame(event, data)
	if err != nil {
		c.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.enqueue(frame)
}

func (c *conn) sendError(message string) {
	c.emit(EventError, ErrorPayload{Message: message})
}

func (c *conn) readPump() {
	defer func() {
		c.gw.detach(c)
		c.shutdown()
	}()

	c.ws.SetReadLimit(c.gw.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("read", zap.Error(err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.sendError("Invalid frame")
			continue
		}
		if c.limiter != nil {
			c.limiter.Take()
		}
		c.gw.dispatch(c, frame)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.quit:
			for {
				select {
				case frame := <-c.send:
					if err := c.write(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
