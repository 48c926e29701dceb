package editor

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection. It shuttles frames between the
// socket and the hub; everything stateful lives in the service.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump reads frames off the socket and hands them to the dispatcher.
// It owns the connection's read side; on any error the client unregisters
// and the service treats it as a disconnect.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	cfg := c.hub.service.Config()
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("client", c.id).Warn("websocket read error")
			}
			return
		}

		if err := c.hub.service.Dispatch(c.id, message); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				c.sendError("invalid message format")
				continue
			}
			c.hub.log.WithError(err).WithField("client", c.id).Warn("dispatch failed")
		}
	}
}

// writePump drains the send buffer onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	cfg := c.hub.service.Config()
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError pushes an error frame directly to this client, dropping it if
// the client is not keeping up.
func (c *Client) sendError(msg string) {
	data, err := json.Marshal(Frame{
		Event: "error",
		Data:  mustRaw(map[string]string{"message": msg}),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
