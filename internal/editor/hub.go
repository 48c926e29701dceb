package editor

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// frame is one queued delivery. A non-empty clientID targets a single
// client; otherwise the frame fans out to the session, minus the excluded
// client.
type frame struct {
	clientID  string
	sessionID string
	exclude   string
	data      []byte
}

// Hub owns the WebSocket connections and implements Broadcaster. All
// registration, disconnection and delivery funnels through one run loop,
// which is what keeps per-session delivery in the order events were
// enqueued.
type Hub struct {
	log     logrus.FieldLogger
	service *Service

	register   chan *Client
	unregister chan *Client
	outbound   chan frame

	clients   map[string]*Client
	connCount atomic.Int64
	done      chan struct{}

	upgrader websocket.Upgrader
}

// NewHub wires a hub to the service and registers itself as the service's
// broadcaster.
func NewHub(service *Service, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Hub{
		log:        log,
		service:    service,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan frame, 1024),
		clients:    make(map[string]*Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: restrict origins before exposing this outside demos.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	service.SetBroadcaster(h)
	return h
}

// Run processes registration and delivery until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client.id] = client
			h.connCount.Add(1)
			h.service.metrics.connectionOpened()
			h.log.WithFields(logrus.Fields{"client": client.id, "total": len(h.clients)}).Info("client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				h.connCount.Add(-1)
				h.service.metrics.connectionClosed()
				h.service.Disconnect(client.id)
				h.log.WithFields(logrus.Fields{"client": client.id, "total": len(h.clients)}).Info("client disconnected")
			}

		case f := <-h.outbound:
			h.deliver(f)

		case <-h.done:
			for _, client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			h.clients = make(map[string]*Client)
			return
		}
	}
}

// Shutdown closes every connection and stops the run loop.
func (h *Hub) Shutdown() {
	close(h.done)
}

// SendToClient implements Broadcaster.
func (h *Hub) SendToClient(clientID, event string, payload any) {
	data, err := json.Marshal(Frame{Event: event, Data: mustRaw(payload)})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("marshal outbound frame")
		return
	}
	h.enqueue(frame{clientID: clientID, data: data})
}

// SendToSession implements Broadcaster.
func (h *Hub) SendToSession(sessionID, event string, payload any, excludeClientID string) {
	data, err := json.Marshal(Frame{Event: event, Data: mustRaw(payload)})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("marshal outbound frame")
		return
	}
	h.enqueue(frame{sessionID: sessionID, exclude: excludeClientID, data: data})
}

// enqueue hands a frame to the run loop. The queue is bounded; when the
// process is hopelessly behind the frame is dropped rather than blocking
// an edit critical section.
func (h *Hub) enqueue(f frame) {
	select {
	case h.outbound <- f:
	default:
		h.log.WithField("session", f.sessionID).Warn("outbound queue full, dropping frame")
	}
}

// deliver pushes a frame to its targets. Membership is read from the
// session manager at delivery time, so leaves take effect immediately.
func (h *Hub) deliver(f frame) {
	if f.clientID != "" {
		if client, ok := h.clients[f.clientID]; ok {
			h.push(client, f.data)
		}
		return
	}
	for _, info := range h.service.Sessions().SessionClients(f.sessionID) {
		if info.ID == f.exclude {
			continue
		}
		if client, ok := h.clients[info.ID]; ok {
			h.push(client, f.data)
		}
	}
}

// push writes to a client's send buffer, dropping the connection if the
// client cannot keep up.
func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.WithField("client", client.id).Warn("send buffer full, closing client")
		delete(h.clients, client.id)
		close(client.send)
		h.connCount.Add(-1)
		h.service.metrics.connectionClosed()
		h.service.Disconnect(client.id)
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and starts
// the client's pumps. Session membership is established later by the join
// event.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if int(h.connCount.Load()) >= h.service.Config().MaxClients {
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.register <- client
	go client.writePump()
	go client.readPump()
}

func mustRaw(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(data)
}
