// Package editor wires the OT core to connected clients: session and
// membership bookkeeping, the typed event dispatcher, and the WebSocket
// hub that fans events out.
package editor

import (
	"sync"

	"collabedit/pkg/ot"
)

// ClientInfo is the membership entry exposed to clients in init,
// user_joined and user_left payloads.
type ClientInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SessionManager owns the set of live documents and the client → session
// and client → metadata mappings. Its mutex is a separate domain from the
// per-document locks; when both are needed the manager lock is taken
// first, and neither is held across a broadcaster call.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]*ot.Document
	clients    map[string]string
	clientInfo map[string]ClientInfo
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*ot.Document),
		clients:    make(map[string]string),
		clientInfo: make(map[string]ClientInfo),
	}
}

// GetOrCreateDocument returns the session's document, installing a fresh
// empty one on first join. Documents live for the remainder of the process;
// there is no eviction.
func (sm *SessionManager) GetOrCreateDocument(sessionID string) *ot.Document {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	doc, ok := sm.sessions[sessionID]
	if !ok {
		doc = ot.NewDocument(sessionID)
		sm.sessions[sessionID] = doc
	}
	return doc
}

// GetDocument looks up the session's document without creating one.
func (sm *SessionManager) GetDocument(sessionID string) *ot.Document {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[sessionID]
}

// AddClient registers a client in a session and marks it as having
// acknowledged the document's current revision.
func (sm *SessionManager) AddClient(clientID, sessionID, username string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.clients[clientID] = sessionID
	sm.clientInfo[clientID] = ClientInfo{ID: clientID, Username: username}

	doc, ok := sm.sessions[sessionID]
	if !ok {
		doc = ot.NewDocument(sessionID)
		sm.sessions[sessionID] = doc
	}
	doc.AddClient(clientID)
}

// RemoveClient deletes a client from all mappings, including the
// document's acknowledged-revision map. Idempotent for unknown clients.
// The session the client belonged to is returned so callers can notify
// the remaining members.
func (sm *SessionManager) RemoveClient(clientID string) (sessionID string, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sessionID, ok = sm.clients[clientID]
	if ok {
		if doc, exists := sm.sessions[sessionID]; exists {
			doc.RemoveClient(clientID)
		}
		delete(sm.clients, clientID)
	}
	delete(sm.clientInfo, clientID)
	return sessionID, ok
}

// SessionClients returns a snapshot of the clients joined to a session for
// whom metadata exists. Order is unspecified.
func (sm *SessionManager) SessionClients(sessionID string) []ClientInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	clients := []ClientInfo{}
	for clientID, sid := range sm.clients {
		if sid != sessionID {
			continue
		}
		if info, ok := sm.clientInfo[clientID]; ok {
			clients = append(clients, info)
		}
	}
	return clients
}

// ClientSession reports which session a client is joined to.
func (sm *SessionManager) ClientSession(clientID string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sid, ok := sm.clients[clientID]
	return sid, ok
}

// SessionCount returns the number of live documents.
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
