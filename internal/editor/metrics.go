package editor

import "sync"

// Metrics tracks service counters for the stats endpoint and the periodic
// log flush.
type Metrics struct {
	mu                sync.Mutex
	activeConnections int64
	messagesReceived  int64
	messagesSent      int64
}

func (m *Metrics) connectionOpened() {
	m.mu.Lock()
	m.activeConnections++
	m.mu.Unlock()
}

func (m *Metrics) connectionClosed() {
	m.mu.Lock()
	m.activeConnections--
	m.mu.Unlock()
}

func (m *Metrics) messageReceived() {
	m.mu.Lock()
	m.messagesReceived++
	m.mu.Unlock()
}

func (m *Metrics) messageSent() {
	m.mu.Lock()
	m.messagesSent++
	m.mu.Unlock()
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"active_connections": m.activeConnections,
		"messages_received":  m.messagesReceived,
		"messages_sent":      m.messagesSent,
	}
}
