package editor

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collabedit/pkg/ot"
)

// Config holds the editor service tunables.
type Config struct {
	MaxMessageSize int64
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxClients     int
	StaticDir      string
}

// DefaultConfig returns the tunables used when no config file overrides
// them.
func DefaultConfig() *Config {
	return &Config{
		MaxMessageSize: 512 * 1024,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxClients:     1000,
		StaticDir:      "client/static",
	}
}

// Service is the edit dispatcher: it owns the session manager, serializes
// concurrent edit/undo/join/leave traffic per document, and fans results
// out through the broadcaster.
type Service struct {
	cfg      *Config
	log      logrus.FieldLogger
	sessions *SessionManager

	// broadcaster is set once at wiring time, before any client traffic.
	broadcaster Broadcaster

	// locks serializes commit+broadcast per session so the per-session
	// update order always matches history order. The document's own mutex
	// guards its invariants; this one extends the critical section to the
	// broadcast enqueue.
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// delay simulates network latency for demos. Applied before entering a
	// document critical section, never inside it.
	delayMu sync.RWMutex
	delay   time.Duration

	metrics *Metrics
	done    chan struct{}
}

// NewService creates a service with the given tunables. Pass nil for
// defaults.
func NewService(cfg *Config, log logrus.FieldLogger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		sessions: NewSessionManager(),
		locks:    make(map[string]*sync.Mutex),
		metrics:  &Metrics{},
		done:     make(chan struct{}),
	}
}

// SetBroadcaster wires the transport fan-out. Must be called before any
// client traffic is dispatched.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Sessions exposes the membership state to the HTTP adapter.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Config returns the service tunables.
func (s *Service) Config() *Config {
	return s.cfg
}

// Start launches the periodic metrics flush.
func (s *Service) Start() {
	go s.flushMetrics()
	s.log.Info("editor service started")
}

// Shutdown stops background work.
func (s *Service) Shutdown() {
	close(s.done)
	s.log.Info("editor service stopped")
}

// sessionLock returns the commit-order lock for a session, creating it on
// first use.
func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Join adds the client to a session, sends it the document snapshot, and
// announces the join to the rest of the session.
func (s *Service) Join(clientID string, p JoinPayload) {
	username := p.Username
	if username == "" {
		username = "Anonymous"
	}

	// The snapshot and its enqueue stay inside the session critical
	// section so no concurrent commit can broadcast an update between the
	// snapshot revision and the init frame.
	lock := s.sessionLock(p.SessionID)
	lock.Lock()
	doc := s.sessions.GetOrCreateDocument(p.SessionID)
	s.sessions.AddClient(clientID, p.SessionID, username)
	text, revision := doc.Snapshot()
	clients := s.sessions.SessionClients(p.SessionID)
	s.send(clientID, EventInit, InitPayload{Text: text, Revision: revision, Clients: clients})
	s.broadcast(p.SessionID, EventUserJoined, MembershipPayload{ClientID: clientID, Clients: clients}, clientID)
	lock.Unlock()

	s.log.WithFields(logrus.Fields{
		"client":   clientID,
		"session":  p.SessionID,
		"username": username,
		"revision": revision,
	}).Info("client joined session")
}

// Edit linearizes a batch of operations against the document and fans the
// transformed result out to the session, excluding the origin. Edits for
// unknown sessions are dropped; the client raced a teardown and will
// resync on rejoin.
func (s *Service) Edit(clientID string, p EditPayload) {
	s.sleepSimulatedDelay()

	doc := s.sessions.GetDocument(p.SessionID)
	if doc == nil {
		s.log.WithField("session", p.SessionID).Debug("edit for unknown session dropped")
		return
	}

	lock := s.sessionLock(p.SessionID)
	lock.Lock()
	applied := doc.ApplyOperations(clientID, p.Revision, p.Operations)
	revision := doc.Revision()
	if len(applied) > 0 {
		s.broadcast(p.SessionID, EventUpdate, UpdatePayload{
			ClientID:   clientID,
			Revision:   revision,
			Operations: applied,
		}, clientID)
	}
	lock.Unlock()

	s.log.WithFields(logrus.Fields{
		"client":   clientID,
		"session":  p.SessionID,
		"ops":      len(applied),
		"revision": revision,
	}).Debug("edit applied")
}

// Undo rewinds the last committed operation and notifies the session. The
// inverse goes out as a regular update (excluding the origin, which
// requested the rewind) plus a history_update marker for everyone.
func (s *Service) Undo(clientID string, p SessionPayload) {
	s.sleepSimulatedDelay()

	doc := s.sessions.GetDocument(p.SessionID)
	if doc == nil {
		return
	}

	lock := s.sessionLock(p.SessionID)
	lock.Lock()
	inv, ok := doc.UndoLastOperation()
	if ok {
		revision := doc.Revision()
		s.broadcast(p.SessionID, EventUpdate, UpdatePayload{
			ClientID:   clientID,
			Revision:   revision,
			Operations: []ot.Operation{inv},
		}, clientID)
		s.broadcast(p.SessionID, EventHistoryUpdate, HistoryUpdatePayload{Operation: inv, Action: "undo"}, "")
	}
	lock.Unlock()

	if ok {
		s.log.WithFields(logrus.Fields{"client": clientID, "session": p.SessionID}).Info("history rewound")
	}
}

// RequestHistory sends the requester a snapshot of the document's applied
// operations.
func (s *Service) RequestHistory(clientID string, p SessionPayload) {
	doc := s.sessions.GetDocument(p.SessionID)
	if doc == nil {
		return
	}
	s.send(clientID, EventHistory, doc.EditHistory())
}

// Cursor passes presence gossip through to the rest of the session. The
// core stores nothing.
func (s *Service) Cursor(clientID string, p CursorPayload) {
	s.broadcast(p.SessionID, EventCursorUpdate, CursorUpdatePayload{
		ClientID:     clientID,
		Position:     p.Position,
		SelectionEnd: p.SelectionEnd,
		Username:     p.Username,
	}, clientID)
}

// SetDelay updates the process-wide simulated latency knob and announces
// the new value to the session.
func (s *Service) SetDelay(clientID string, p SetDelayPayload) {
	s.SetSimulatedDelay(p.Delay)
	s.broadcast(p.SessionID, EventDelayUpdated, DelayUpdatedPayload{Delay: p.Delay}, "")
	s.log.WithFields(logrus.Fields{"client": clientID, "delay_s": p.Delay}).Info("simulated delay updated")
}

// Disconnect removes the client from its session and announces the leave.
// Idempotent; unknown clients are a no-op.
func (s *Service) Disconnect(clientID string) {
	sessionID, ok := s.sessions.RemoveClient(clientID)
	if !ok {
		return
	}
	clients := s.sessions.SessionClients(sessionID)
	s.broadcast(sessionID, EventUserLeft, MembershipPayload{ClientID: clientID, Clients: clients}, "")
	s.log.WithFields(logrus.Fields{"client": clientID, "session": sessionID}).Info("client left session")
}

// SetSimulatedDelay sets the artificial latency applied to edit and undo
// traffic, in seconds.
func (s *Service) SetSimulatedDelay(seconds float64) {
	s.delayMu.Lock()
	defer s.delayMu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	s.delay = time.Duration(seconds * float64(time.Second))
}

// SimulatedDelay reports the current knob value in seconds.
func (s *Service) SimulatedDelay() float64 {
	s.delayMu.RLock()
	defer s.delayMu.RUnlock()
	return s.delay.Seconds()
}

func (s *Service) sleepSimulatedDelay() {
	s.delayMu.RLock()
	d := s.delay
	s.delayMu.RUnlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (s *Service) send(clientID, event string, payload any) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.SendToClient(clientID, event, payload)
	s.metrics.messageSent()
}

func (s *Service) broadcast(sessionID, event string, payload any, exclude string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.SendToSession(sessionID, event, payload, exclude)
	s.metrics.messageSent()
}

func (s *Service) flushMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := s.metrics.Snapshot()
			snap["sessions"] = s.sessions.SessionCount()
			s.log.WithFields(logrus.Fields(snap)).Debug("service metrics")
		case <-s.done:
			return
		}
	}
}
