package ot

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is the authoritative state of one collaboration session: the
// current text, the revision counter, the ordered operation history, and
// the last revision each client has acknowledged.
//
// All methods serialize on the document's own mutex. The transform reads
// history and revision and then mutates both, so two interleaved edits
// would corrupt the history invariants; callers never need extra locking
// for a single call.
type Document struct {
	SessionID string

	mu       sync.Mutex
	text     string
	revision int
	clients  map[string]int
	history  []Operation
	usedIDs  map[string]struct{}

	newID func() string
	now   func() float64
}

// NewDocument returns an empty document for the given session.
func NewDocument(sessionID string) *Document {
	return &Document{
		SessionID: sessionID,
		clients:   make(map[string]int),
		usedIDs:   make(map[string]struct{}),
		newID:     uuid.NewString,
		now:       func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// SetIDSource replaces the operation id generator. Ids from the source must
// still be unique; this exists so tests can run deterministically.
func (d *Document) SetIDSource(fn func() string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.newID = fn
}

// ApplyOperations linearizes a batch of edits a client produced against
// clientRevision. Operations the client missed (history entries past its
// revision) are folded over the batch first, then each operation is clamped
// into the current text bounds, applied, and appended to history.
//
// A clientRevision ahead of the server can only come from a buggy or
// replaying client and is treated as current (nothing to transform
// against). The applied operations are returned in commit order.
func (d *Document) ApplyOperations(clientID string, clientRevision int, ops []Operation) []Operation {
	d.mu.Lock()
	defer d.mu.Unlock()

	if clientRevision < 0 {
		clientRevision = 0
	}
	if clientRevision > d.revision {
		clientRevision = d.revision
	}

	// Only insert and delete exist; anything else in the batch is dropped
	// rather than committed as a junk history entry.
	incoming := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if op.Type != OpInsert && op.Type != OpDelete {
			continue
		}
		incoming = append(incoming, op)
	}
	for i := range incoming {
		d.stampOperation(&incoming[i])
	}

	if clientRevision < d.revision {
		missed := d.history[clientRevision:d.revision]
		for _, m := range missed {
			for i := range incoming {
				transformAgainst(&incoming[i], m)
			}
		}
	}

	applied := make([]Operation, 0, len(incoming))
	for i := range incoming {
		op := incoming[i]
		op.clamp(len(d.text))
		d.text = op.spliceInto(d.text)
		d.history = append(d.history, op)
		d.revision++
		applied = append(applied, op)
	}

	d.clients[clientID] = d.revision
	return applied
}

// stampOperation assigns the server-side fields of an incoming operation:
// a fresh id when the client supplied none (or one already in the history)
// and the wall-clock timestamp. Timestamps are always server-assigned;
// whatever the client sent is overwritten.
func (d *Document) stampOperation(op *Operation) {
	if op.ID == "" {
		op.ID = d.newID()
	}
	if _, dup := d.usedIDs[op.ID]; dup {
		op.ID = d.newID()
	}
	d.usedIDs[op.ID] = struct{}{}
	op.Timestamp = d.now()
	if op.Type == OpInsert {
		op.Length = 0
	}
}

// UndoLastOperation rewinds the most recent history entry: the entry is
// popped, its inverse is applied to the text, and the revision counter goes
// back by one. The inverse is returned so it can be fanned out to clients.
// Returns false when there is nothing to undo.
//
// This is a global last-writer undo, not a per-client one: in a shared
// session it may revert another user's edit.
func (d *Document) UndoLastOperation() (Operation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) == 0 {
		return Operation{}, false
	}

	last := d.history[len(d.history)-1]
	d.history = d.history[:len(d.history)-1]

	inv := last.Inverse()
	inv.ID = d.newID()
	inv.Timestamp = d.now()
	d.usedIDs[inv.ID] = struct{}{}
	d.text = inv.spliceInto(d.text)
	d.revision--

	for c, rev := range d.clients {
		if rev > d.revision {
			d.clients[c] = d.revision
		}
	}
	return inv, true
}

// EditHistory returns a snapshot of the applied operations in commit order.
// Its length equals the revision at the instant of the call.
func (d *Document) EditHistory() []Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Operation, len(d.history))
	copy(out, d.history)
	return out
}

// Snapshot returns the current text and revision atomically, for the init
// payload sent to a joining client.
func (d *Document) Snapshot() (text string, revision int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, d.revision
}

// AddClient records that a client joined the session, acknowledging the
// current revision.
func (d *Document) AddClient(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[clientID] = d.revision
}

// RemoveClient drops the client's acknowledged-revision entry. Unknown
// clients are ignored.
func (d *Document) RemoveClient(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clients, clientID)
}

// ClientRevision reports the revision a client has acknowledged.
func (d *Document) ClientRevision(clientID string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rev, ok := d.clients[clientID]
	return rev, ok
}

// Revision returns the current revision counter.
func (d *Document) Revision() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// Text returns the current document content.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}
