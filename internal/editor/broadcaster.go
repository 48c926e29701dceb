package editor

import "collabedit/pkg/ot"

// Event names on the wire, in both directions.
const (
	// Inbound from clients.
	EventJoin           = "join"
	EventEdit           = "edit"
	EventCursor         = "cursor"
	EventRequestHistory = "request_history"
	EventUndo           = "undo"
	EventSetDelay       = "set_delay"

	// Outbound to clients.
	EventInit          = "init"
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
	EventUpdate        = "update"
	EventHistory       = "history"
	EventHistoryUpdate = "history_update"
	EventCursorUpdate  = "cursor_update"
	EventDelayUpdated  = "delay_updated"
)

// Broadcaster is the contract the core uses to push events to connected
// peers. The core never learns the transport; the WebSocket hub implements
// this, and tests substitute a recording fake.
//
// Per-session delivery order must match the order in which SendToSession is
// called.
type Broadcaster interface {
	SendToClient(clientID, event string, payload any)
	SendToSession(sessionID, event string, payload any, excludeClientID string)
}

// InitPayload is the document snapshot sent to a joining client.
type InitPayload struct {
	Text     string       `json:"text"`
	Revision int          `json:"revision"`
	Clients  []ClientInfo `json:"clients"`
}

// MembershipPayload announces a join or leave to the session.
type MembershipPayload struct {
	ClientID string       `json:"clientId"`
	Clients  []ClientInfo `json:"clients"`
}

// UpdatePayload carries committed operations to the session's other
// members, tagged with the post-commit revision.
type UpdatePayload struct {
	ClientID   string         `json:"clientId"`
	Revision   int            `json:"revision"`
	Operations []ot.Operation `json:"operations"`
}

// HistoryUpdatePayload notifies the session that the history was rewound.
type HistoryUpdatePayload struct {
	Operation ot.Operation `json:"operation"`
	Action    string       `json:"action"`
}

// CursorUpdatePayload is the pass-through presence gossip; the core does
// not store cursor positions.
type CursorUpdatePayload struct {
	ClientID     string `json:"clientId"`
	Position     int    `json:"position"`
	SelectionEnd int    `json:"selectionEnd"`
	Username     string `json:"username"`
}

// DelayUpdatedPayload announces a change to the simulated-latency knob.
type DelayUpdatedPayload struct {
	Delay float64 `json:"delay"`
}
