package editor

import (
	"encoding/json"
	"errors"
	"fmt"

	"collabedit/pkg/ot"
)

// Frame is the wire envelope for both directions: an event name plus its
// JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payload shapes. Validation happens here at the boundary; the
// core below only ever sees well-formed values.

type JoinPayload struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

type EditPayload struct {
	SessionID  string         `json:"sessionId"`
	Revision   int            `json:"revision"`
	Operations []ot.Operation `json:"operations"`
}

type CursorPayload struct {
	SessionID    string `json:"sessionId"`
	Position     int    `json:"position"`
	SelectionEnd int    `json:"selectionEnd"`
	Username     string `json:"username"`
}

type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

type SetDelayPayload struct {
	SessionID string  `json:"sessionId"`
	Delay     float64 `json:"delay"`
}

// ErrMalformedPayload is returned for frames the dispatcher cannot decode
// or that are missing required fields. The transport adapter decides
// whether to drop the frame or close the connection.
var ErrMalformedPayload = errors.New("malformed payload")

// Dispatch decodes one inbound frame from clientID and routes it to the
// matching handler. Unknown events and unknown sessions are silent no-ops
// per the error policy; only undecodable frames surface an error.
func (s *Service) Dispatch(clientID string, raw []byte) error {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	s.metrics.messageReceived()

	switch frame.Event {
	case EventJoin:
		var p JoinPayload
		if err := decodeSession(frame.Data, &p, &p.SessionID); err != nil {
			return err
		}
		s.Join(clientID, p)
	case EventEdit:
		var p EditPayload
		if err := decodeSession(frame.Data, &p, &p.SessionID); err != nil {
			return err
		}
		if err := validateOperations(p.Operations); err != nil {
			return err
		}
		s.Edit(clientID, p)
	case EventCursor:
		var p CursorPayload
		if err := decodeSession(frame.Data, &p, &p.SessionID); err != nil {
			return err
		}
		s.Cursor(clientID, p)
	case EventRequestHistory:
		var p SessionPayload
		if err := decodeSession(frame.Data, &p, &p.SessionID); err != nil {
			return err
		}
		s.RequestHistory(clientID, p)
	case EventUndo:
		var p SessionPayload
		if err := decodeSession(frame.Data, &p, &p.SessionID); err != nil {
			return err
		}
		s.Undo(clientID, p)
	case EventSetDelay:
		var p SetDelayPayload
		if err := decodeSession(frame.Data, &p, &p.SessionID); err != nil {
			return err
		}
		s.SetDelay(clientID, p)
	default:
		s.log.WithField("event", frame.Event).Debug("ignoring unknown event")
	}
	return nil
}

// validateOperations rejects batches that violate the operation wire
// contract: only insert and delete exist, and positions and lengths are
// never negative. Out-of-range-but-non-negative positions are left alone;
// the document clamps those after transformation.
func validateOperations(ops []ot.Operation) error {
	for _, op := range ops {
		if op.Type != ot.OpInsert && op.Type != ot.OpDelete {
			return fmt.Errorf("%w: unknown operation type %q", ErrMalformedPayload, op.Type)
		}
		if op.Position < 0 {
			return fmt.Errorf("%w: negative position", ErrMalformedPayload)
		}
		if op.Length < 0 {
			return fmt.Errorf("%w: negative length", ErrMalformedPayload)
		}
	}
	return nil
}

func decodeSession[T any](raw json.RawMessage, p *T, sessionID *string) error {
	if err := json.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if *sessionID == "" {
		return fmt.Errorf("%w: missing sessionId", ErrMalformedPayload)
	}
	return nil
}
