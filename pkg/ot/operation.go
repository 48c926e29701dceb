// Package ot implements the server-side operational transformation engine
// for collaborative plain-text editing: the operation representation, the
// per-session document with its revision history, the transform against
// missed history, and the undo primitive.
package ot

// OpType discriminates insert from delete operations.
type OpType string

const (
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
)

// Operation is a single edit at a position in the document text. Positions
// are 0-based offsets in the code units of the wire encoding; the server
// never reinterprets the text, so client and server must agree on the
// encoding.
//
// ID is a collision-resistant identifier used as the deterministic
// tie-breaker between concurrent same-position inserts (byte-lexicographic
// comparison). DeletedText is filled in by the server when a delete is
// applied and is what makes the operation invertible.
type Operation struct {
	ID          string  `json:"id"`
	Type        OpType  `json:"type"`
	Position    int     `json:"position"`
	Text        string  `json:"text"`
	Length      int     `json:"length"`
	DeletedText string  `json:"deleted_text"`
	Timestamp   float64 `json:"timestamp"`
}

// Inverse returns the operation that undoes o. Deletes must have been
// applied (DeletedText recorded) for the inverse to restore the text.
func (o Operation) Inverse() Operation {
	switch o.Type {
	case OpInsert:
		return Operation{
			Type:        OpDelete,
			Position:    o.Position,
			Length:      len(o.Text),
			DeletedText: o.Text,
		}
	default:
		return Operation{
			Type:     OpInsert,
			Position: o.Position,
			Text:     o.DeletedText,
		}
	}
}

// transformAgainst rewrites o's position so it can be applied after missed
// operation m. The rules are cumulative: callers fold a batch of missed
// operations over o in history order.
func transformAgainst(o *Operation, m Operation) {
	switch {
	case o.Position < m.Position:
		// Unaffected.
	case o.Position > m.Position:
		if m.Type == OpInsert {
			o.Position += len(m.Text)
		} else {
			o.Position = max(m.Position, o.Position-m.Length)
		}
	default:
		switch {
		case o.Type == OpInsert && m.Type == OpInsert:
			// Same-position concurrent inserts: total order by id so every
			// replica converges on the same interleaving.
			if o.ID > m.ID {
				o.Position += len(m.Text)
			}
		case o.Type == OpDelete && m.Type == OpInsert:
			o.Position += len(m.Text)
		case o.Type == OpInsert && m.Type == OpDelete:
			// Stays put; any overlap is absorbed by clamping at apply time.
		case o.Type == OpDelete && m.Type == OpDelete:
			// Same start position: left unchanged, clamping resolves the
			// overlap when the operation is applied.
		}
	}
}

// clamp forces the operation into the bounds of a text of the given length,
// trimming delete lengths to what remains past the position. Negative
// lengths collapse to zero so a hostile batch can never slice backwards.
func (o *Operation) clamp(textLen int) {
	if o.Position < 0 {
		o.Position = 0
	}
	if o.Position > textLen {
		o.Position = textLen
	}
	if o.Type == OpDelete {
		if o.Length < 0 {
			o.Length = 0
		}
		if o.Position+o.Length > textLen {
			o.Length = textLen - o.Position
		}
	}
}

// spliceInto applies the operation to text and returns the result. Deletes
// record the removed substring in DeletedText.
func (o *Operation) spliceInto(text string) string {
	switch o.Type {
	case OpInsert:
		return text[:o.Position] + o.Text + text[o.Position:]
	case OpDelete:
		o.DeletedText = text[o.Position : o.Position+o.Length]
		return text[:o.Position] + text[o.Position+o.Length:]
	}
	return text
}
