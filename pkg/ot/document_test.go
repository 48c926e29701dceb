package ot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequentialIDs returns an id source producing "id-0001", "id-0002", ...
// so tie-breaks are deterministic under test.
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}

func newTestDocument(t *testing.T) *Document {
	t.Helper()
	doc := NewDocument("test-session")
	doc.SetIDSource(sequentialIDs())
	return doc
}

// foldHistory replays the full history over the empty string, for checking
// that text is always the fold of its history.
func foldHistory(t *testing.T, doc *Document) string {
	t.Helper()
	text := ""
	for _, op := range doc.EditHistory() {
		op := op
		text = op.spliceInto(text)
	}
	return text
}

func TestSingleInsert(t *testing.T) {
	doc := newTestDocument(t)

	applied := doc.ApplyOperations("client-a", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})

	require.Len(t, applied, 1)
	assert.Equal(t, "hello", doc.Text())
	assert.Equal(t, 1, doc.Revision())
	assert.NotEmpty(t, applied[0].ID)
	assert.NotZero(t, applied[0].Timestamp)
}

func TestSequentialInsertsFromOneClient(t *testing.T) {
	doc := newTestDocument(t)

	doc.ApplyOperations("client-a", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})
	doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpInsert, Position: 5, Text: " world"},
	})

	assert.Equal(t, "hello world", doc.Text())
	assert.Equal(t, 2, doc.Revision())
}

func TestConcurrentInsertsTieBreakByID(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{ID: "0000-setup", Type: OpInsert, Position: 0, Text: "ab"},
	})

	// Both clients edit against revision 1. A's id sorts before B's, so
	// A's text ends up first regardless of arrival order.
	appliedA := doc.ApplyOperations("client-a", 1, []Operation{
		{ID: "aaaa-aaaa", Type: OpInsert, Position: 1, Text: "X"},
	})
	require.Len(t, appliedA, 1)
	assert.Equal(t, "aXb", doc.Text())
	assert.Equal(t, 2, doc.Revision())

	appliedB := doc.ApplyOperations("client-b", 1, []Operation{
		{ID: "ffff-ffff", Type: OpInsert, Position: 1, Text: "Y"},
	})
	require.Len(t, appliedB, 1)
	assert.Equal(t, 2, appliedB[0].Position)
	assert.Equal(t, "aXYb", doc.Text())
	assert.Equal(t, 3, doc.Revision())
}

func TestConcurrentInsertsTieBreakArrivalReversed(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{ID: "0000-setup", Type: OpInsert, Position: 0, Text: "ab"},
	})

	// B (higher id) arrives first this time; A's insert stays at the
	// original position and B shifts, converging on the same text.
	doc.ApplyOperations("client-b", 1, []Operation{
		{ID: "ffff-ffff", Type: OpInsert, Position: 1, Text: "Y"},
	})
	appliedA := doc.ApplyOperations("client-a", 1, []Operation{
		{ID: "aaaa-aaaa", Type: OpInsert, Position: 1, Text: "X"},
	})

	require.Len(t, appliedA, 1)
	assert.Equal(t, 1, appliedA[0].Position)
	assert.Equal(t, "aXYb", doc.Text())
}

func TestInsertShiftsConcurrentDelete(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})

	doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpInsert, Position: 0, Text: "X"},
	})
	require.Equal(t, "Xhello", doc.Text())

	applied := doc.ApplyOperations("client-b", 1, []Operation{
		{Type: OpDelete, Position: 2, Length: 2},
	})

	require.Len(t, applied, 1)
	assert.Equal(t, 3, applied[0].Position)
	assert.Equal(t, "ll", applied[0].DeletedText)
	assert.Equal(t, "Xheo", doc.Text())
	assert.Equal(t, 3, doc.Revision())
}

func TestUndoRestoresDeletedText(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})
	doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpInsert, Position: 0, Text: "X"},
	})
	doc.ApplyOperations("client-b", 1, []Operation{
		{Type: OpDelete, Position: 2, Length: 2},
	})
	require.Equal(t, "Xheo", doc.Text())

	inv, ok := doc.UndoLastOperation()
	require.True(t, ok)
	assert.Equal(t, OpInsert, inv.Type)
	assert.Equal(t, 3, inv.Position)
	assert.Equal(t, "ll", inv.Text)
	assert.Equal(t, "Xhello", doc.Text())
	assert.Equal(t, 2, doc.Revision())
}

func TestUndoInsertRoundTrip(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "base"},
	})
	before := doc.Text()
	beforeRev := doc.Revision()

	doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpInsert, Position: 2, Text: "XYZ"},
	})
	require.Equal(t, "baXYZse", doc.Text())

	inv, ok := doc.UndoLastOperation()
	require.True(t, ok)
	assert.Equal(t, OpDelete, inv.Type)
	assert.Equal(t, before, doc.Text())
	assert.Equal(t, beforeRev, doc.Revision())
}

func TestUndoEmptyHistory(t *testing.T) {
	doc := newTestDocument(t)
	_, ok := doc.UndoLastOperation()
	assert.False(t, ok)
	assert.Equal(t, 0, doc.Revision())
}

func TestUndoIsNotAppendedToHistory(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("client-a", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "abc"},
	})

	_, ok := doc.UndoLastOperation()
	require.True(t, ok)
	assert.Empty(t, doc.EditHistory())
	assert.Equal(t, 0, doc.Revision())
}

func TestTransformAgainstTable(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		missed  Operation
		wantPos int
	}{
		{
			name:    "before missed op unchanged",
			op:      Operation{ID: "b", Type: OpInsert, Position: 2},
			missed:  Operation{ID: "a", Type: OpInsert, Position: 5, Text: "xx"},
			wantPos: 2,
		},
		{
			name:    "after missed insert shifts right",
			op:      Operation{ID: "b", Type: OpInsert, Position: 5},
			missed:  Operation{ID: "a", Type: OpInsert, Position: 2, Text: "xx"},
			wantPos: 7,
		},
		{
			name:    "after missed delete shifts left",
			op:      Operation{ID: "b", Type: OpInsert, Position: 5},
			missed:  Operation{ID: "a", Type: OpDelete, Position: 2, Length: 2},
			wantPos: 3,
		},
		{
			name:    "after missed delete clamps to delete position",
			op:      Operation{ID: "b", Type: OpInsert, Position: 3},
			missed:  Operation{ID: "a", Type: OpDelete, Position: 2, Length: 5},
			wantPos: 2,
		},
		{
			name:    "equal position inserts, higher id shifts",
			op:      Operation{ID: "zzzz", Type: OpInsert, Position: 2},
			missed:  Operation{ID: "aaaa", Type: OpInsert, Position: 2, Text: "xx"},
			wantPos: 4,
		},
		{
			name:    "equal position inserts, lower id stays",
			op:      Operation{ID: "aaaa", Type: OpInsert, Position: 2},
			missed:  Operation{ID: "zzzz", Type: OpInsert, Position: 2, Text: "xx"},
			wantPos: 2,
		},
		{
			name:    "delete at missed insert position shifts",
			op:      Operation{ID: "b", Type: OpDelete, Position: 2, Length: 1},
			missed:  Operation{ID: "a", Type: OpInsert, Position: 2, Text: "xx"},
			wantPos: 4,
		},
		{
			name:    "insert at missed delete position stays",
			op:      Operation{ID: "b", Type: OpInsert, Position: 2},
			missed:  Operation{ID: "a", Type: OpDelete, Position: 2, Length: 3},
			wantPos: 2,
		},
		{
			name:    "delete at missed delete position stays",
			op:      Operation{ID: "b", Type: OpDelete, Position: 2, Length: 3},
			missed:  Operation{ID: "a", Type: OpDelete, Position: 2, Length: 1},
			wantPos: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := tt.op
			transformAgainst(&op, tt.missed)
			assert.Equal(t, tt.wantPos, op.Position)
		})
	}
}

func TestApplyClampsOutOfRangePositions(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "abc"},
	})

	applied := doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpInsert, Position: 100, Text: "!"},
	})
	require.Len(t, applied, 1)
	assert.Equal(t, 3, applied[0].Position)
	assert.Equal(t, "abc!", doc.Text())

	applied = doc.ApplyOperations("client-a", 2, []Operation{
		{Type: OpDelete, Position: 2, Length: 50},
	})
	require.Len(t, applied, 1)
	assert.Equal(t, 2, applied[0].Length)
	assert.Equal(t, "c!", applied[0].DeletedText)
	assert.Equal(t, "ab", doc.Text())
}

func TestNegativeDeleteLengthIsHarmless(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})

	// A hostile length must never slice backwards out of the text.
	applied := doc.ApplyOperations("attacker", 1, []Operation{
		{Type: OpDelete, Position: 2, Length: -3},
	})

	require.Len(t, applied, 1)
	assert.Equal(t, 0, applied[0].Length)
	assert.Equal(t, "", applied[0].DeletedText)
	assert.Equal(t, "hello", doc.Text())
}

func TestUnknownOperationTypeDropped(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})

	applied := doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpType("replace"), Position: 0, Text: "x"},
	})

	// Nothing committed: no junk history entry, no revision bump.
	assert.Empty(t, applied)
	assert.Equal(t, 1, doc.Revision())
	assert.Len(t, doc.EditHistory(), 1)
	assert.Equal(t, "hello", doc.Text())
}

func TestTimestampIsAlwaysServerAssigned(t *testing.T) {
	doc := newTestDocument(t)

	applied := doc.ApplyOperations("client-a", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hi", Timestamp: 123.5},
	})

	require.Len(t, applied, 1)
	assert.NotEqual(t, 123.5, applied[0].Timestamp)
	assert.Greater(t, applied[0].Timestamp, 0.0)
}

func TestClientRevisionAheadTreatedAsCurrent(t *testing.T) {
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "abc"},
	})

	// Revision 99 cannot have missed anything; the op applies untransformed.
	applied := doc.ApplyOperations("client-a", 99, []Operation{
		{Type: OpInsert, Position: 1, Text: "X"},
	})
	require.Len(t, applied, 1)
	assert.Equal(t, 1, applied[0].Position)
	assert.Equal(t, "aXbc", doc.Text())
}

func TestBatchDeleteTheInsert(t *testing.T) {
	// The client diff for a replacement produces delete-then-insert in one
	// batch; ops after the first apply against the already-mutated text.
	doc := newTestDocument(t)
	doc.ApplyOperations("setup", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})

	applied := doc.ApplyOperations("client-a", 1, []Operation{
		{Type: OpDelete, Position: 0, Length: 5},
		{Type: OpInsert, Position: 0, Text: "howdy"},
	})

	require.Len(t, applied, 2)
	assert.Equal(t, "hello", applied[0].DeletedText)
	assert.Equal(t, "howdy", doc.Text())
	assert.Equal(t, 3, doc.Revision())
}

func TestHistoryInvariants(t *testing.T) {
	doc := newTestDocument(t)

	doc.ApplyOperations("client-a", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "hello"},
	})
	doc.ApplyOperations("client-b", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "say: "},
	})
	doc.ApplyOperations("client-a", 2, []Operation{
		{Type: OpDelete, Position: 0, Length: 4},
	})
	doc.UndoLastOperation()

	// len(history) == revision, and text is the fold of history.
	history := doc.EditHistory()
	assert.Len(t, history, doc.Revision())
	assert.Equal(t, doc.Text(), foldHistory(t, doc))
}

func TestClientAckNeverExceedsRevision(t *testing.T) {
	doc := newTestDocument(t)
	doc.AddClient("client-a")
	doc.AddClient("client-b")

	doc.ApplyOperations("client-a", 0, []Operation{
		{Type: OpInsert, Position: 0, Text: "one"},
	})
	doc.ApplyOperations("client-b", 1, []Operation{
		{Type: OpInsert, Position: 3, Text: "two"},
	})

	// Undo pulls the revision back; acked revisions must follow it down.
	doc.UndoLastOperation()

	for _, id := range []string{"client-a", "client-b"} {
		rev, ok := doc.ClientRevision(id)
		require.True(t, ok, id)
		assert.GreaterOrEqual(t, rev, 0)
		assert.LessOrEqual(t, rev, doc.Revision())
	}
}

func TestDuplicateOperationIDsReassigned(t *testing.T) {
	doc := newTestDocument(t)

	doc.ApplyOperations("client-a", 0, []Operation{
		{ID: "dup", Type: OpInsert, Position: 0, Text: "a"},
	})
	applied := doc.ApplyOperations("client-b", 1, []Operation{
		{ID: "dup", Type: OpInsert, Position: 1, Text: "b"},
	})

	require.Len(t, applied, 1)
	assert.NotEqual(t, "dup", applied[0].ID)

	seen := map[string]bool{}
	for _, op := range doc.EditHistory() {
		assert.False(t, seen[op.ID], "duplicate id %s in history", op.ID)
		seen[op.ID] = true
	}
}

func TestConcurrentApplyKeepsInvariants(t *testing.T) {
	doc := NewDocument("stress")

	const writers = 8
	const opsPerWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			clientID := fmt.Sprintf("client-%d", w)
			for i := 0; i < opsPerWriter; i++ {
				rev := doc.Revision()
				doc.ApplyOperations(clientID, rev, []Operation{
					{Type: OpInsert, Position: i, Text: "x"},
				})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*opsPerWriter, doc.Revision())
	assert.Len(t, doc.EditHistory(), doc.Revision())
	assert.Equal(t, doc.Text(), foldHistory(t, doc))
	assert.Len(t, doc.Text(), writers*opsPerWriter)
}
