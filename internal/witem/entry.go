// Package witem implements the per-lane Witem table and its 15-stage
// packet-building pipeline (spec §3.3, §4.3) — the largest single component
// of the core (spec §2: "Share: ~30%").
//
// Grounded on the teacher's two-phase Cycle() (Maemo32-SupraX_Legacy/SupraX.go:
// compute every stage's combinational output from current register state,
// then commit every register at once) generalized from one fixed five-stage
// SuperH pipeline into the spec's fifteen independently-configurable elastic
// stage links (internal/elastic), and from a single instruction stream into
// a table of concurrently in-flight protocol witems selected one-at-a-time
// by S1's oldest-ready priority scan.
package witem

import (
	"github.com/pkg/errors"

	"github.com/benreynwar/zamlet-sub002/internal/logging"
)

// SendState is the per-tag source-side protocol state (spec §3.3).
type SendState int

const (
	SendInitial SendState = iota
	SendNeedToSend
	SendWaitingInCaseFault
	SendWaitingForResponse
	SendComplete
)

// ReceiveState is the per-tag destination-side protocol state (spec §3.3).
type ReceiveState int

const (
	RecvWaitingForRequest ReceiveState = iota
	RecvNeedToAskForResend
	RecvComplete
)

// TagState is one protocolStates[k] entry (spec §3.3).
type TagState struct {
	Send SendState
	Recv ReceiveState
}

// Type distinguishes the witem kinds §4.3/§8 name. HasDstRole controls
// whether dstState starts COMPLETE (spec §3.3: "dstState is initialized to
// COMPLETE for witem types that lack a receive role, e.g. strided ops").
type Type int

const (
	TypeJ2JLoad Type = iota
	TypeJ2JStore
	TypeStridedLoad
	TypeStridedStore
	TypeIndexedLoad
	TypeIndexedStore
)

// HasDstRole reports whether this witem type expects peer requests on its
// destination side at all (only the jamlet-to-jamlet types do; strided and
// indexed transfers address memory directly through the TLB/SRAM path).
func (t Type) HasDstRole() bool {
	return t == TypeJ2JLoad || t == TypeJ2JStore
}

// Params is the kamletEntryResp record of spec §6.2, filled in by S3.
type Params struct {
	Type         Type
	CacheSlot    int
	BaseAddr     int
	Stride       int
	RegAddr      int
	MaskReg      int
	MaskEnabled  bool
	StartIndex   int
	NElements    int
	SrcEW        int
	MemEW        int
	RegEW        int
	RegWordOrder int
	MemWordOrder int
}

// Entry is one WitemEntry of spec §3.3.
type Entry struct {
	Valid             bool
	InstrIdent        int
	CacheIsAvail      bool
	Priority          int
	ReadyForS1        bool
	FaultSignaled     bool
	CompleteSignaled  bool
	LocalMinFault     int
	HasFault          bool
	Tags              []TagState
	Params            Params
	HasParams         bool
	CurrentTag        int // S11's iteration cursor within [0, wordBytes)
	CompletionSynced  bool
}

// IsComplete reports the spec §3.3 invariant: "An entry is complete iff
// every tag has srcState=COMPLETE ∧ dstState=COMPLETE."
func (e *Entry) IsComplete() bool {
	for _, t := range e.Tags {
		if t.Send != SendComplete || t.Recv != RecvComplete {
			return false
		}
	}
	return true
}

// Table is the per-lane array of WitemEntry (spec §3.3).
type Table struct {
	wordBytes    int
	entries      map[int]*Entry
	nextPriority int
}

// NewTable builds an empty table. wordBytes sizes each entry's tag array.
func NewTable(wordBytes int) *Table {
	return &Table{wordBytes: wordBytes, entries: make(map[int]*Entry)}
}

// ErrDuplicateID is a design-invariant violation (spec §7): witemCreate for
// an id that is still in the table.
var ErrDuplicateID = errors.New("witem: id already in table")

// Create implements witemCreate(id, type, cacheSlot, cacheAvail) (spec §4.3
// contract). dstState is seeded COMPLETE for src-only types per spec §3.3.
func (t *Table) Create(id int, wtype Type, cacheSlot int, cacheAvail bool) error {
	if _, exists := t.entries[id]; exists {
		logging.Error("design-invariant violation: witem id already in table", "id", id)
		return errors.Wrapf(ErrDuplicateID, "id=%d", id)
	}
	tags := make([]TagState, t.wordBytes)
	initRecv := RecvWaitingForRequest
	if !wtype.HasDstRole() {
		initRecv = RecvComplete
	}
	for i := range tags {
		tags[i] = TagState{Send: SendInitial, Recv: initRecv}
	}
	e := &Entry{
		Valid:        true,
		InstrIdent:   id,
		CacheIsAvail: cacheAvail,
		Priority:     t.nextPriority,
		ReadyForS1:   cacheAvail,
		Tags:         tags,
		Params:       Params{Type: wtype, CacheSlot: cacheSlot},
	}
	t.nextPriority++
	t.entries[id] = e
	return nil
}

// CacheAvail implements witemCacheAvail(id): flips cacheIsAvail and sets
// readyForS1 (spec §4.3 contract).
func (t *Table) CacheAvail(id int) {
	e, ok := t.entries[id]
	if !ok {
		return
	}
	e.CacheIsAvail = true
	e.ReadyForS1 = true
}

// Remove implements witemRemove(id): frees the slot and compacts priority
// (spec §3.3: "on remove every larger priority is decremented").
func (t *Table) Remove(id int) {
	e, ok := t.entries[id]
	if !ok {
		return
	}
	removed := e.Priority
	delete(t.entries, id)
	for _, other := range t.entries {
		if other.Priority > removed {
			other.Priority--
		}
	}
	t.nextPriority--
}

// Get returns the entry for id, if present.
func (t *Table) Get(id int) (*Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// SelectForS1 implements S1's duty: "pick oldest entry where valid ∧
// readyForS1" (spec §4.3), oldest meaning lowest Priority.
func (t *Table) SelectForS1() (*Entry, bool) {
	var best *Entry
	for _, e := range t.entries {
		if !e.Valid || !e.ReadyForS1 {
			continue
		}
		if best == nil || e.Priority < best.Priority {
			best = e
		}
	}
	return best, best != nil
}

// IDs returns every live witem id, for iteration by the sync and rx layers.
func (t *Table) IDs() []int {
	ids := make([]int, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}
