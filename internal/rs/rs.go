// Package rs implements the reservation stations of spec §4.2: per-unit
// queues of resolving instructions that snoop the result bus and issue the
// oldest ready entry, with the Packet-Send unit pinned to strict in-order
// issue.
//
// Grounded on the teacher's bitmap-Tomasulo scheduler
// (Maemo32-SupraX_Legacy/proto/ooo/ooo.go): that scheduler tracks readiness
// with a single 64-bit bitmap and a dependency matrix over one unified
// window. Spec §3.2 instead wants per-unit FIFO queues whose slots carry
// real TaggedSource operands (not just bitmap bits) and whose readiness
// follows the predicate-aware issue condition of §3.2 — so the teacher's
// CTZ/CLZ priority-encoder idiom is kept (oldest-ready-first via a forward
// scan once slots are kept compacted) while the bitmap dependency matrix
// itself doesn't carry over: operand resolution here is driven by the
// result-bus snapshot (package resbus), not a same-window dependency graph.
package rs

import (
	"github.com/pkg/errors"

	"github.com/benreynwar/zamlet-sub002/internal/execute"
	"github.com/benreynwar/zamlet-sub002/internal/logging"
	"github.com/benreynwar/zamlet-sub002/internal/resbus"
	"github.com/benreynwar/zamlet-sub002/internal/tagged"
)

// Kind identifies which reservation station an entry belongs to (spec §2,
// the five RS units).
type Kind int

const (
	KindALU Kind = iota
	KindLSU
	KindPacketSend
	KindPacketRecv
	KindPredicate
)

func (k Kind) String() string {
	switch k {
	case KindALU:
		return "RS-ALU"
	case KindLSU:
		return "RS-LSU"
	case KindPacketSend:
		return "RS-Packet-Send"
	case KindPacketRecv:
		return "RS-Packet-Recv"
	case KindPredicate:
		return "RS-Predicate"
	default:
		return "RS-?"
	}
}

// Resolving is the tagged-variant "all operands are TaggedSources" form of
// spec §3.2. One struct serves every Kind; which fields are meaningful
// depends on Kind (spec §9 design note: "share behavior through small
// trait-like operation sets, not inheritance" — here that's IsReady/Update
// rather than per-kind structs and an interface).
type Resolving struct {
	Kind Kind

	Op1 tagged.TaggedSource
	Op2 tagged.TaggedSource
	// Old carries the destination's pre-execution value so a predicate-false
	// result can pass through unchanged (spec §3.2).
	Old tagged.TaggedSource
	// Pred resolves to 0/1; PredAlways=true means this instruction is
	// unconditional (Pred is treated as already-resolved true).
	Pred       tagged.TaggedSource
	PredAlways bool

	DestBank tagged.Bank
	DestAddr int
	DestTag  tagged.Tag

	Mode    execute.Mode
	UseLite bool // KindALU only: dispatch to ALU-Lite instead of ALU
	IsLoad  bool // KindLSU only: load vs store
}

func (r *Resolving) predTrue() bool {
	return r.PredAlways || (r.Pred.Resolved && r.Pred.Value != 0)
}

func (r *Resolving) predResolved() bool {
	return r.PredAlways || r.Pred.Resolved
}

// IsReady evaluates the issue condition of spec §3.2:
//
//	(all non-predicate operands resolved ∧ predicate resolved ∧ predicate=true)
//	∨ (old resolved ∧ predicate resolved ∧ predicate=false)
func (r *Resolving) IsReady() bool {
	if !r.predResolved() {
		return false
	}
	if r.predTrue() {
		return r.Op1.Resolved && r.Op2.Resolved
	}
	return r.Old.Resolved
}

// update applies one result-bus write to every TaggedSource field.
func (r *Resolving) update(w resbus.Write) {
	r.Op1.Update(w.Bank, w.Addr, w.Tag, w.Value)
	r.Op2.Update(w.Bank, w.Addr, w.Tag, w.Value)
	r.Old.Update(w.Bank, w.Addr, w.Tag, w.Value)
	r.Pred.Update(w.Bank, w.Addr, w.Tag, w.Value)
}

// ErrNoFreeSlots is the design-invariant violation of spec §4.2/§7: an
// enqueue arrived with zero free slots. A correct caller never triggers
// this — RDU always checks CanEnqueue before committing a dispatch.
var ErrNoFreeSlots = errors.New("rs: no free slots")

type slot struct {
	valid bool
	r     Resolving
}

// Station is one reservation station (spec §4.2).
type Station struct {
	kind           Kind
	slots          []slot
	inOrder        bool
	hasInputBuffer bool
}

// New builds a station with n slots. inOrder pins issue to position 0 only
// (spec §4.2: "Packet-Send RS issues strictly in order"). hasInputBuffer
// widens the enqueue margin to two free slots instead of one (spec §4.2).
func New(kind Kind, n int, inOrder, hasInputBuffer bool) *Station {
	return &Station{kind: kind, slots: make([]slot, n), inOrder: inOrder, hasInputBuffer: hasInputBuffer}
}

func (s *Station) freeCount() int {
	n := 0
	for i := range s.slots {
		if !s.slots[i].valid {
			n++
		}
	}
	return n
}

// CanEnqueue reports whether an instruction may be accepted this cycle
// (spec §4.2 contract).
func (s *Station) CanEnqueue() bool {
	if s.hasInputBuffer {
		return s.freeCount() >= 2
	}
	return s.freeCount() >= 1
}

// Enqueue accepts a new Resolving instruction. Compaction (see Issue)
// guarantees empty slots are always at the tail, so the first free slot
// found is the correct insertion point for FIFO order.
func (s *Station) Enqueue(r Resolving) error {
	if !s.CanEnqueue() {
		logging.Error("design-invariant violation: no free slots", "station", s.kind)
		return errors.Wrapf(ErrNoFreeSlots, "%s", s.kind)
	}
	for i := range s.slots {
		if !s.slots[i].valid {
			s.slots[i] = slot{valid: true, r: r}
			return nil
		}
	}
	return errors.Wrapf(ErrNoFreeSlots, "%s: compaction invariant violated", s.kind)
}

// Snoop updates every occupied slot's operands from the result bus (spec
// §4.2 contract).
func (s *Station) Snoop(bus resbus.Snapshot) {
	for i := range s.slots {
		if !s.slots[i].valid {
			continue
		}
		for _, w := range bus.Writes {
			s.slots[i].r.update(w)
		}
	}
}

// Resolved is the retired form of an issued instruction, handed to the
// execution units.
type Resolved struct {
	Kind     Kind
	Op1      tagged.Value
	Op2      tagged.Value
	Old      tagged.Value
	PredTrue bool
	DestBank tagged.Bank
	DestAddr int
	DestTag  tagged.Tag
	Mode     execute.Mode
	UseLite  bool
	IsLoad   bool
}

// Issue pops the oldest ready slot (spec §4.2): for an in-order station only
// position 0 may issue; out-of-order stations scan low-to-high, which is
// oldest-first because Enqueue/compaction keep slot 0 the oldest occupant.
// Issue is silent (returns ok=false) if nothing is ready — that is not an
// error, spec §4.2 treats it as the ordinary steady state.
func (s *Station) Issue() (Resolved, bool) {
	if s.inOrder {
		if !s.slots[0].valid || !s.slots[0].r.IsReady() {
			return Resolved{}, false
		}
		return s.pop(0), true
	}
	for i := range s.slots {
		if s.slots[i].valid && s.slots[i].r.IsReady() {
			return s.pop(i), true
		}
	}
	return Resolved{}, false
}

func (s *Station) pop(i int) Resolved {
	r := s.slots[i].r
	s.slots[i] = slot{}
	s.compact()
	predTrue := r.predTrue()
	return Resolved{
		Kind: r.Kind,
		Op1: func() tagged.Value {
			if predTrue {
				return r.Op1.Value
			}
			return r.Old.Value
		}(),
		Op2:      r.Op2.Value,
		Old:      r.Old.Value,
		PredTrue: predTrue,
		DestBank: r.DestBank,
		DestAddr: r.DestAddr,
		DestTag:  r.DestTag,
		Mode:     r.Mode,
		UseLite:  r.UseLite,
		IsLoad:   r.IsLoad,
	}
}

// compact shifts every valid slot down so valid entries occupy the low
// indices (spec §4.2 "Compaction"), preserving relative (FIFO/age) order.
func (s *Station) compact() {
	w := 0
	for r := 0; r < len(s.slots); r++ {
		if s.slots[r].valid {
			if w != r {
				s.slots[w] = s.slots[r]
				s.slots[r] = slot{}
			}
			w++
		}
	}
}

// Occupancy reports how many slots currently hold a valid entry (used by
// internal/metrics for the RS-occupancy gauge).
func (s *Station) Occupancy() int {
	return len(s.slots) - s.freeCount()
}

// Len returns the station's configured slot count.
func (s *Station) Len() int { return len(s.slots) }
