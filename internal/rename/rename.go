// Package rename implements the Rename & Dispatch Unit of spec §4.1: it
// turns one decoded VLIW bundle into zero or more Resolving instructions for
// the reservation stations, consistent with the register model of §3.1.
//
// Grounded on the teacher's Dispatch method
// (Maemo32-SupraX_Legacy/SupraX.go OutOfOrderScheduler.Dispatch): same two
// jobs (resolve sources against the rename state, allocate a destination
// tag) generalized from one unified 64-register file to the spec's
// three-bank model with an explicit stall/no-op outcome instead of a single
// bool, since spec §4.1 requires reporting *why* a cycle stalled.
package rename

import (
	"github.com/benreynwar/zamlet-sub002/internal/execute"
	"github.com/benreynwar/zamlet-sub002/internal/regfile"
	"github.com/benreynwar/zamlet-sub002/internal/resbus"
	"github.com/benreynwar/zamlet-sub002/internal/rs"
	"github.com/benreynwar/zamlet-sub002/internal/tagged"
)

// OutcomeKind distinguishes why a cycle did or didn't dispatch (spec §4.1).
type OutcomeKind int

const (
	Accepted OutcomeKind = iota
	StalledOnTag
	StalledOnRS
)

// IssueOutcome is the result of one accept() call.
type IssueOutcome struct {
	Kind OutcomeKind
	Bank tagged.Bank // StalledOnTag
	Addr int         // StalledOnTag
	Unit rs.Kind     // StalledOnRS
}

// RegOperand names a source/destination register by bank and index. Index 0
// is the hard-wired constant (spec §4.1).
type RegOperand struct {
	Bank  tagged.Bank
	Index int
}

// Slot is one of the up to six parallel sub-instructions in a VLIW bundle
// (spec §6.1). Unit selects which reservation station it targets; Control
// slots target no RS and instead write an L-reg directly.
type Slot struct {
	Valid bool
	Unit  rs.Kind

	Dst    RegOperand
	HasDst bool

	Src1 RegOperand
	Src2 RegOperand

	UseImm bool
	Imm    tagged.Value

	// Pred names the P-reg guarding this instruction; PredAlways means
	// unconditional (no predicate operand read at all).
	Pred       RegOperand
	PredAlways bool

	Mode    execute.Mode
	UseLite bool
	IsLoad  bool

	// Control-slot-only: write Imm into LoopReg index LoopIdx (spec §3.1
	// "Loop-level registers (L-regs) exist only inside the rename unit").
	IsControl bool
	LoopIdx   int

	// Predicate-slot-only: read the loop register instead of Src1 (spec
	// §3.1 "a dependency hook for predicate instructions that read the
	// current loop index").
	ReadsLoop bool
}

// Bundle is the decoded VLIW input of spec §6.1: up to six parallel
// sub-instructions.
type Bundle struct {
	Slots [6]Slot
}

// Banks groups the three register banks the unit reads and writes.
type Banks struct {
	A *regfile.Bank
	D *regfile.Bank
	P *regfile.Bank
}

func (b Banks) bank(k tagged.Bank) *regfile.Bank {
	switch k {
	case tagged.BankA:
		return b.A
	case tagged.BankD:
		return b.D
	default:
		return b.P
	}
}

// Unit is the Rename & Dispatch Unit.
type Unit struct {
	banks    Banks
	loopRegs []tagged.Value

	// stations, keyed by rs.Kind, receive Enqueue calls from Accept.
	stations map[rs.Kind]*rs.Station

	// readPort/writePort are shared handles; every bank was built with at
	// least one read and one write port per operand/destination slot
	// position, so a single handle per bank suffices here (spec §4.7 says
	// ports are declared at construction, it does not mandate one handle
	// per caller-site).
	readPort  map[tagged.Bank]regfile.ReadPortID
	writePort map[tagged.Bank]regfile.WritePortID
}

// New builds a Unit. nLoopRegs sizes the L-reg file.
func New(banks Banks, stations map[rs.Kind]*rs.Station, readPort map[tagged.Bank]regfile.ReadPortID, writePort map[tagged.Bank]regfile.WritePortID, nLoopRegs int) *Unit {
	return &Unit{
		banks:     banks,
		loopRegs:  make([]tagged.Value, nLoopRegs),
		stations:  stations,
		readPort:  readPort,
		writePort: writePort,
	}
}

// read resolves one operand (or the immediate override).
func (u *Unit) read(op RegOperand) tagged.TaggedSource {
	return u.banks.bank(op.Bank).Read(u.readPort[op.Bank], op.Index)
}

// Accept implements spec §4.1's accept(vliw) → IssueOutcome. On success it
// commits all destination tags and enqueues every slot's Resolving
// instruction; on any stall it makes no state changes at all (spec §4.1
// "atomicity": a cycle either accepts the entire VLIW bundle or none of
// it).
func (u *Unit) Accept(b Bundle) IssueOutcome {
	// Pass 1: try to allocate every destination tag (spec §4.1 step 2,
	// "Stall tie-breaks: report the earliest in the fixed dispatch order").
	// TryAllocate makes no state change; allocation only commits below, once
	// every slot in the bundle has cleared every stall check.
	type alloc struct {
		bank *regfile.Bank
		addr int
		tag  tagged.Tag
	}
	var allocs []alloc
	for i := range b.Slots {
		s := &b.Slots[i]
		if !s.Valid {
			continue
		}
		if s.IsControl || !s.HasDst || s.Dst.Index == 0 {
			continue
		}
		bk := u.banks.bank(s.Dst.Bank)
		tag, err := bk.TryAllocate(u.writePort[s.Dst.Bank], s.Dst.Index)
		if err != nil {
			return IssueOutcome{Kind: StalledOnTag, Bank: s.Dst.Bank, Addr: s.Dst.Index}
		}
		allocs = append(allocs, alloc{bk, s.Dst.Index, tag})
	}

	// Pass 2: check every unit has room (spec §4.1 step 3).
	for i := range b.Slots {
		s := &b.Slots[i]
		if !s.Valid || s.IsControl {
			continue
		}
		if !u.stations[s.Unit].CanEnqueue() {
			return IssueOutcome{Kind: StalledOnRS, Unit: s.Unit}
		}
	}

	// Commit: apply control slots (L-reg writes), commit allocations, then
	// read operands/predicates and enqueue. Splitting read-after-commit
	// matters only for L-regs (resolved same cycle); ordinary register
	// reads are unaffected since TryAllocate doesn't change read-visible
	// state until Commit, and Commit only touches the destination itself
	// which downstream slots don't read as a source within the same
	// bundle (spec doesn't model intra-bundle forwarding).
	for i := range b.Slots {
		s := &b.Slots[i]
		if s.Valid && s.IsControl {
			u.loopRegs[s.LoopIdx] = s.Imm
		}
	}
	// Old (the destination's pre-execution value) is read before this
	// bundle's allocations commit, so it never waits on its own write.
	var olds [len(b.Slots)]tagged.TaggedSource
	for i := range b.Slots {
		s := &b.Slots[i]
		if s.Valid && !s.IsControl && s.HasDst {
			olds[i] = u.read(s.Dst)
		}
	}
	for _, a := range allocs {
		a.bank.Commit(a.addr, a.tag)
	}

	for i := range b.Slots {
		s := &b.Slots[i]
		if !s.Valid || s.IsControl {
			continue
		}
		u.dispatch(s, olds[i])
	}

	return IssueOutcome{Kind: Accepted}
}

func (u *Unit) dispatch(s *Slot, old tagged.TaggedSource) {
	var destTag tagged.Tag
	if s.HasDst {
		if s.Dst.Index != 0 {
			_, _, destTag = u.banks.bank(s.Dst.Bank).Peek(s.Dst.Index)
		}
	}

	var src1 tagged.TaggedSource
	if s.ReadsLoop {
		src1 = tagged.Resolved(u.loopRegs[s.Src1.Index])
	} else {
		src1 = u.read(s.Src1)
	}

	var src2 tagged.TaggedSource
	if s.UseImm {
		src2 = tagged.Resolved(s.Imm)
	} else {
		src2 = u.read(s.Src2)
	}

	var pred tagged.TaggedSource
	if !s.PredAlways {
		pred = u.read(s.Pred)
	}

	r := rs.Resolving{
		Kind:       s.Unit,
		Op1:        src1,
		Op2:        src2,
		Old:        old,
		Pred:       pred,
		PredAlways: s.PredAlways,
		DestBank:   s.Dst.Bank,
		DestAddr:   s.Dst.Index,
		DestTag:    destTag,
		Mode:       s.Mode,
		UseLite:    s.UseLite,
		IsLoad:     s.IsLoad,
	}
	// Enqueue cannot fail here: CanEnqueue was checked for every slot
	// before any state changed (pass 2 above). A failure at this point is
	// the design-invariant violation of spec §4.2/§7, not a legitimate
	// outcome, and is intentionally left to panic-through rather than
	// silently swallowed.
	if err := u.stations[s.Unit].Enqueue(r); err != nil {
		panic(err)
	}
}

// Snoop applies this cycle's result bus to every register bank (spec §4.1
// "Result‑bus handling").
func (u *Unit) Snoop(bus resbus.Snapshot) {
	u.banks.A.Snoop(bus)
	u.banks.D.Snoop(bus)
	u.banks.P.Snoop(bus)
}
