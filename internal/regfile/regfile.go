// Package regfile implements the register file abstraction of spec §4.7: a
// builder pattern at construction time (each consumer declares its read and
// write ports before the bank is instantiated), and per-register tag
// bookkeeping (spec §3.1) at run time.
//
// Grounded on the teacher's rat/ratValid/registers arrays
// (Maemo32-SupraX_Legacy/SupraX.go OutOfOrderScheduler), generalized from one
// unified 64-entry physical file into the spec's three separate banks (A, D,
// P) each with their own width and tag count, plus an explicit port-builder
// step the teacher's single-scheduler design didn't need.
package regfile

import (
	"github.com/pkg/errors"

	"github.com/benreynwar/zamlet-sub002/internal/logging"
	"github.com/benreynwar/zamlet-sub002/internal/resbus"
	"github.com/benreynwar/zamlet-sub002/internal/tagged"
)

// entry is one architectural register's tag-tracking state (spec §3.1).
type entry struct {
	value       tagged.Value
	pendingTags tagged.Pending
	lastIdent   tagged.Tag
}

// ReadPortID and WritePortID are handles returned by the builder; they carry
// no behavior themselves, they just prove the caller registered a port
// before the bank was built.
type ReadPortID int
type WritePortID int

// Builder assembles one register bank from caller-declared ports (spec
// §4.7). Every consumer of a bank calls MakeReadPort/MakeWritePort during
// wiring; Build() then instantiates the module with exactly that many
// ports — the "width = max declared" sizing spec §4.7 describes.
type Builder struct {
	bank      tagged.Bank
	nRegs     int
	nTags     int
	nReads    int
	nWrites   int
	zeroValue tagged.Value // hard-wired register-index-0 value (spec §4.1)
}

// NewBuilder starts a builder for one bank (A, D, or P) with nRegs
// architectural registers and nTags recyclable tags.
func NewBuilder(bank tagged.Bank, nRegs, nTags int, zeroValue tagged.Value) *Builder {
	return &Builder{bank: bank, nRegs: nRegs, nTags: nTags, zeroValue: zeroValue}
}

// MakeReadPort declares one read port and returns its handle.
func (b *Builder) MakeReadPort() ReadPortID {
	id := ReadPortID(b.nReads)
	b.nReads++
	return id
}

// MakeWritePort declares one write port and returns its handle.
func (b *Builder) MakeWritePort() WritePortID {
	id := WritePortID(b.nWrites)
	b.nWrites++
	return id
}

// Build instantiates the bank with exactly the ports declared so far.
func (b *Builder) Build() *Bank {
	entries := make([]entry, b.nRegs)
	return &Bank{
		bank:      b.bank,
		nTags:     b.nTags,
		entries:   entries,
		nReads:    b.nReads,
		nWrites:   b.nWrites,
		zeroValue: b.zeroValue,
	}
}

// Bank is one physically separate register array (A, D, or P).
type Bank struct {
	bank      tagged.Bank
	nTags     int
	entries   []entry
	nReads    int
	nWrites   int
	zeroValue tagged.Value
}

// NRegs returns the number of architectural registers in this bank.
func (bk *Bank) NRegs() int { return len(bk.entries) }

// Read produces a TaggedSource for index on the given port (spec §3.1,
// §4.7). Register index 0 is hard-wired to bk.zeroValue regardless of
// pending state (spec §4.1 "Register index 0 is hard-wired to the constant
// zero (A/D) or true (P)").
func (bk *Bank) Read(port ReadPortID, index int) tagged.TaggedSource {
	_ = port // ports share the same combinational read path; the handle
	// exists so callers can't read without having declared a port.
	if index == 0 {
		return tagged.Resolved(bk.zeroValue)
	}
	e := &bk.entries[index]
	if e.pendingTags == 0 || !e.pendingTags.IsSet(e.lastIdent) {
		return tagged.Resolved(e.value)
	}
	return tagged.Unresolved(bk.bank, index, e.lastIdent)
}

// ErrTagRecycle is the design-invariant violation of spec §3.1/§7: issuing a
// write whose next tag is still pending. It is returned, never silently
// dropped — RDU surfaces it to dispatch as StalledOnTag, nothing more.
var ErrTagRecycle = errors.New("regfile: next tag still pending")

// TryAllocate computes the tag the next write to index would use and reports
// whether dispatch may proceed (spec §4.1 step 2). It performs no state
// change — allocation only commits via Commit, so a stalled cycle leaves the
// bank untouched, matching "no state changes this cycle" in spec §4.1.
func (bk *Bank) TryAllocate(port WritePortID, index int) (tagged.Tag, error) {
	_ = port
	e := &bk.entries[index]
	next := e.lastIdent.Next(bk.nTags)
	if e.pendingTags.IsSet(next) {
		logging.Warn("tag recycle stall", "bank", bk.bank, "index", index, "tag", next)
		return 0, errors.Wrapf(ErrTagRecycle, "bank=%s index=%d tag=%d", bk.bank, index, next)
	}
	return next, nil
}

// Commit records a successful allocation: marks the new tag pending and
// advances lastIdent. Called only after every other stall check for the
// cycle's whole VLIW bundle has passed (spec §4.1 "atomicity").
func (bk *Bank) Commit(index int, tag tagged.Tag) {
	e := &bk.entries[index]
	e.pendingTags.Set(tag)
	e.lastIdent = tag
}

// Snoop applies this cycle's result-bus writes to the bank (spec §4.1
// "Result-bus handling"): every write whose (bank, addr, tag) matches a
// pending tag clears it, and if tag == lastIdent the value commits into the
// register. A Forced write (predicate) bypasses the pending-tag mask
// entirely.
func (bk *Bank) Snoop(bus resbus.Snapshot) {
	for _, w := range bus.Writes {
		if w.Bank != bk.bank || w.Addr <= 0 || w.Addr >= len(bk.entries) {
			continue
		}
		e := &bk.entries[w.Addr]
		if w.Forced {
			e.value = w.Value
			continue
		}
		if !e.pendingTags.IsSet(w.Tag) {
			continue
		}
		e.pendingTags.Clear(w.Tag)
		if w.Tag == e.lastIdent {
			e.value = w.Value
		}
	}
}

// Peek returns the committed value and pending state of index without
// consuming a read port; used by tests and by components (the RDU loop
// register hook) that only ever observe, never issue against, a register.
func (bk *Bank) Peek(index int) (value tagged.Value, pending tagged.Pending, lastIdent tagged.Tag) {
	e := &bk.entries[index]
	return e.value, e.pendingTags, e.lastIdent
}
