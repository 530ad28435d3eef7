// Package resbus is the per-cycle result bus snapshot (spec §9 design note):
//
//	"Represent the result bus as a shared read-only snapshot per cycle,
//	 rebuilt each step from all producers; each consumer reads the snapshot
//	 and never takes a long-lived reference to a producer."
//
// Every reservation station, the rename unit, and every register bank snoop
// the same Snapshot value each step; nothing holds a pointer to a producer
// across steps.
package resbus

import "github.com/benreynwar/zamlet-sub002/internal/tagged"

// Write is one producer's result this cycle.
type Write struct {
	Bank  tagged.Bank
	Addr  int
	Tag   tagged.Tag
	Value tagged.Value
	// Forced marks a predicate/unconditional write that bypasses the
	// pending-tag mask (spec §4.1 "Predicate writes are forced writes").
	Forced bool
}

// Snapshot is the immutable set of writes visible to every consumer this
// cycle. It is built once per step by the caller that owns all producers
// (lane.Core) and handed out by value (a small slice header) to every
// consumer; nobody mutates it after construction.
type Snapshot struct {
	Writes []Write
}

// Lookup returns the write matching (bank, addr, tag), if any, scanning the
// snapshot the way every consumer does in hardware: in parallel, one
// comparator per bus port.
func (s Snapshot) Lookup(bank tagged.Bank, addr int, tag tagged.Tag) (Write, bool) {
	for _, w := range s.Writes {
		if w.Bank == bank && w.Addr == addr && w.Tag == tag {
			return w, true
		}
	}
	return Write{}, false
}

// Builder accumulates writes from every producer during one step before the
// Snapshot is frozen and handed to consumers.
type Builder struct {
	writes []Write
}

// Add records one producer's result.
func (b *Builder) Add(w Write) {
	b.writes = append(b.writes, w)
}

// Build freezes the accumulated writes into a Snapshot and resets the
// builder for the next cycle.
func (b *Builder) Build() Snapshot {
	s := Snapshot{Writes: b.writes}
	b.writes = nil
	return s
}
