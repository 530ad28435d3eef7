// Package ksync implements the Sync Coordinator and its Kamlet Witem Table
// (spec §3.4, §4.4): the two-phase fault-sync/completion-sync barrier that
// reconciles page faults and transfer completion across the peer lanes of a
// kamlet group before a strided/indexed transfer is declared finished.
//
// Grounded on the teacher's rename-table bookkeeping style
// (Maemo32-SupraX_Legacy/SupraX.go: per-slot state plus a monotonic
// identifier) adapted from per-register tags to per-group sync identifiers;
// the fault/completion phase machine itself has no teacher analogue (the
// teacher's core has no multi-lane barrier) and is built directly from spec
// §4.4's state-transition prose.
package ksync

import (
	"github.com/pkg/errors"

	"github.com/benreynwar/zamlet-sub002/internal/logging"
)

// Phase distinguishes the fault-sync row from the completion-sync row for
// the same group id (spec §4.3 "Sync identifier allocation": fault sync
// uses id, completion sync uses (id+1) mod maxTags).
type Phase int

const (
	PhaseFault Phase = iota
	PhaseCompletion
)

// State is the three-value domain shared by faultSyncState and
// completionSyncState (spec §3.4).
type State int

const (
	NotStarted State = iota
	Waiting
	Complete
)

// Row is one Kamlet Witem Table entry (spec §3.4).
type Row struct {
	Phase         Phase
	State         State
	PeerReady     []bool
	LocalMinFault int
	GlobalMinFault int
	HasValue      bool // false for completion-sync rows, which carry no payload
}

func (r *Row) allReady() bool {
	for _, ready := range r.PeerReady {
		if !ready {
			return false
		}
	}
	return true
}

// LocalEvent is syncLocalEvent(id, value?) (spec §6.4): what the coordinator
// sends to the external synchronizer once every peer has reported in.
type LocalEvent struct {
	ID       int
	Phase    Phase
	HasValue bool
	Value    int
}

// Broadcast is faultSyncComplete(id, globalMin) or completionSyncComplete(id)
// (spec §6.4): what the coordinator sends back to every lane's WM.
type Broadcast struct {
	ID             int
	Phase          Phase
	GlobalMinFault int
}

// ErrUnknownID is a design-invariant violation (spec §7): a sync event
// arrived for an id with no open row — faultReady/completeReady always
// create the row on first report, so this only fires for a stray
// syncComplete.
var ErrUnknownID = errors.New("ksync: no open row for id")

// Coordinator is the Sync Coordinator of spec §4.4, one instance per kamlet
// group.
type Coordinator struct {
	nPeers      int
	maxSyncTags int
	rows        map[int]*Row

	localEvents []LocalEvent
	broadcasts  []Broadcast
}

// NewCoordinator builds a Coordinator for a group of nPeers lanes.
// maxSyncTags bounds outstanding identifiers (spec §9 Open Question,
// resolved as config.Params.MaxSyncTags).
func NewCoordinator(nPeers, maxSyncTags int) *Coordinator {
	return &Coordinator{nPeers: nPeers, maxSyncTags: maxSyncTags, rows: make(map[int]*Row)}
}

// completionID is the disjoint identifier reservation for the completion
// phase of group id (spec §4.3).
func (c *Coordinator) completionID(id int) int {
	return (id + 1) % c.maxSyncTags
}

func (c *Coordinator) rowFor(key int, phase Phase) *Row {
	r, ok := c.rows[key]
	if !ok {
		r = &Row{Phase: phase, State: NotStarted, PeerReady: make([]bool, c.nPeers)}
		c.rows[key] = r
	}
	return r
}

// FaultReady implements the WM→coordinator faultReady(id, minFault) call
// (spec §4.4): "On every faultReady from a peer lane, set the peer bit and
// update localMinFault = min(localMinFault, reportedMin). When all peer bits
// are set, send syncLocalEvent and transition to WAITING."
func (c *Coordinator) FaultReady(id, peerIdx, minFault int) {
	r := c.rowFor(id, PhaseFault)
	if !r.HasValue || minFault < r.LocalMinFault {
		r.LocalMinFault = minFault
	}
	r.HasValue = true
	if peerIdx >= 0 && peerIdx < len(r.PeerReady) {
		r.PeerReady[peerIdx] = true
	}
	if r.State == NotStarted && r.allReady() {
		r.State = Waiting
		logging.Debug("fault sync: all peers reported", "id", id, "localMinFault", r.LocalMinFault)
		c.localEvents = append(c.localEvents, LocalEvent{ID: id, Phase: PhaseFault, HasValue: true, Value: r.LocalMinFault})
	}
}

// CompleteReady implements the WM→coordinator completeReady(id) call (spec
// §4.4), using the completion phase's disjoint identifier.
func (c *Coordinator) CompleteReady(id, peerIdx int) {
	key := c.completionID(id)
	r := c.rowFor(key, PhaseCompletion)
	if peerIdx >= 0 && peerIdx < len(r.PeerReady) {
		r.PeerReady[peerIdx] = true
	}
	if r.State == NotStarted && r.allReady() {
		r.State = Waiting
		logging.Debug("completion sync: all peers reported", "id", key)
		c.localEvents = append(c.localEvents, LocalEvent{ID: key, Phase: PhaseCompletion})
	}
}

// SyncComplete implements the external-network→coordinator syncComplete(id,
// minValue?) call (spec §4.4, §6.4): store globalMinFault, transition to
// COMPLETE, broadcast faultSyncComplete/completionSyncComplete to all lanes.
func (c *Coordinator) SyncComplete(id int, globalMin int) error {
	r, ok := c.rows[id]
	if !ok {
		logging.Error("design-invariant violation: syncComplete for unknown id", "id", id)
		return errors.Wrapf(ErrUnknownID, "id=%d", id)
	}
	r.GlobalMinFault = globalMin
	r.State = Complete
	logging.Debug("sync complete", "id", id, "phase", r.Phase, "globalMinFault", globalMin)
	c.broadcasts = append(c.broadcasts, Broadcast{ID: id, Phase: r.Phase, GlobalMinFault: globalMin})
	return nil
}

// DrainLocalEvents pops every syncLocalEvent queued since the last call, for
// delivery to the external synchronizer.
func (c *Coordinator) DrainLocalEvents() []LocalEvent {
	events := c.localEvents
	c.localEvents = nil
	return events
}

// DrainBroadcasts pops every faultSyncComplete/completionSyncComplete queued
// since the last call, for delivery to every lane's WM pipeline.
func (c *Coordinator) DrainBroadcasts() []Broadcast {
	b := c.broadcasts
	c.broadcasts = nil
	return b
}

// Row returns the row for a raw sync identifier (fault id or completion
// id), for tests and metrics.
func (c *Coordinator) Row(key int) (*Row, bool) {
	r, ok := c.rows[key]
	return r, ok
}

// OutstandingCount reports the number of open rows, for the universal
// invariant of spec §8: "the number of outstanding sync identifiers at any
// time ≤ size of the kamlet table."
func (c *Coordinator) OutstandingCount() int {
	n := 0
	for _, r := range c.rows {
		if r.State != Complete {
			n++
		}
	}
	return n
}
