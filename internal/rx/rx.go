// Package rx implements the two receive handlers of spec §4.5: RxCh0 (the
// source lane's response matching) and RxCh1 (the destination lane's
// request handling).
//
// Grounded on the teacher's result-bus snoop loop
// (Maemo32-SupraX_Legacy/SupraX.go OutOfOrderScheduler.snoop: scan every
// inbound signal once per cycle and mutate matching state), adapted from
// matching reservation-station operands to matching witem table tags.
package rx

import (
	"github.com/benreynwar/zamlet-sub002/internal/packet"
	"github.com/benreynwar/zamlet-sub002/internal/resbus"
	"github.com/benreynwar/zamlet-sub002/internal/tagged"
	"github.com/benreynwar/zamlet-sub002/internal/witem"
)

// Ch0 is RxCh0 (spec §4.5): it matches LOAD_*_RESP/STORE_*_RESP to (id, tag)
// and drives the source-side protocol state.
type Ch0 struct {
	table *witem.Table
}

// NewCh0 builds a Ch0 bound to the lane's witem table.
func NewCh0(table *witem.Table) *Ch0 {
	return &Ch0{table: table}
}

// Handle processes one inbound response (spec §4.5: "drives srcState:
// WAITING_FOR_RESPONSE → COMPLETE on success, or → NEED_TO_SEND on
// DROP/RETRY").
func (c *Ch0) Handle(r packet.Resp) {
	e, ok := c.table.Get(r.ID)
	if !ok || r.Tag < 0 || r.Tag >= len(e.Tags) {
		return
	}
	if e.Tags[r.Tag].Send != witem.SendWaitingForResponse {
		return
	}
	switch r.Status {
	case packet.StatusOK:
		e.Tags[r.Tag].Send = witem.SendComplete
	case packet.StatusDrop, packet.StatusRetry:
		e.Tags[r.Tag].Send = witem.SendNeedToSend
		e.ReadyForS1 = true
	}
}

// Ch1 is RxCh1 (spec §4.5): it serves the destination side of a request —
// mask check, RF write, and RESP/DROP/RETRY generation.
type Ch1 struct {
	table     *witem.Table
	destBank  tagged.Bank
	cacheSlot func(id int) bool // reports whether the witem's cache slot is ready, for store RETRY
}

// NewCh1 builds a Ch1. cacheReady reports whether the local cache backing a
// given witem id is currently available (spec §4.5 "DST RETRY is used
// instead of DROP when the local cache is not yet available"). destBank
// names which register bank RF writes target (A or D, per the witem's
// register-side operand).
func NewCh1(table *witem.Table, destBank tagged.Bank, cacheReady func(id int) bool) *Ch1 {
	return &Ch1{table: table, destBank: destBank, cacheSlot: cacheReady}
}

// Result is RxCh1's outcome: the response to send back, plus an optional
// forced register write for the caller to fold into this cycle's result-bus
// snapshot (spec §4.1 "forced writes bypass the pending mask", applied here
// to protocol-delivered data rather than a predicate).
type Result struct {
	Resp      packet.Resp
	HasWrite  bool
	Write     resbus.Write
}

// Handle processes one inbound request and returns the response to send
// back, and any RF write it implies (spec §4.5).
func (c *Ch1) Handle(req packet.Req) Result {
	e, ok := c.table.Get(req.ID)
	if !ok {
		return Result{Resp: packet.Resp{ID: req.ID, Tag: req.Tag, Kind: req.Kind, Status: packet.StatusDrop}}
	}

	if req.Kind == packet.KindStoreWord && c.cacheSlot != nil && !c.cacheSlot(req.ID) {
		return Result{Resp: packet.Resp{ID: req.ID, Tag: req.Tag, Kind: req.Kind, Status: packet.StatusRetry}}
	}

	res := Result{Resp: packet.Resp{ID: req.ID, Tag: req.Tag, Kind: req.Kind, Status: packet.StatusOK, Data: req.Data}}

	// Mask check: for SRC=memory loads the mask lives at the destination
	// (spec §4.5). An unmasked store request commits its value into the RF.
	if req.Kind == packet.KindStoreWord && !req.Masked && e.HasParams {
		res.HasWrite = true
		res.Write = resbus.Write{
			Bank:   c.destBank,
			Addr:   e.Params.RegAddr,
			Value:  tagged.Value(req.Data),
			Forced: true,
		}
	}

	if req.Tag >= 0 && req.Tag < len(e.Tags) {
		e.Tags[req.Tag].Recv = witem.RecvComplete
	}

	return res
}
