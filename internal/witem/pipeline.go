package witem

import (
	"math"

	"github.com/benreynwar/zamlet-sub002/config"
	"github.com/benreynwar/zamlet-sub002/internal/elastic"
	"github.com/benreynwar/zamlet-sub002/internal/logging"
	"github.com/benreynwar/zamlet-sub002/internal/packet"
	"github.com/benreynwar/zamlet-sub002/internal/regfile"
	"github.com/benreynwar/zamlet-sub002/internal/tagmap"
)

// noFaultReported is reported to the Sync Coordinator by a witem that
// exhausted its tags without ever seeing a page fault: it must not pull the
// cross-lane minimum down below the lowest element index any peer actually
// faulted on (spec §4.4 "globalMinFault is the minimum of every reporting
// peer's localMinFault").
const noFaultReported = math.MaxInt32

// KamletDirectory is the external collaborator S2/S3 talk to: the per-kamlet
// broadcast of entry parameters (spec §6.2). A real implementation fans
// kamletEntryReq out to every lane's jamlet and returns the common
// kamletEntryResp; this interface lets lane.go wire the real thing while
// tests substitute a single-lookup stub.
type KamletDirectory interface {
	EntryReq(id int)
	EntryResp(id int) (Params, bool)
}

// TLB resolves a virtual address to a physical one, reporting a page fault
// instead of a translation when the page isn't resident (spec §4.3 S8/S10).
type TLB interface {
	Translate(vaddr int) (paddr int, fault bool)
}

// SRAM is the per-lane cache port S13 reads from on the load side (spec
// §4.3 S13, §5 "SRAM has one port per lane").
type SRAM interface {
	Read(cacheSlot, addr int) uint64
}

// SyncNotifier is the Sync Coordinator as seen from one lane's pipeline
// (spec §4.3 S12/Phase 4, §4.4): faultReady/completeReady are pushed up,
// ApplyFaultSyncComplete/ApplyCompletionSyncComplete are pushed down by
// lane.go once the coordinator broadcasts.
type SyncNotifier interface {
	FaultReady(id, localMinFault int)
	CompleteReady(id int)
}

// stageData is the payload threaded through the fourteen inter-stage links.
// Not every field is meaningful at every stage; each stage function reads
// only the fields the stages before it populated (spec §9: "implement each
// stage as a pure function of the previous stage register plus per-stage
// external signals").
type stageData struct {
	valid bool
	id    int

	params    Params
	elemIndex int

	maskWord  uint64
	indexWord uint64
	maskBit   bool

	gAddr     int
	pageCross bool
	pAddr0    int
	fault0    bool
	pAddr1    int
	fault1    bool

	currentTag int
	nBytes     int
	startVline int
	endVline   int
	target     tagmap.PeerCoord

	data   uint64
	header packet.Header
}

// Pipeline is the 15-stage Witem Monitor pipeline (spec §4.3). Stage i's
// output sits in links[i-1] feeding stage i+1 (links[LinkS1S2] is S1's
// output, consumed by S2, and so on through links[LinkS14S15] feeding S15).
type Pipeline struct {
	cfg   config.Params
	table *Table

	dir  KamletDirectory
	tlb  TLB
	sram SRAM
	mask *regfile.Bank
	idx  *regfile.Bank
	data *regfile.Bank // source-of-truth for store data
	sync SyncNotifier
	out  *packet.OutChannel

	laneX, laneY int // this lane's position, for element-index/mem_vw computation

	links [config.LinkS14S15 + 1]*elastic.Link[stageData]

	// sendQueue holds store payloads in the order the Packet-Send RS issued
	// them (spec §4.2 "outgoing payloads must follow program order into
	// register 0"); S13 drains it FIFO.
	sendQueue []uint64
}

// PushSendPayload enqueues one Packet-Send RS issue's resolved value for
// S13 to consume on a store-type transfer, in issue order. The caller
// (lane.go's Cycle) pushes immediately after Issue() succeeds, before
// Step() advances the pipeline for that same cycle.
func (p *Pipeline) PushSendPayload(v uint64) {
	p.sendQueue = append(p.sendQueue, v)
}

// Deps groups the external collaborators a Pipeline needs (spec §1's
// "explicit non-goals ... specified only by the contracts consumed").
type Deps struct {
	Dir      KamletDirectory
	TLB      TLB
	SRAM     SRAM
	MaskBank *regfile.Bank
	IdxBank  *regfile.Bank
	DataBank *regfile.Bank
	Sync     SyncNotifier
	Out      *packet.OutChannel
	LaneX    int
	LaneY    int
}

// NewPipeline builds a Pipeline, instantiating one elastic.Link per stage
// transition using the buffering configured in cfg.Stages (spec §6.5).
func NewPipeline(cfg config.Params, table *Table, d Deps) *Pipeline {
	p := &Pipeline{
		cfg: cfg, table: table,
		dir: d.Dir, tlb: d.TLB, sram: d.SRAM,
		mask: d.MaskBank, idx: d.IdxBank, data: d.DataBank,
		sync: d.Sync, out: d.Out,
		laneX: d.LaneX, laneY: d.LaneY,
	}
	for i := range p.links {
		b := cfg.Stages[i]
		p.links[i] = elastic.NewLink[stageData](b.Forward, b.Backward)
	}
	return p
}

// laneLinear is this lane's row-major index within the jInL group (spec
// §4.6's "vw"/"ve" word-in-vline position), used both for S4's element
// index and for tagmap's VwToPeer.
func (p *Pipeline) laneLinear() int {
	return tagmap.PeerToVw(tagmap.PeerCoord{X: p.laneX, Y: p.laneY}, p.cfg.JCols)
}

// Step runs one cycle of the whole pipeline: every stage computes its output
// from what its input link presents (the committed register of a
// forward-buffered link, or the upstream stage's output from this same call
// for an unbuffered one), then every link commits together (spec §5
// "two-phase step"). With no forward registers configured, one Step carries
// an entry from S1 through S15.
func (p *Pipeline) Step() {
	// Every link is marked ready each cycle; no stage holds back its
	// upstream.
	for i := len(p.links) - 1; i >= 0; i-- {
		if i == len(p.links)-1 {
			p.links[i].SetReady(true) // S15 always accepts; it drains to the network
			continue
		}
		p.links[i].SetReady(true)
	}

	s1Out := p.stageS1()
	p.links[config.LinkS1S2].Send(s1Out.valid, s1Out)

	in, _ := p.links[config.LinkS1S2].Peek()
	out := p.stageS2(in)
	p.links[config.LinkS2S3].Send(out.valid, out)

	in, _ = p.links[config.LinkS2S3].Peek()
	out = p.stageS3(in)
	p.links[config.LinkS3S4].Send(out.valid, out)

	in, _ = p.links[config.LinkS3S4].Peek()
	out = p.stageS4(in)
	p.links[config.LinkS4S5].Send(out.valid, out)

	in, _ = p.links[config.LinkS4S5].Peek()
	p.links[config.LinkS5S6].Send(in.valid, in) // S5: latency shim

	in, _ = p.links[config.LinkS5S6].Peek()
	p.links[config.LinkS6S7].Send(in.valid, in) // S6: latch, no transform needed (already latched by link)

	in, _ = p.links[config.LinkS6S7].Peek()
	out = p.stageS7(in)
	p.links[config.LinkS7S8].Send(out.valid, out)

	in, _ = p.links[config.LinkS7S8].Peek()
	out = p.stageS8(in)
	p.links[config.LinkS8S9].Send(out.valid, out)

	in, _ = p.links[config.LinkS8S9].Peek()
	p.links[config.LinkS9S10].Send(in.valid, in) // S9: latency shim

	in, _ = p.links[config.LinkS9S10].Peek()
	out = p.stageS10(in)
	p.links[config.LinkS10S11].Send(out.valid, out)

	in, _ = p.links[config.LinkS10S11].Peek()
	out = p.stageS11(in)
	p.links[config.LinkS11S12].Send(out.valid, out)

	in, _ = p.links[config.LinkS11S12].Peek()
	out = p.stageS12(in)
	p.links[config.LinkS12S13].Send(out.valid, out)

	in, _ = p.links[config.LinkS12S13].Peek()
	out = p.stageS13(in)
	p.links[config.LinkS13S14].Send(out.valid, out)

	in, _ = p.links[config.LinkS13S14].Peek()
	p.links[config.LinkS14S15].Send(in.valid, in) // S14: latency shim

	in, _ = p.links[config.LinkS14S15].Peek()
	p.stageS15(in)

	for _, l := range p.links {
		l.Step()
	}
}

// stageS1 implements "pick oldest entry where valid ∧ readyForS1" (spec
// §4.3).
func (p *Pipeline) stageS1() stageData {
	e, ok := p.table.SelectForS1()
	if !ok {
		return stageData{}
	}
	return stageData{valid: true, id: e.InstrIdent}
}

// stageS2 sends kamletEntryReq(id); no data transform (spec §4.3).
func (p *Pipeline) stageS2(in stageData) stageData {
	if in.valid {
		p.dir.EntryReq(in.id)
	}
	return in
}

// stageS3 receives entry parameters and records them on the table entry
// (spec §4.3 "receive entry parameters").
func (p *Pipeline) stageS3(in stageData) stageData {
	if !in.valid {
		return in
	}
	params, ok := p.dir.EntryResp(in.id)
	if !ok {
		return in
	}
	in.params = params
	if e, ok := p.table.Get(in.id); ok {
		e.Params = params
		e.HasParams = true
	}
	return in
}

// stageS4 computes this lane's element index and issues the mask/index RF
// reads (spec §4.3 S4).
func (p *Pipeline) stageS4(in stageData) stageData {
	if !in.valid {
		return in
	}
	switch in.params.Type {
	case TypeJ2JLoad, TypeJ2JStore:
		in.elemIndex = p.laneLinear()
	default:
		in.elemIndex = in.params.StartIndex + p.laneLinear()
	}
	if in.params.MaskEnabled && p.mask != nil {
		v, _, _ := p.mask.Peek(in.params.MaskReg)
		in.maskWord = uint64(v)
	}
	if in.params.Type == TypeIndexedLoad || in.params.Type == TypeIndexedStore {
		if p.idx != nil {
			v, _, _ := p.idx.Peek(in.params.RegAddr)
			in.indexWord = uint64(v)
		}
	}
	return in
}

// stageS7 extracts the mask bit and computes the destination virtual
// address, detecting page crossing (spec §4.3 S7).
func (p *Pipeline) stageS7(in stageData) stageData {
	if !in.valid {
		return in
	}
	if in.params.MaskEnabled {
		in.maskBit = (in.maskWord>>uint(in.elemIndex%64))&1 != 0
	} else {
		in.maskBit = true
	}

	switch in.params.Type {
	case TypeStridedLoad, TypeStridedStore:
		in.gAddr = in.params.BaseAddr + in.elemIndex*in.params.Stride
	case TypeIndexedLoad, TypeIndexedStore:
		in.gAddr = in.params.BaseAddr + int(in.indexWord)
	default:
		in.gAddr = in.params.BaseAddr
	}

	elemBytes := in.params.MemEW / 8
	if elemBytes == 0 {
		elemBytes = 1
	}
	pageStart := in.gAddr / p.cfg.PageBytes
	pageEnd := (in.gAddr + elemBytes - 1) / p.cfg.PageBytes
	in.pageCross = pageStart != pageEnd
	return in
}

// stageS8 issues the TLB request(s) (spec §4.3 S8). The spec models a page
// crossing as stalling S7 for a second TLB request on the next cycle; this
// simulator instead resolves both halves combinationally in the same
// stageData since no later stage depends on the one-cycle stall itself, only
// on having both translations available by S10.
func (p *Pipeline) stageS8(in stageData) stageData {
	if !in.valid || p.tlb == nil {
		return in
	}
	in.pAddr0, in.fault0 = p.tlb.Translate(in.gAddr)
	if in.pageCross {
		nextPage := ((in.gAddr / p.cfg.PageBytes) + 1) * p.cfg.PageBytes
		in.pAddr1, in.fault1 = p.tlb.Translate(nextPage)
	}
	return in
}

// stageS10 latches the translation(s) and records localMinFault (spec §4.3
// S10).
func (p *Pipeline) stageS10(in stageData) stageData {
	if !in.valid {
		return in
	}
	if in.fault0 || in.fault1 {
		e, ok := p.table.Get(in.id)
		if ok {
			if !e.HasFault || in.elemIndex < e.LocalMinFault {
				e.LocalMinFault = in.elemIndex
			}
			e.HasFault = true
		}
	}
	return in
}

// stageS11 performs the tag-bound iteration (spec §4.3 S11, §4.6): it calls
// the tag-mapping calculator, batch-completes tags the computed nBytes
// skips over, and advances the entry's currentTag cursor.
func (p *Pipeline) stageS11(in stageData) stageData {
	if !in.valid {
		return in
	}
	e, ok := p.table.Get(in.id)
	if !ok {
		return in
	}

	switch in.params.Type {
	case TypeJ2JLoad, TypeJ2JStore:
		elementsPerVline := p.cfg.ElementsPerVline(in.params.RegEW)
		b := tagmap.ComputeMemTagBounds(
			e.CurrentTag, in.params.MemEW, in.params.RegEW, p.cfg.JInL,
			p.laneLinear(), in.params.BaseAddr, in.params.StartIndex,
			in.params.NElements, elementsPerVline,
		)
		markBatch(e, e.CurrentTag, b.NBytes, b.Active, true, e.HasFault)
		in.nBytes, in.startVline, in.endVline = b.NBytes, b.StartVline, b.EndVline
		in.target = tagmap.VwToPeer(b.FarVw, p.cfg.JCols)
		in.currentTag = e.CurrentTag
		e.CurrentTag += maxInt(b.NBytes, 1)
	default:
		elemBytes := in.params.MemEW / 8
		byteStart := in.gAddr % p.cfg.WordBytes
		active, nBytes := tagmap.ComputeTagInfo(e.CurrentTag, byteStart, elemBytes, p.cfg.WordBytes)
		isSend := in.params.Type == TypeStridedStore || in.params.Type == TypeIndexedStore
		markBatch(e, e.CurrentTag, nBytes, active, isSend, e.HasFault)
		in.nBytes = nBytes
		in.currentTag = e.CurrentTag
		e.CurrentTag += maxInt(nBytes, 1)
	}
	return in
}

// markBatch advances every tag in [currentTag, currentTag+nBytes) to
// COMPLETE except the active one (if isSend, the active tag moves to
// NEED_TO_SEND so S12/S15 still process it, or to WAITING_IN_CASE_FAULT
// when hasFault holds the tag pending the fault-sync barrier instead; spec
// §4.3 "tags strictly between currentTag and currentTag+nBytes are
// batch-completed", Phase 1 "every tag that must wait on a fault decision
// enters WAITING_IN_CASE_FAULT").
func markBatch(e *Entry, currentTag, nBytes int, active, isSend, hasFault bool) {
	if nBytes <= 0 {
		nBytes = 1
	}
	for k := currentTag; k < currentTag+nBytes && k < len(e.Tags); k++ {
		if k == currentTag && active {
			if isSend {
				if hasFault {
					e.Tags[k].Send = SendWaitingInCaseFault
				} else {
					e.Tags[k].Send = SendNeedToSend
				}
			}
			continue
		}
		e.Tags[k].Send = SendComplete
	}
}

// stageS12 asserts faultReady and clears readyForS1 once the tag cursor has
// exhausted the word (spec §4.3 S12, Phase 1). The J2J target peer is
// already computed by stageS11; this stage does no vline iteration of its
// own.
func (p *Pipeline) stageS12(in stageData) stageData {
	if !in.valid {
		return in
	}
	e, ok := p.table.Get(in.id)
	if !ok {
		return in
	}
	if e.CurrentTag >= p.cfg.WordBytes && !e.FaultSignaled {
		e.FaultSignaled = true
		e.ReadyForS1 = false
		localMinFault := noFaultReported
		if e.HasFault {
			localMinFault = e.LocalMinFault
		}
		logging.Debug("fault sync: witem exhausted tags", "id", in.id, "localMinFault", localMinFault)
		if p.sync != nil {
			p.sync.FaultReady(in.id, localMinFault)
		}
	}
	return in
}

// stageS13 issues the SRAM read (load-from-cache) or RF read (store) and
// builds the outgoing header (spec §4.3 S13). Store data comes off
// sendQueue, the FIFO the Packet-Send RS's in-order Issue feeds via
// PushSendPayload: that RS exists precisely so outgoing payloads follow
// program order into register 0 (spec §4.2), so S13 must consume its
// Resolved output rather than peek the data bank out of band. A direct
// Peek remains as a fallback for callers that drive the pipeline without a
// Packet-Send RS wired up (e.g. unit tests).
func (p *Pipeline) stageS13(in stageData) stageData {
	if !in.valid {
		return in
	}
	switch in.params.Type {
	case TypeStridedStore, TypeIndexedStore, TypeJ2JStore:
		if len(p.sendQueue) > 0 {
			in.data = p.sendQueue[0]
			p.sendQueue = p.sendQueue[1:]
		} else if p.data != nil {
			v, _, _ := p.data.Peek(in.params.RegAddr)
			in.data = uint64(v)
		}
	default:
		if p.sram != nil {
			in.data = p.sram.Read(in.params.CacheSlot, in.pAddr0)
		}
	}

	in.header = packet.Header{
		Length:      1,
		XDest:       in.target.X,
		YDest:       in.target.Y,
		Mode:        packet.ModeNormal,
		Forward:     false,
		IsBroadcast: false,
	}
	return in
}

// stageS15 emits the header and data word(s) through the outgoing packet
// channel, and on the last word transitions srcState to
// WAITING_FOR_RESPONSE (spec §4.3 S15). A tag parked in
// WAITING_IN_CASE_FAULT must not go out before the fault-sync barrier
// resolves it (spec §4.3 Phase 1): only NEED_TO_SEND tags are actually
// emitted here.
func (p *Pipeline) stageS15(in stageData) {
	if !in.valid || p.out == nil {
		return
	}
	e, ok := p.table.Get(in.id)
	if !ok || in.currentTag >= len(e.Tags) || e.Tags[in.currentTag].Send != SendNeedToSend {
		return
	}
	if !p.out.Ready() {
		return
	}
	p.out.Send(packet.Word{IsHeader: true, Header: in.header})
	p.out.Send(packet.Word{Data: in.data})
	e.Tags[in.currentTag].Send = SendWaitingForResponse
}

// ApplyFaultSyncComplete implements Phase 2 of spec §4.3: every tag in
// WAITING_IN_CASE_FAULT with element_index ≥ globalMinFault becomes
// COMPLETE; otherwise NEED_TO_SEND. If any becomes NEED_TO_SEND,
// readyForS1 is set again so Phase 3 (S11-S15 re-engage) can run.
func (p *Pipeline) ApplyFaultSyncComplete(id, globalMinFault int) {
	e, ok := p.table.Get(id)
	if !ok {
		return
	}
	// This lane's element index, computed the same way stageS4 does.
	elemIndex := p.laneLinear()
	if e.Params.Type != TypeJ2JLoad && e.Params.Type != TypeJ2JStore {
		elemIndex += e.Params.StartIndex
	}
	anyResend := false
	for i := range e.Tags {
		if e.Tags[i].Send != SendWaitingInCaseFault {
			continue
		}
		if elemIndex >= globalMinFault {
			e.Tags[i].Send = SendComplete
		} else {
			e.Tags[i].Send = SendNeedToSend
			anyResend = true
		}
	}
	if anyResend {
		e.ReadyForS1 = true
		e.CurrentTag = 0
	}
	logging.Debug("fault sync complete applied", "id", id, "globalMinFault", globalMinFault, "resend", anyResend)
}

// ApplyCompletionSyncComplete implements Phase 4 of spec §4.3: emits
// witemComplete to the instruction issuer once the completion sync for id
// has resolved. notify is called with id when the entry is now externally
// observable as complete.
func (p *Pipeline) ApplyCompletionSyncComplete(id int, notify func(id int)) {
	e, ok := p.table.Get(id)
	if !ok {
		return
	}
	e.CompletionSynced = true
	if notify != nil {
		notify(id)
	}
}

// CheckCompleteReady scans for entries whose tags are all COMPLETE but
// haven't yet signalled completeReady, and raises it (spec §4.3 Phase 4
// "when all tags are COMPLETE, raise completeReady(id)").
func (p *Pipeline) CheckCompleteReady() {
	if p.sync == nil {
		return
	}
	for _, id := range p.table.IDs() {
		e, _ := p.table.Get(id)
		if e.CompleteSignaled {
			continue
		}
		if e.IsComplete() {
			e.CompleteSignaled = true
			logging.Debug("witem all tags complete", "id", id)
			p.sync.CompleteReady(id)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
