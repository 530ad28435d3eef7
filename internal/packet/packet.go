// Package packet implements the wire format and per-cycle valid/ready
// channel of spec §6.2/§6.3: the kamlet entry exchange, the outgoing packet
// channel's header layout, and the message shapes RxCh0/RxCh1 consume.
//
// Grounded on the teacher's step-scheduled register model
// (Maemo32-SupraX_Legacy/SupraX.go), applied to this spec's positional
// header fields instead of the teacher's SuperH instruction word. The
// outgoing channel is a word queue drained one word per call, not an
// internal/elastic register pair.
package packet

// Mode is the header's mode enum (spec §6.3).
type Mode int

const (
	ModeNormal Mode = iota
	ModeCommand
	ModeAppend
	ModeReserved
)

// Header is the bit-exact, positional layout of spec §6.3. Field widths
// (packetLengthWidth, xPosWidth, yPosWidth) are enforced by the caller
// against config.Params; Header itself just carries the values.
type Header struct {
	Length       int
	XDest        int
	YDest        int
	Mode         Mode
	Forward      bool
	IsBroadcast  bool
	AppendLength int
}

// Word is one cycle's payload on the outgoing packet channel: either the
// header or one data/address word (spec §6.3 "Request messages: header,
// optional address word, zero or one data word").
type Word struct {
	IsHeader bool
	Header   Header
	Data     uint64
}

// Status distinguishes an ordinary response from the two protocol error
// variants (spec §6.3, §7).
type Status int

const (
	StatusOK Status = iota
	StatusDrop
	StatusRetry
)

// Kind names the request/response message family RxCh0/RxCh1 dispatch on
// (spec §4.5).
type Kind int

const (
	KindLoadWord Kind = iota
	KindStoreWord
)

// Req is one request message arriving on Ch1 (spec §4.5 RxCh1).
type Req struct {
	ID     int
	Tag    int
	Kind   Kind
	Masked bool
	Data   uint64
}

// Resp is one response message arriving on Ch0 (spec §4.5 RxCh0), or
// emitted by RxCh1 back to the sender.
type Resp struct {
	ID     int
	Tag    int
	Kind   Kind
	Status Status
	Data   uint64
}

// EntryParams is the kamletEntryResp record of spec §6.2.
type EntryParams struct {
	Type         int
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

// OutChannel is the Ch1 arbiter contract of spec §6.3: per cycle at most one
// word, with standard ready/valid backpressure. It is its own FIFO of queued
// words plus a consumer-ready flag; it does not use elastic.Link, and it has
// no configurable forward/backward registers.
type OutChannel struct {
	pending    []Word
	downsReady bool
}

// NewOutChannel builds an empty channel.
func NewOutChannel() *OutChannel {
	return &OutChannel{}
}

// Send enqueues a word to be drained by the consumer. The caller is expected
// to have checked Ready() first; Send does not itself enforce backpressure
// so that S15's "build then flush" loop can queue a whole header+data burst
// and let the channel meter it out one word per cycle.
func (c *OutChannel) Send(w Word) {
	c.pending = append(c.pending, w)
}

// Ready reports whether the consumer can currently accept a word.
func (c *OutChannel) Ready() bool {
	return c.downsReady
}

// SetConsumerReady is driven by the downstream consumer each cycle.
func (c *OutChannel) SetConsumerReady(ready bool) {
	c.downsReady = ready
}

// Pending reports how many words are queued but not yet drained.
func (c *OutChannel) Pending() int {
	return len(c.pending)
}

// Drain pops the next queued word if the consumer is ready.
func (c *OutChannel) Drain() (Word, bool) {
	if !c.downsReady || len(c.pending) == 0 {
		return Word{}, false
	}
	w := c.pending[0]
	c.pending = c.pending[1:]
	return w, true
}
