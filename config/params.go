// Package config holds the parameter record for one amlet/jamlet core.
//
// There is no loader here on purpose: configuration loading, generator
// wiring, and top-level mesh composition are external collaborators
// (spec §1). Callers build a Params value however they like (flags, a YAML
// file, a generator) and hand it to the constructors in the other packages.
package config

import "github.com/pkg/errors"

// StageLink names one of the fourteen adjacent-stage transitions in the
// Witem Monitor pipeline (S1_S2 .. S14_S15).
type StageLink int

const (
	LinkS1S2 StageLink = iota
	LinkS2S3
	LinkS3S4
	LinkS4S5
	LinkS5S6
	LinkS6S7
	LinkS7S8
	LinkS8S9
	LinkS9S10
	LinkS10S11
	LinkS11S12
	LinkS12S13
	LinkS13S14
	LinkS14S15
	numStageLinks
)

// PipelineBuffering controls whether a forward-data register and/or a
// backward-ready register is inserted at one stage transition (spec §4.3,
// §6.5). Both default to false (fully combinational, no elastic register)
// when a caller builds the zero value, matching the teacher's own default of
// "no pipeline register unless asked for one".
type PipelineBuffering struct {
	Forward  bool
	Backward bool
}

// Params is the parameter record described in spec §6.5.
type Params struct {
	// Widths
	Width             int // D-reg width
	AWidth            int // A-reg width
	PacketLengthWidth int
	XPosWidth         int
	YPosWidth         int

	// Sizes
	NDRegs          int
	NARegs          int
	NPRegs          int
	NDTags          int
	NATags          int
	NPTags          int
	DataMemoryDepth int
	WordBytes       int
	VlineBytes      int
	PageBytes       int

	// RS slot counts, one per unit.
	RSAluSlots        int
	RSLsuSlots        int
	RSPacketSendSlots int
	RSPacketRecvSlots int
	RSPredicateSlots  int

	// Pipeline buffering per stage transition (§4.3, §6.5).
	Stages [numStageLinks]PipelineBuffering

	// Geometry
	JCols int
	JRows int
	KCols int
	KRows int
	JInL  int
	JInK  int

	// MaxSyncTags unifies the two names the source uses for the same value
	// (spec §9 Open Question: "maxTags" in one place, "maxResponseTags" in
	// another) — the cap on outstanding fault/completion sync identifiers
	// live at once for one kamlet group.
	MaxSyncTags int
}

// Validate checks the handful of structural invariants the rest of the
// packages assume. It is the only thing this package does besides hold
// data — there is no loader to validate a parsed file against.
func (p Params) Validate() error {
	if p.Width <= 0 || p.AWidth <= 0 {
		return errors.New("config: width and aWidth must be positive")
	}
	if p.NDTags <= 0 || p.NATags <= 0 || p.NPTags <= 0 {
		return errors.New("config: tag counts must be positive")
	}
	if p.WordBytes <= 0 || p.VlineBytes <= 0 || p.PageBytes <= 0 {
		return errors.New("config: wordBytes, vlineBytes and pageBytes must be positive")
	}
	if p.VlineBytes%p.WordBytes != 0 {
		return errors.Errorf("config: vlineBytes (%d) must be a multiple of wordBytes (%d)", p.VlineBytes, p.WordBytes)
	}
	if p.PageBytes%p.VlineBytes != 0 {
		return errors.Errorf("config: pageBytes (%d) must be a multiple of vlineBytes (%d)", p.PageBytes, p.VlineBytes)
	}
	if p.JInL <= 0 {
		return errors.New("config: jInL must be positive")
	}
	if p.MaxSyncTags <= 0 {
		return errors.New("config: maxSyncTags must be positive")
	}
	for _, n := range []struct {
		name string
		v    int
	}{
		{"rsAluSlots", p.RSAluSlots},
		{"rsLsuSlots", p.RSLsuSlots},
		{"rsPacketSendSlots", p.RSPacketSendSlots},
		{"rsPacketRecvSlots", p.RSPacketRecvSlots},
		{"rsPredicateSlots", p.RSPredicateSlots},
	} {
		if n.v <= 0 {
			return errors.Errorf("config: %s must be positive", n.name)
		}
	}
	return nil
}

// ElementsPerVline is elements_per_vline from spec §4.6: the number of
// elements of width elementWidth (bits) that fit in one vline.
func (p Params) ElementsPerVline(elementWidth int) int {
	return (p.VlineBytes * 8) / elementWidth
}
