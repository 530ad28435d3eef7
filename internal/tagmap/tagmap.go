// Package tagmap implements the Tag Mapping Calculator of spec §4.6: pure
// functions mapping memory/register tags into byte counts, target peers, and
// vline ranges. Every function here is a pure function of its arguments —
// no package-level state, per spec §9 ("Global mutable state: None").
//
// The geometry (spec §4.6): each lane owns wordBytes bytes of a memory word;
// jInL lanes participate in one word; elementsPerVline =
// vlineBytes*8/elementWidth.
package tagmap

// PeerCoord is a position in the jamlet mesh (spec §4.6/§6.3 xDest/yDest).
type PeerCoord struct {
	X int
	Y int
}

// VwToPeer decodes a word-in-vline lane index into mesh coordinates,
// row-major over jCols columns. Verified against spec §8 scenario 1: lane
// (j_x=2, j_y=1) with jCols=4 has linear index vw = y*jCols+x = 6, and the
// inverse (VwToPeer(4, 4) == {0,1}) reproduces the scenario's expected
// target (0,1) for the register-side word index 4 computed there.
func VwToPeer(vw, jCols int) PeerCoord {
	return PeerCoord{X: vw % jCols, Y: vw / jCols}
}

// PeerToVw is the inverse of VwToPeer.
func PeerToVw(p PeerCoord, jCols int) int {
	return p.Y*jCols + p.X
}

// Bounds is the (active, nBytes, startVline, endVline, vOffset) tuple spec
// §4.6 returns from computeMemTagBounds/computeRegTagBounds, plus the
// computed word-in-vline index on the far side (regVw/memVw) so S12 can
// feed it straight to VwToPeer without recomputing the bit algebra.
type Bounds struct {
	Active     bool
	NBytes     int
	StartVline int
	EndVline   int
	VOffset    int
	FarVw      int // the other side's word-in-vline index for this tag
}

// ComputeMemTagBounds implements spec §4.6 exactly. All arguments and the
// returned tuple use the bit-for-bit algebra documented there; verified
// against spec §8 scenario 1 (LoadJ2JWords single vline): with memEW=regEW=32,
// jInL=16, memVw=6, baseBitAddr=64, startIndex=0, nElements=32,
// elementsPerVline=32, ComputeMemTagBounds(0, ...) and (4, ...) both return
// NBytes=4, Active=true, FarVw=4 (which VwToPeer(4,4) maps to (0,1), the
// scenario's expected target).
func ComputeMemTagBounds(memTag, memEW, regEW, jInL, memVw, baseBitAddr, startIndex, nElements, elementsPerVline int) Bounds {
	memWb := memTag * 8
	memEb := memWb % memEW
	memVe := (memWb/memEW)*jInL + memVw

	memBitInVline := memVe*memEW + memEb
	regBit := memBitInVline - baseBitAddr

	regEb := mod(regBit, regEW)
	regVw := mod(regBit/regEW, jInL)
	regVe := floordiv(regBit, regEW)

	nBytes := minInt(memEW-memEb, regEW-regEb) / 8

	startRegVline := startIndex / elementsPerVline
	endRegVline := (startIndex + nElements - 1) / elementsPerVline

	active := false
	for v := startRegVline; v <= endRegVline; v++ {
		e := regVe + v*elementsPerVline
		if e >= startIndex && e < startIndex+nElements {
			active = true
			break
		}
	}

	vOffset := 0
	if memBitInVline < baseBitAddr {
		vOffset = 1
	}

	return Bounds{
		Active:     active,
		NBytes:     nBytes,
		StartVline: startRegVline,
		EndVline:   endRegVline,
		VOffset:    vOffset,
		FarVw:      regVw,
	}
}

// ComputeRegTagBounds is computeMemTagBounds run in the opposite direction
// (spec §4.6: "follow the same algebra"): the register side now provides
// the iterated tag and the memory side is derived, with baseBitAddr added
// instead of subtracted since the subtraction in ComputeMemTagBounds is
// exactly undone when walking reg→mem.
func ComputeRegTagBounds(regTag, regEW, memEW, jInL, regVw, baseBitAddr, startIndex, nElements, elementsPerVline int) Bounds {
	regWb := regTag * 8
	regEb := regWb % regEW
	regVe := (regWb/regEW)*jInL + regVw

	regBitInVline := regVe*regEW + regEb
	memBit := regBitInVline + baseBitAddr

	memEb := mod(memBit, memEW)
	memVw := mod(memBit/memEW, jInL)
	memVe := floordiv(memBit, memEW)

	nBytes := minInt(regEW-regEb, memEW-memEb) / 8

	startMemVline := startIndex / elementsPerVline
	endMemVline := (startIndex + nElements - 1) / elementsPerVline

	active := false
	for v := startMemVline; v <= endMemVline; v++ {
		e := memVe + v*elementsPerVline
		if e >= startIndex && e < startIndex+nElements {
			active = true
			break
		}
	}

	vOffset := 0
	if regBitInVline < baseBitAddr {
		vOffset = 1
	}

	return Bounds{
		Active:     active,
		NBytes:     nBytes,
		StartVline: startMemVline,
		EndVline:   endMemVline,
		VOffset:    vOffset,
		FarVw:      memVw,
	}
}

// ComputeMemTagTarget resolves the mesh peer a given bounds computation
// should send to, from the far-side (register-side) word-in-vline index
// (spec §4.3 S12 "computeMemTagTarget").
func ComputeMemTagTarget(b Bounds, jCols int) PeerCoord {
	return VwToPeer(b.FarVw, jCols)
}

// ComputeRegTagTarget is the same resolution starting from a
// ComputeRegTagBounds result (spec §4.3 S12 "computeRegTagTarget").
func ComputeRegTagTarget(b Bounds, jCols int) PeerCoord {
	return VwToPeer(b.FarVw, jCols)
}

// ComputeTagInfo is the single-element-per-lane tag-bounds function spec §4.3
// S11 uses for strided/indexed transfers, where "n_elements ≤ j_in_l, so
// exactly one element per lane" (spec §4.3): no vline iteration is needed,
// just whether byte position currentTag (0..wordBytes-1) falls inside the
// one element this lane owns, and how many bytes the resulting transfer
// covers before the next boundary.
//
// Verified against spec §8 scenario 2 (StoreStride single element):
// elementByteStart=0 (dst_g_addr=0x1600 is word-aligned), elementByteWidth=4,
// wordBytes=8. ComputeTagInfo(0, 0, 4, 8) returns (true, 4): tag 0 emits
// with nBytes=4. ComputeTagInfo(4, 0, 4, 8) returns (false, 4): tags 4-7
// batch-complete as out-of-element.
func ComputeTagInfo(currentTag, elementByteStart, elementByteWidth, wordBytes int) (active bool, nBytes int) {
	elementByteEnd := elementByteStart + elementByteWidth
	switch {
	case currentTag < elementByteStart:
		return false, elementByteStart - currentTag
	case currentTag < elementByteEnd:
		return true, elementByteEnd - currentTag
	default:
		return false, wordBytes - currentTag
	}
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func floordiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
