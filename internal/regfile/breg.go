package regfile

import "github.com/benreynwar/zamlet-sub002/internal/tagged"

// BReg is the unified A+D address space of spec §3.1: "its top bit selects
// the bank". A and D remain physically separate banks (§4.7 "Multi-bank: A
// and D banks are separate modules"); BReg reads multiplex at the caller
// using the top bit, which is exactly what BSplit below does.
//
// bWidth is the width of the B-reg address space, one bit wider than the
// larger of the two banks' index space so the top bit is free to select.
func BSplit(bAddr int, bWidth int) (bank tagged.Bank, index int) {
	topBit := 1 << uint(bWidth-1)
	if bAddr&topBit != 0 {
		return tagged.BankD, bAddr &^ topBit
	}
	return tagged.BankA, bAddr
}

// BJoin is the inverse of BSplit, used by producers that need to address the
// unified space (e.g. building a resbus.Write for a B-reg destination).
func BJoin(bank tagged.Bank, index int, bWidth int) int {
	if bank == tagged.BankD {
		return index | (1 << uint(bWidth-1))
	}
	return index
}
