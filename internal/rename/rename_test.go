package rename

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/benreynwar/zamlet-sub002/internal/regfile"
	"github.com/benreynwar/zamlet-sub002/internal/resbus"
	"github.com/benreynwar/zamlet-sub002/internal/rs"
	"github.com/benreynwar/zamlet-sub002/internal/tagged"
)

func buildUnit(t *testing.T) (*Unit, map[rs.Kind]*rs.Station, *regfile.Bank) {
	t.Helper()
	ab := regfile.NewBuilder(tagged.BankA, 8, 4, 0)
	aRead := ab.MakeReadPort()
	aWrite := ab.MakeWritePort()
	aBank := ab.Build()

	db := regfile.NewBuilder(tagged.BankD, 8, 4, 0)
	dRead := db.MakeReadPort()
	dWrite := db.MakeWritePort()
	dBank := db.Build()

	pb := regfile.NewBuilder(tagged.BankP, 8, 4, 1)
	pRead := pb.MakeReadPort()
	pWrite := pb.MakeWritePort()
	pBank := pb.Build()

	stations := map[rs.Kind]*rs.Station{
		rs.KindALU:       rs.New(rs.KindALU, 4, false, false),
		rs.KindLSU:       rs.New(rs.KindLSU, 4, false, false),
		rs.KindPredicate: rs.New(rs.KindPredicate, 4, false, false),
	}

	u := New(
		Banks{A: aBank, D: dBank, P: pBank},
		stations,
		map[tagged.Bank]regfile.ReadPortID{tagged.BankA: aRead, tagged.BankD: dRead, tagged.BankP: pRead},
		map[tagged.Bank]regfile.WritePortID{tagged.BankA: aWrite, tagged.BankD: dWrite, tagged.BankP: pWrite},
		4,
	)
	return u, stations, dBank
}

func TestAcceptEnqueuesOneResolvingPerSlot(t *testing.T) {
	u, stations, _ := buildUnit(t)

	b := Bundle{}
	b.Slots[0] = Slot{
		Valid: true, Unit: rs.KindALU,
		Dst: RegOperand{Bank: tagged.BankD, Index: 1}, HasDst: true,
		Src1: RegOperand{Bank: tagged.BankD, Index: 0},
		Src2: RegOperand{Bank: tagged.BankD, Index: 0},
		UseImm: true, Imm: 7,
		PredAlways: true,
	}

	out := u.Accept(b)
	require.Equal(t, Accepted, out.Kind)
	require.Equal(t, 1, stations[rs.KindALU].Occupancy())
}

func TestAcceptStallsOnRSBeforeTouchingTags(t *testing.T) {
	u, stations, dBank := buildUnit(t)
	// Fill RS-ALU to capacity so the incoming bundle can't be accepted.
	for stations[rs.KindALU].CanEnqueue() {
		require.NoError(t, stations[rs.KindALU].Enqueue(rs.Resolving{PredAlways: true, Op1: tagged.Resolved(0), Op2: tagged.Resolved(0)}))
	}

	b := Bundle{}
	b.Slots[0] = Slot{
		Valid: true, Unit: rs.KindALU,
		Dst: RegOperand{Bank: tagged.BankD, Index: 2}, HasDst: true,
		Src1: RegOperand{Bank: tagged.BankD, Index: 0},
		Src2: RegOperand{Bank: tagged.BankD, Index: 0},
		UseImm: true, Imm: 1,
		PredAlways: true,
	}

	out := u.Accept(b)
	require.Equal(t, StalledOnRS, out.Kind)
	require.Equal(t, rs.KindALU, out.Unit)

	_, pending, _ := dBank.Peek(2)
	require.EqualValues(t, 0, pending, "a stalled cycle must make no register-file state changes")
}

func TestAcceptStallsOnTagRecycleAndMakesNoChanges(t *testing.T) {
	u, _, dBank := buildUnit(t)

	// Exhaust all 4 tags on D-reg index 3 by dispatching writes without
	// ever resolving them on the result bus.
	for i := 0; i < 4; i++ {
		b := Bundle{}
		b.Slots[0] = Slot{
			Valid: true, Unit: rs.KindALU,
			Dst: RegOperand{Bank: tagged.BankD, Index: 3}, HasDst: true,
			Src1: RegOperand{Bank: tagged.BankD, Index: 0},
			Src2: RegOperand{Bank: tagged.BankD, Index: 0},
			UseImm: true, Imm: tagged.Value(i),
			PredAlways: true,
		}
		out := u.Accept(b)
		require.Equal(t, Accepted, out.Kind)
	}

	valueBefore, pendingBefore, lastBefore := dBank.Peek(3)

	b := Bundle{}
	b.Slots[0] = Slot{
		Valid: true, Unit: rs.KindALU,
		Dst: RegOperand{Bank: tagged.BankD, Index: 3}, HasDst: true,
		Src1: RegOperand{Bank: tagged.BankD, Index: 0},
		Src2: RegOperand{Bank: tagged.BankD, Index: 0},
		UseImm: true, Imm: 99,
		PredAlways: true,
	}
	out := u.Accept(b)
	require.Equal(t, StalledOnTag, out.Kind)
	require.Equal(t, tagged.BankD, out.Bank)
	require.Equal(t, 3, out.Addr)

	valueAfter, pendingAfter, lastAfter := dBank.Peek(3)
	require.Equal(t, valueBefore, valueAfter)
	require.Equal(t, pendingBefore, pendingAfter)
	require.Equal(t, lastBefore, lastAfter)
}

func TestControlSlotWritesLoopRegSameCycle(t *testing.T) {
	u, _, _ := buildUnit(t)

	b := Bundle{}
	b.Slots[0] = Slot{Valid: true, IsControl: true, LoopIdx: 2, Imm: 11}
	out := u.Accept(b)
	require.Equal(t, Accepted, out.Kind)
	require.EqualValues(t, 11, u.loopRegs[2])
}

func TestSnoopPropagatesToAllThreeBanks(t *testing.T) {
	u, _, dBank := buildUnit(t)

	b := Bundle{}
	b.Slots[0] = Slot{
		Valid: true, Unit: rs.KindALU,
		Dst: RegOperand{Bank: tagged.BankD, Index: 4}, HasDst: true,
		Src1: RegOperand{Bank: tagged.BankD, Index: 0},
		Src2: RegOperand{Bank: tagged.BankD, Index: 0},
		UseImm: true, Imm: 3,
		PredAlways: true,
	}
	u.Accept(b)
	_, _, tag := dBank.Peek(4)

	var bus resbus.Builder
	bus.Add(resbus.Write{Bank: tagged.BankD, Addr: 4, Tag: tag, Value: 3})
	u.Snoop(bus.Build())

	value, pending, _ := dBank.Peek(4)
	require.EqualValues(t, 3, value)
	require.False(t, pending.IsSet(tag))
}
