package tagged

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagNextWrapsModuloWidth(t *testing.T) {
	var tag Tag = 3
	require.EqualValues(t, 0, tag.Next(4))
	require.EqualValues(t, 4, tag.Next(8))
}

func TestPendingSetClearIsSet(t *testing.T) {
	var p Pending
	require.False(t, p.IsSet(2))
	p.Set(2)
	require.True(t, p.IsSet(2))
	require.False(t, p.IsSet(3))
	p.Clear(2)
	require.False(t, p.IsSet(2))
}

func TestResolvedSourceIsImmediatelyResolved(t *testing.T) {
	ts := Resolved(42)
	require.True(t, ts.Resolved)
	require.EqualValues(t, 42, ts.Value)
}

func TestUnresolvedSourceUpdatesOnlyOnExactMatch(t *testing.T) {
	ts := Unresolved(BankD, 5, 2)

	ts.Update(BankA, 5, 2, 99)
	require.False(t, ts.Resolved, "wrong bank must not resolve")

	ts.Update(BankD, 6, 2, 99)
	require.False(t, ts.Resolved, "wrong addr must not resolve")

	ts.Update(BankD, 5, 3, 99)
	require.False(t, ts.Resolved, "wrong tag must not resolve")

	ts.Update(BankD, 5, 2, 77)
	require.True(t, ts.Resolved)
	require.EqualValues(t, 77, ts.Value)

	ts.Update(BankD, 5, 2, 1000)
	require.EqualValues(t, 77, ts.Value, "already-resolved source must not change")
}
