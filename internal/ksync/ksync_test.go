package ksync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFaultReadyWaitsForAllPeersThenEmitsLocalEvent(t *testing.T) {
	c := NewCoordinator(3, 16)

	c.FaultReady(5, 0, 10)
	c.FaultReady(5, 1, 4)
	require.Empty(t, c.DrainLocalEvents(), "only 2 of 3 peers reported")

	c.FaultReady(5, 2, 7)
	events := c.DrainLocalEvents()
	require.Len(t, events, 1)
	require.Equal(t, 5, events[0].ID)
	require.Equal(t, PhaseFault, events[0].Phase)
	require.Equal(t, 4, events[0].Value, "localMinFault is the running min across all peer reports")

	r, ok := c.Row(5)
	require.True(t, ok)
	require.Equal(t, Waiting, r.State)
}

func TestFaultReadyOnlyEmitsOnceWhenAllReady(t *testing.T) {
	c := NewCoordinator(2, 16)
	c.FaultReady(1, 0, 1)
	c.FaultReady(1, 1, 1)
	require.Len(t, c.DrainLocalEvents(), 1)

	// A redundant re-report after the row is already Waiting must not
	// re-queue another local event.
	c.FaultReady(1, 0, 1)
	require.Empty(t, c.DrainLocalEvents())
}

func TestCompleteReadyUsesDisjointIdentifierFromFault(t *testing.T) {
	c := NewCoordinator(2, 16)
	c.CompleteReady(5, 0)
	c.CompleteReady(5, 1)

	events := c.DrainLocalEvents()
	require.Len(t, events, 1)
	require.Equal(t, 6, events[0].ID, "completion phase uses (id+1) mod maxSyncTags")
	require.Equal(t, PhaseCompletion, events[0].Phase)

	_, ok := c.Row(5)
	require.False(t, ok, "fault-phase row for id 5 was never touched")
	_, ok = c.Row(6)
	require.True(t, ok)
}

func TestCompletionIdentifierWrapsModuloMaxSyncTags(t *testing.T) {
	c := NewCoordinator(1, 4)
	c.CompleteReady(3, 0)
	_, ok := c.Row(0)
	require.True(t, ok, "(3+1) mod 4 == 0")
}

func TestSyncCompleteBroadcastsGlobalMinAndClosesRow(t *testing.T) {
	c := NewCoordinator(1, 16)
	c.FaultReady(2, 0, 9)
	require.Len(t, c.DrainLocalEvents(), 1)

	err := c.SyncComplete(2, 3)
	require.NoError(t, err)

	broadcasts := c.DrainBroadcasts()
	require.Len(t, broadcasts, 1)
	require.Equal(t, 2, broadcasts[0].ID)
	require.Equal(t, 3, broadcasts[0].GlobalMinFault)

	r, ok := c.Row(2)
	require.True(t, ok)
	require.Equal(t, Complete, r.State)
}

func TestSyncCompleteOnUnknownIDErrors(t *testing.T) {
	c := NewCoordinator(1, 16)
	err := c.SyncComplete(99, 0)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnknownID)
}

func TestOutstandingCountExcludesCompletedRows(t *testing.T) {
	c := NewCoordinator(1, 16)
	c.FaultReady(1, 0, 0)
	c.FaultReady(2, 0, 0)
	require.Equal(t, 2, c.OutstandingCount())

	require.NoError(t, c.SyncComplete(1, 0))
	require.Equal(t, 1, c.OutstandingCount())
}
