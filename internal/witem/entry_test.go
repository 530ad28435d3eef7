package witem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSeedsRecvCompleteForNonDstRoleTypes(t *testing.T) {
	table := NewTable(8)
	require.NoError(t, table.Create(1, TypeStridedLoad, 0, true))

	e, ok := table.Get(1)
	require.True(t, ok)
	for i, tag := range e.Tags {
		require.Equal(t, RecvComplete, tag.Recv, "tag %d", i)
		require.Equal(t, SendInitial, tag.Send, "tag %d", i)
	}
}

func TestCreateSeedsRecvWaitingForJ2JTypes(t *testing.T) {
	table := NewTable(8)
	require.NoError(t, table.Create(1, TypeJ2JLoad, 0, true))

	e, _ := table.Get(1)
	require.Equal(t, RecvWaitingForRequest, e.Tags[0].Recv)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	table := NewTable(8)
	require.NoError(t, table.Create(1, TypeJ2JLoad, 0, true))

	err := table.Create(1, TypeJ2JLoad, 0, true)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestSelectForS1PicksOldestReadyEntry(t *testing.T) {
	table := NewTable(4)
	require.NoError(t, table.Create(1, TypeStridedLoad, 0, true))
	require.NoError(t, table.Create(2, TypeStridedLoad, 0, true))

	e, ok := table.SelectForS1()
	require.True(t, ok)
	require.Equal(t, 1, e.InstrIdent, "id 1 was created first, so has the lowest priority")
}

func TestSelectForS1SkipsEntriesNotReady(t *testing.T) {
	table := NewTable(4)
	require.NoError(t, table.Create(1, TypeStridedLoad, 0, false)) // cacheAvail=false -> not ready
	require.NoError(t, table.Create(2, TypeStridedLoad, 0, true))

	e, ok := table.SelectForS1()
	require.True(t, ok)
	require.Equal(t, 2, e.InstrIdent)
}

func TestCacheAvailFlipsReadyForS1(t *testing.T) {
	table := NewTable(4)
	require.NoError(t, table.Create(1, TypeStridedLoad, 0, false))
	e, _ := table.Get(1)
	require.False(t, e.ReadyForS1)

	table.CacheAvail(1)
	require.True(t, e.ReadyForS1)
}

func TestRemoveCompactsPriority(t *testing.T) {
	table := NewTable(4)
	require.NoError(t, table.Create(1, TypeStridedLoad, 0, true))
	require.NoError(t, table.Create(2, TypeStridedLoad, 0, true))
	require.NoError(t, table.Create(3, TypeStridedLoad, 0, true))

	table.Remove(1)

	e2, _ := table.Get(2)
	e3, _ := table.Get(3)
	require.Equal(t, 0, e2.Priority, "priorities above the removed entry shift down")
	require.Equal(t, 1, e3.Priority)

	require.NoError(t, table.Create(4, TypeStridedLoad, 0, true))
	e4, _ := table.Get(4)
	require.Equal(t, 2, e4.Priority, "nextPriority was decremented on Remove")
}

func TestIsCompleteRequiresEverySendAndRecvComplete(t *testing.T) {
	e := &Entry{Tags: []TagState{
		{Send: SendComplete, Recv: RecvComplete},
		{Send: SendComplete, Recv: RecvWaitingForRequest},
	}}
	require.False(t, e.IsComplete())

	e.Tags[1].Recv = RecvComplete
	require.True(t, e.IsComplete())
}
