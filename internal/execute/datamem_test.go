package execute

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataMemoryReadHasOneCycleLatency(t *testing.T) {
	m := NewDataMemory(16)
	m.Write(5, 0xABCD)

	m.IssueRead(5)
	_, valid := m.Result()
	require.False(t, valid, "a read issued this cycle must not resolve until after Step")

	m.Step()
	v, valid := m.Result()
	require.True(t, valid)
	require.EqualValues(t, 0xABCD, v)

	// With no new IssueRead, the next Step clears the pending result.
	m.Step()
	_, valid = m.Result()
	require.False(t, valid)
}

func TestDataMemoryOutOfRangeReadsZero(t *testing.T) {
	m := NewDataMemory(4)
	m.IssueRead(99)
	m.Step()
	v, valid := m.Result()
	require.True(t, valid)
	require.EqualValues(t, 0, v)
}
