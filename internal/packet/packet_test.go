package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutChannelDrainBlocksUntilConsumerReady(t *testing.T) {
	c := NewOutChannel()
	c.Send(Word{IsHeader: true, Header: Header{Length: 2, XDest: 1, YDest: 2}})
	require.Equal(t, 1, c.Pending())

	_, ok := c.Drain()
	require.False(t, ok, "consumer hasn't asserted ready yet")

	c.SetConsumerReady(true)
	require.True(t, c.Ready())
	w, ok := c.Drain()
	require.True(t, ok)
	require.True(t, w.IsHeader)
	require.Equal(t, 0, c.Pending())
}

func TestOutChannelDrainsInFIFOOrder(t *testing.T) {
	c := NewOutChannel()
	c.SetConsumerReady(true)
	c.Send(Word{Data: 1})
	c.Send(Word{Data: 2})

	w1, ok := c.Drain()
	require.True(t, ok)
	require.EqualValues(t, 1, w1.Data)

	w2, ok := c.Drain()
	require.True(t, ok)
	require.EqualValues(t, 2, w2.Data)

	_, ok = c.Drain()
	require.False(t, ok, "channel is empty")
}
