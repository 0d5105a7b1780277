package pipe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wine-np/npserver/internal/status"
)

// TestConnectionEdgeIsSymmetric checks invariant 1 from spec.md §8: a live
// connection's weak-pointer edge points both ways or neither.
func TestConnectionEdgeIsSymmetric(t *testing.T) {
	d := newTestDevice()
	serverHandle, clientHandle := connectedPair(t, d)

	s, st := d.serverFor(serverHandle)
	require.Equal(t, status.Success, st)
	c, st := d.clientFor(clientHandle)
	require.Equal(t, status.Success, st)

	require.NotNil(t, s.connection)
	require.NotNil(t, c.connection)
	require.Same(t, &c.end, s.connection)
	require.Same(t, &s.end, c.connection)

	require.Equal(t, status.Success, d.Disconnect(serverHandle))
	require.Nil(t, s.connection)
	require.Nil(t, c.connection)
}

// TestMessageQueueFullyDrainsOnRead checks invariant 4/5 from spec.md §8:
// reading a message removes exactly one entry and its writer observes
// completion before any later write is reachable.
func TestMessageQueueFullyDrainsOnRead(t *testing.T) {
	d := newTestDevice()
	serverHandle, clientHandle := messageModePair(t, d)
	require.Equal(t, status.Success, d.SetInfo(serverHandle, FlagMessageStreamRead))

	w1, st := d.Write(clientHandle, []byte("one"))
	require.Equal(t, status.Success, st)
	w2, st := d.Write(clientHandle, []byte("two"))
	require.Equal(t, status.Success, st)

	s, _ := d.serverFor(serverHandle)
	require.Len(t, s.msgQueue, 2)

	r1, st := d.Read(serverHandle, 16, true)
	require.Equal(t, status.Success, st)
	waitDone(t, r1.Done(), "first message read")
	require.Equal(t, "one", string(r1.IOSB().OutData))
	waitDone(t, w1.Done(), "first write completion")
	require.Len(t, s.msgQueue, 1)

	r2, st := d.Read(serverHandle, 16, true)
	require.Equal(t, status.Success, st)
	waitDone(t, r2.Done(), "second message read")
	require.Equal(t, "two", string(r2.IOSB().OutData))
	waitDone(t, w2.Done(), "second write completion")
	require.Empty(t, s.msgQueue)
}

// TestDestroyedServerCannotBeReusedByHandle checks invariant 2 from
// spec.md §8: a destroyed server's handle is not resolvable afterward.
func TestDestroyedServerCannotBeReusedByHandle(t *testing.T) {
	d := newTestDevice()
	serverHandle, _ := d.CreateNamedPipe(basicCreateReq(`\test`))

	require.Equal(t, status.Success, d.CloseHandle(serverHandle))

	_, st := d.serverFor(serverHandle)
	require.Equal(t, status.InvalidHandle, st)
}
