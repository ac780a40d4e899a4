package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/stats"
	"github.com/rizard/fboss/pkg/tapendpoint"
)

// fakePacketIO satisfies fabric.PacketIO without exercising any kernel
// surface; bridge.Start's tap-device creation path requires real
// /dev/net/tun access and is not exercised by these tests (tapendpoint's
// own tests cover frame read/write over pipes, not device creation).
type fakePacketIO struct{}

func (fakePacketIO) AllocateL2TxPacket(capacity int) fabric.TxPacket { return &fakePacket{} }
func (fakePacketIO) SendL2Packet(fabric.InterfaceID, fabric.TxPacket) error { return nil }

type fakePacket struct{}

func (*fakePacket) Append([]byte) {}

func TestStartIsANoOpWhenRegistryAlreadyPopulated(t *testing.T) {
	sw := fabric.NewMemorySwitch()
	b := New("tap", sw, fakePacketIO{}, stats.NoopSink{})

	// Simulate a previous partial Start by inserting directly into the
	// registry, bypassing the tap-open path this test can't exercise.
	b.registry.Insert(tapendpoint.NewForTest("tap10", 0, 10, 1, 10))

	err := b.Start([]VlanSpec{{VlanID: 20, InterfaceID: 2, MTU: 1500}})
	require.NoError(t, err)

	// The guard must have returned before seeding vlan 20's interface.
	_, ok := sw.CurrentState().Interface(2)
	require.False(t, ok)
	require.Equal(t, 1, b.registry.Len())
}

func TestSendToHostBeforeStartReturnsFalse(t *testing.T) {
	sw := fabric.NewMemorySwitch()
	b := New("tap", sw, fakePacketIO{}, stats.NoopSink{})

	require.False(t, b.SendToHost(1, []byte("x")))
}
