package fabric

import "k8s.io/klog/v2"

// bufferPacket is the trivial TxPacket backing LoggingPacketIO.
type bufferPacket struct {
	data []byte
}

func (p *bufferPacket) Append(data []byte) { p.data = append(p.data, data...) }

// LoggingPacketIO implements PacketIO by logging every frame instead of
// forwarding it anywhere. It stands in for the real forwarding-agent
// packet API, which spec.md §1 places out of scope for this module.
type LoggingPacketIO struct{}

// NewLoggingPacketIO returns a PacketIO suitable for running this bridge
// standalone, without a real switch behind it.
func NewLoggingPacketIO() *LoggingPacketIO {
	return &LoggingPacketIO{}
}

func (LoggingPacketIO) AllocateL2TxPacket(capacity int) TxPacket {
	return &bufferPacket{data: make([]byte, 0, capacity)}
}

func (LoggingPacketIO) SendL2Packet(id InterfaceID, pkt TxPacket) error {
	bp := pkt.(*bufferPacket)
	klog.V(4).Infof("fabric: would send %d-byte frame to interface %d", len(bp.data), id)
	return nil
}
