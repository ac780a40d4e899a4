// Package fabric defines the contracts this bridge consumes from the
// switch-state container and the forwarding-agent packet I/O path. Both
// are owned by other packages in a full deployment; this package only
// carries the interfaces plus an in-memory reference implementation
// (see memory.go) used for development and tests.
package fabric

import "net"

// RouterID names a virtual routing instance. Fixed to 0 in this revision.
type RouterID int

// VlanID and InterfaceID key VLANs and interfaces in the switch state. In
// this design both are derived 1:1 from the seed VLAN id.
type VlanID int
type InterfaceID int

// PortID names a physical port within a VLAN's port map.
type PortID int

// Interface is a single routed interface fronting one VLAN.
type Interface struct {
	ID        InterfaceID
	RouterID  RouterID
	VlanID    VlanID
	Name      string
	MAC       net.HardwareAddr
	MTU       int
	Addresses []net.IP
}

// Clone returns a deep copy suitable for mutation under copy-on-write.
func (i *Interface) Clone() *Interface {
	if i == nil {
		return nil
	}
	c := *i
	c.MAC = append(net.HardwareAddr(nil), i.MAC...)
	c.Addresses = append([]net.IP(nil), i.Addresses...)
	return &c
}

// HasAddress reports whether addr (address-only form, no prefix length)
// is already present on the interface.
func (i *Interface) HasAddress(addr net.IP) bool {
	for _, a := range i.Addresses {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

// Vlan carries the VLAN's port map. The first entry is canonical for
// neighbor-table entries; multi-port VLANs are an open design question
// (spec §9.4) this revision does not resolve.
type Vlan struct {
	ID    VlanID
	Name  string
	Ports []PortID
}

// CanonicalPort returns the first port of the VLAN, or false if the VLAN
// has no ports.
func (v *Vlan) CanonicalPort() (PortID, bool) {
	if v == nil || len(v.Ports) == 0 {
		return 0, false
	}
	return v.Ports[0], true
}

// NeighborEntry is a single ARP or NDP table row.
type NeighborEntry struct {
	MAC         net.HardwareAddr
	Port        PortID
	InterfaceID InterfaceID
	Pending     bool
}

// Equal compares the fields the link layer cares about: MAC, port,
// owning interface, and whether the entry is still pending resolution.
func (e NeighborEntry) Equal(o NeighborEntry) bool {
	return e.Port == o.Port && e.InterfaceID == o.InterfaceID && e.Pending == o.Pending &&
		bytesEqual(e.MAC, o.MAC)
}

func bytesEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Snapshot is an immutable, shareable view of the switch's forwarding
// state at a point in time. Handlers read it, never retain it past the
// callback invocation that produced it, and only mutate it by returning
// a new Snapshot from a Mutation.
type Snapshot interface {
	Interface(id InterfaceID) (*Interface, bool)
	Vlan(id VlanID) (*Vlan, bool)
	ArpEntry(vlan VlanID, ip net.IP) (NeighborEntry, bool)
	NdpEntry(vlan VlanID, ip net.IP) (NeighborEntry, bool)
	RouteTables() RouteTables

	// WithRouteTables returns a clone of the snapshot with its route
	// tables replaced by rt; all other state is shared structurally.
	WithRouteTables(rt RouteTables) Snapshot
	// WithInterface returns a clone with iface replacing the interface
	// of the same id.
	WithInterface(iface *Interface) Snapshot
	// WithVlan returns a clone with vlan replacing the VLAN of the same id.
	WithVlan(vlan *Vlan) Snapshot
	// WithArpEntry and WithNdpEntry return a clone with the given
	// neighbor-table row set (added or overwritten).
	WithArpEntry(vlan VlanID, ip net.IP, entry NeighborEntry) Snapshot
	WithNdpEntry(vlan VlanID, ip net.IP, entry NeighborEntry) Snapshot
	// WithoutArpEntry and WithoutNdpEntry return a clone with the given
	// neighbor-table row removed, if present.
	WithoutArpEntry(vlan VlanID, ip net.IP) Snapshot
	WithoutNdpEntry(vlan VlanID, ip net.IP) Snapshot
}

// Mutation is a pure transformation from one snapshot to the next.
// Returning ok=false means "commit nothing" — the event produced no
// effective change.
type Mutation func(Snapshot) (next Snapshot, ok bool)

// RouteTables is an opaque, immutable view of a router's route tables.
// Its only producer is RouteUpdater.Done.
type RouteTables interface{}

// RouteUpdater accumulates route additions/deletions against one router's
// tables before Done() is called to materialize (or reject) the result.
type RouteUpdater interface {
	AddRoute(router RouterID, prefix net.IP, mask int, nextHops []net.IP)
	AddRouteDrop(router RouterID, prefix net.IP, mask int)
	DelRoute(router RouterID, prefix net.IP, mask int)
	// Done finalizes the accumulated edits. ok=false means no effective
	// change was made and the caller's mutation should report no-change.
	Done() (RouteTables, bool)
}

// Switch is the control surface this bridge drives: a cheap, wait-free
// read of the current state, and a blocking, serialized commit API.
type Switch interface {
	CurrentState() Snapshot
	// UpdateStateBlocking commits iff fn returns ok=true, and returns
	// only after the commit (or rejection) completes.
	UpdateStateBlocking(label string, fn Mutation)
	NewRouteUpdater(rt RouteTables) RouteUpdater
}

// TxPacket is a packet buffer allocated by the forwarding agent for
// transmission out an L2 interface.
type TxPacket interface {
	Append(data []byte)
}

// RxPacket is a packet received from the fabric, destined for the host.
type RxPacket interface {
	SrcVlan() VlanID
	Bytes() []byte
}

// PacketIO is the forwarding-agent's packet send/allocate surface.
type PacketIO interface {
	AllocateL2TxPacket(capacity int) TxPacket
	SendL2Packet(interfaceID InterfaceID, pkt TxPacket) error
}
