package fabric

import (
	"fmt"
	"net"
	"sync"
)

// routeKey identifies a route independent of its next hops.
type routeKey struct {
	router RouterID
	prefix string
	mask   int
}

type routeEntry struct {
	nextHops []net.IP
	drop     bool
}

type routeTables struct {
	routes map[routeKey]routeEntry
}

func (t *routeTables) clone() *routeTables {
	n := &routeTables{routes: make(map[routeKey]routeEntry, len(t.routes))}
	for k, v := range t.routes {
		n.routes[k] = v
	}
	return n
}

type neighborKey struct {
	vlan VlanID
	ip   string
}

// memorySnapshot is a cheap-to-clone, copy-on-write snapshot of switch
// state backed by plain Go maps. It is not safe for concurrent mutation;
// callers obtain one via MemorySwitch.CurrentState, read it, and discard
// it — exactly the usage pattern the bridge's dispatcher follows.
type memorySnapshot struct {
	interfaces map[InterfaceID]*Interface
	vlans      map[VlanID]*Vlan
	arp        map[neighborKey]NeighborEntry
	ndp        map[neighborKey]NeighborEntry
	routes     *routeTables
}

func newMemorySnapshot() *memorySnapshot {
	return &memorySnapshot{
		interfaces: map[InterfaceID]*Interface{},
		vlans:      map[VlanID]*Vlan{},
		arp:        map[neighborKey]NeighborEntry{},
		ndp:        map[neighborKey]NeighborEntry{},
		routes:     &routeTables{routes: map[routeKey]routeEntry{}},
	}
}

func (s *memorySnapshot) clone() *memorySnapshot {
	n := &memorySnapshot{
		interfaces: make(map[InterfaceID]*Interface, len(s.interfaces)),
		vlans:      make(map[VlanID]*Vlan, len(s.vlans)),
		arp:        make(map[neighborKey]NeighborEntry, len(s.arp)),
		ndp:        make(map[neighborKey]NeighborEntry, len(s.ndp)),
		routes:     s.routes,
	}
	for k, v := range s.interfaces {
		n.interfaces[k] = v
	}
	for k, v := range s.vlans {
		n.vlans[k] = v
	}
	for k, v := range s.arp {
		n.arp[k] = v
	}
	for k, v := range s.ndp {
		n.ndp[k] = v
	}
	return n
}

func (s *memorySnapshot) Interface(id InterfaceID) (*Interface, bool) {
	i, ok := s.interfaces[id]
	return i, ok
}

func (s *memorySnapshot) Vlan(id VlanID) (*Vlan, bool) {
	v, ok := s.vlans[id]
	return v, ok
}

func (s *memorySnapshot) ArpEntry(vlan VlanID, ip net.IP) (NeighborEntry, bool) {
	e, ok := s.arp[neighborKey{vlan, ip.String()}]
	return e, ok
}

func (s *memorySnapshot) NdpEntry(vlan VlanID, ip net.IP) (NeighborEntry, bool) {
	e, ok := s.ndp[neighborKey{vlan, ip.String()}]
	return e, ok
}

func (s *memorySnapshot) RouteTables() RouteTables {
	return s.routes
}

func (s *memorySnapshot) WithRouteTables(rt RouteTables) Snapshot {
	tbl, ok := rt.(*routeTables)
	if !ok {
		panic(fmt.Sprintf("fabric: WithRouteTables given foreign RouteTables type %T", rt))
	}
	n := s.clone()
	n.routes = tbl
	return n
}

func (s *memorySnapshot) WithInterface(iface *Interface) Snapshot {
	n := s.clone()
	n.interfaces[iface.ID] = iface
	return n
}

func (s *memorySnapshot) WithVlan(vlan *Vlan) Snapshot {
	n := s.clone()
	n.vlans[vlan.ID] = vlan
	return n
}

func (s *memorySnapshot) WithArpEntry(vlan VlanID, ip net.IP, entry NeighborEntry) Snapshot {
	n := s.clone()
	n.arp[neighborKey{vlan, ip.String()}] = entry
	return n
}

func (s *memorySnapshot) WithNdpEntry(vlan VlanID, ip net.IP, entry NeighborEntry) Snapshot {
	n := s.clone()
	n.ndp[neighborKey{vlan, ip.String()}] = entry
	return n
}

func (s *memorySnapshot) WithoutArpEntry(vlan VlanID, ip net.IP) Snapshot {
	n := s.clone()
	delete(n.arp, neighborKey{vlan, ip.String()})
	return n
}

func (s *memorySnapshot) WithoutNdpEntry(vlan VlanID, ip net.IP) Snapshot {
	n := s.clone()
	delete(n.ndp, neighborKey{vlan, ip.String()})
	return n
}

// setInterface and friends below are test/seed helpers, not part of the
// Snapshot contract — they mutate in place and are only safe before the
// snapshot is published via CurrentState.
func (s *memorySnapshot) setInterface(i *Interface) { s.interfaces[i.ID] = i }
func (s *memorySnapshot) setVlan(v *Vlan)           { s.vlans[v.ID] = v }

// memoryRouteUpdater implements RouteUpdater against a routeTables clone.
type memoryRouteUpdater struct {
	base    *routeTables
	next    *routeTables
	changed bool
}

func (u *memoryRouteUpdater) AddRoute(router RouterID, prefix net.IP, mask int, nextHops []net.IP) {
	k := routeKey{router, prefix.String(), mask}
	u.next.routes[k] = routeEntry{nextHops: append([]net.IP(nil), nextHops...)}
	u.changed = true
}

func (u *memoryRouteUpdater) AddRouteDrop(router RouterID, prefix net.IP, mask int) {
	k := routeKey{router, prefix.String(), mask}
	u.next.routes[k] = routeEntry{drop: true}
	u.changed = true
}

func (u *memoryRouteUpdater) DelRoute(router RouterID, prefix net.IP, mask int) {
	k := routeKey{router, prefix.String(), mask}
	if _, ok := u.next.routes[k]; ok {
		delete(u.next.routes, k)
		u.changed = true
	}
}

func (u *memoryRouteUpdater) Done() (RouteTables, bool) {
	if !u.changed {
		return nil, false
	}
	return u.next, true
}

// MemorySwitch is an in-memory, mutex-serialized reference implementation
// of Switch, intended for development and tests — the production
// switch-state container is out of scope for this module (spec §1).
type MemorySwitch struct {
	mu    sync.Mutex
	state *memorySnapshot
}

// NewMemorySwitch returns an empty switch with no interfaces or VLANs.
func NewMemorySwitch() *MemorySwitch {
	return &MemorySwitch{state: newMemorySnapshot()}
}

func (m *MemorySwitch) CurrentState() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MemorySwitch) UpdateStateBlocking(label string, fn Mutation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := fn(m.state)
	if !ok {
		return
	}
	ms, ok := next.(*memorySnapshot)
	if !ok {
		panic(fmt.Sprintf("fabric: UpdateStateBlocking(%q) returned foreign Snapshot type %T", label, next))
	}
	m.state = ms
}

func (m *MemorySwitch) NewRouteUpdater(rt RouteTables) RouteUpdater {
	base, ok := rt.(*routeTables)
	if !ok {
		panic(fmt.Sprintf("fabric: NewRouteUpdater given foreign RouteTables type %T", rt))
	}
	return &memoryRouteUpdater{base: base, next: base.clone()}
}

// SeedVlan installs a Vlan and its fronting Interface directly, bypassing
// UpdateStateBlocking. Used by tests to establish fixtures; the bridge
// seeds its VLANs through UpdateStateBlocking instead.
func (m *MemorySwitch) SeedVlan(vlan *Vlan, iface *Interface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	next.setVlan(vlan)
	next.setInterface(iface)
	m.state = next
}
