package dispatch

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/rizard/fboss/pkg/endpointregistry"
	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/stats"
	"github.com/rizard/fboss/pkg/tapendpoint"
)

// countingSwitch wraps a fabric.Switch and records every label passed to
// UpdateStateBlocking whose mutation actually committed (ok=true),
// letting tests distinguish "no-op returned" from "committed the same
// value again" — the distinction spec §8 invariants 3 and 4 require.
type countingSwitch struct {
	fabric.Switch
	commits []string
}

func newCountingSwitch(sw fabric.Switch) *countingSwitch {
	return &countingSwitch{Switch: sw}
}

func (c *countingSwitch) UpdateStateBlocking(label string, fn fabric.Mutation) {
	c.Switch.UpdateStateBlocking(label, func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		next, ok := fn(snap)
		if ok {
			c.commits = append(c.commits, label)
		}
		return next, ok
	})
}

func newFixture(t *testing.T) (*Dispatcher, *fabric.MemorySwitch, *endpointregistry.Registry) {
	t.Helper()
	sw := fabric.NewMemorySwitch()
	sw.SeedVlan(
		&fabric.Vlan{ID: 10, Name: "vlan10", Ports: []fabric.PortID{100, 101}},
		&fabric.Interface{ID: 1, RouterID: 0, VlanID: 10, Name: "tap10", MTU: 1500},
	)
	reg := endpointregistry.New()
	reg.Insert(tapendpoint.NewForTest("tap10", 0, 42, 1, 10))
	d := New(reg, sw, stats.NoopSink{})
	return d, sw, reg
}

func TestHandleLink_UpdatesMacAndMtuOnDiff(t *testing.T) {
	d, sw, _ := newFixture(t)

	link := &netlink.Dummy{
		LinkAttrs: netlink.LinkAttrs{
			Index:        42,
			HardwareAddr: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
			MTU:          9000,
		},
	}
	d.HandleLink(netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: unix.RTM_NEWLINK},
		Link:   link,
	})

	iface, ok := sw.CurrentState().Interface(1)
	require.True(t, ok)
	require.Equal(t, 9000, iface.MTU)
	require.Equal(t, net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, iface.MAC)
}

func TestHandleLink_DeleteIgnoredOnOwnedEndpoint(t *testing.T) {
	d, sw, _ := newFixture(t)

	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Index: 42, MTU: 1}}
	d.HandleLink(netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: unix.RTM_DELLINK},
		Link:   link,
	})

	iface, ok := sw.CurrentState().Interface(1)
	require.True(t, ok)
	require.Equal(t, 1500, iface.MTU)
}

// TestHandleLink_RepeatedIdenticalEventCommitsOnce covers spec §8
// invariant 3 and Scenario A: replaying the same MAC change must not
// commit twice. Scenario A's seed MAC (02:00:00:00:00:01) and update MAC
// (02:aa:bb:cc:dd:ee) are used verbatim.
func TestHandleLink_RepeatedIdenticalEventCommitsOnce(t *testing.T) {
	sw := fabric.NewMemorySwitch()
	sw.SeedVlan(
		&fabric.Vlan{ID: 10, Name: "vlan10", Ports: []fabric.PortID{100}},
		&fabric.Interface{
			ID: 1, RouterID: 0, VlanID: 10, Name: "fboss1",
			MAC: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, MTU: 1500,
		},
	)
	reg := endpointregistry.New()
	reg.Insert(tapendpoint.NewForTest("fboss1", 0, 42, 1, 10))
	counting := newCountingSwitch(sw)
	d := New(reg, counting, stats.NoopSink{})

	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{
		Index:        42,
		HardwareAddr: net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee},
		MTU:          1500,
	}}
	update := netlink.LinkUpdate{Header: unix.NlMsghdr{Type: unix.RTM_NEWLINK}, Link: link}

	d.HandleLink(update)
	d.HandleLink(update)

	require.Equal(t, []string{"NetlinkListener update Interface fboss1"}, counting.commits,
		"replaying an identical link event must commit exactly once")

	iface, ok := sw.CurrentState().Interface(1)
	require.True(t, ok)
	require.Equal(t, net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}, iface.MAC)
	require.Equal(t, 1500, iface.MTU, "MTU was unchanged by the update and must stay unchanged")
}

func TestHandleLink_UnownedIndexDropped(t *testing.T) {
	d, sw, _ := newFixture(t)

	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Index: 999, MTU: 42}}
	d.HandleLink(netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: unix.RTM_NEWLINK},
		Link:   link,
	})

	iface, ok := sw.CurrentState().Interface(1)
	require.True(t, ok)
	require.Equal(t, 1500, iface.MTU)
}

func TestHandleRoute_AddInstallsSingleNextHop(t *testing.T) {
	d, sw, _ := newFixture(t)

	_, dst, _ := net.ParseCIDR("10.1.2.0/24")
	d.HandleRoute(netlink.RouteUpdate{
		Type: unix.RTM_NEWROUTE,
		Route: netlink.Route{
			Family:    unix.AF_INET,
			Dst:       dst,
			Gw:        net.ParseIP("10.1.2.1"),
			LinkIndex: 42,
		},
	})

	rt := sw.CurrentState().RouteTables()
	updater := sw.NewRouteUpdater(rt)
	updater.DelRoute(0, dst.IP, 24)
	_, changed := updater.Done()
	require.True(t, changed, "expected the route to exist so deleting it is a change")
}

func TestHandleRoute_DropsWhenOifNotOwned(t *testing.T) {
	d, sw, _ := newFixture(t)

	_, dst, _ := net.ParseCIDR("10.1.2.0/24")
	before := sw.CurrentState().RouteTables()
	d.HandleRoute(netlink.RouteUpdate{
		Type: unix.RTM_NEWROUTE,
		Route: netlink.Route{
			Family:    unix.AF_INET,
			Dst:       dst,
			Gw:        net.ParseIP("10.1.2.1"),
			LinkIndex: 999,
		},
	})
	require.Equal(t, before, sw.CurrentState().RouteTables())
}

func TestHandleRoute_IgnoresNonIPFamily(t *testing.T) {
	d, sw, _ := newFixture(t)
	before := sw.CurrentState().RouteTables()

	d.HandleRoute(netlink.RouteUpdate{
		Type:  unix.RTM_NEWROUTE,
		Route: netlink.Route{Family: unix.AF_BRIDGE},
	})
	require.Equal(t, before, sw.CurrentState().RouteTables())
}

func TestHandleNeighbor_AddsNewEntry(t *testing.T) {
	d, sw, _ := newFixture(t)

	d.HandleNeighbor(netlink.NeighUpdate{
		Type: unix.RTM_NEWNEIGH,
		Neigh: netlink.Neigh{
			LinkIndex:    42,
			Family:       unix.AF_INET,
			IP:           net.ParseIP("10.0.0.5"),
			HardwareAddr: net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		},
	})

	entry, ok := sw.CurrentState().ArpEntry(10, net.ParseIP("10.0.0.5"))
	require.True(t, ok)
	require.Equal(t, fabric.PortID(100), entry.Port)
	require.Equal(t, fabric.InterfaceID(1), entry.InterfaceID)
}

func TestHandleNeighbor_DeleteRemovesEntry(t *testing.T) {
	d, sw, _ := newFixture(t)
	ip := net.ParseIP("10.0.0.5")

	d.HandleNeighbor(netlink.NeighUpdate{
		Type:  unix.RTM_NEWNEIGH,
		Neigh: netlink.Neigh{LinkIndex: 42, Family: unix.AF_INET, IP: ip, HardwareAddr: net.HardwareAddr{1, 2, 3, 4, 5, 6}},
	})
	_, ok := sw.CurrentState().ArpEntry(10, ip)
	require.True(t, ok)

	d.HandleNeighbor(netlink.NeighUpdate{
		Type:  unix.RTM_DELNEIGH,
		Neigh: netlink.Neigh{LinkIndex: 42, Family: unix.AF_INET, IP: ip},
	})
	_, ok = sw.CurrentState().ArpEntry(10, ip)
	require.False(t, ok)
}

// TestHandleNeighbor_RepeatedIdenticalEventCommitsOnce covers spec §8
// invariant 4 and Scenario D verbatim: ARP entry 192.168.1.5 ->
// 02:aa:bb:cc:dd:ee, port=1, intf=10, not-pending; replaying the same
// neighbor-new must report no-change on the replay.
func TestHandleNeighbor_RepeatedIdenticalEventCommitsOnce(t *testing.T) {
	sw := fabric.NewMemorySwitch()
	sw.SeedVlan(
		&fabric.Vlan{ID: 10, Name: "vlan10", Ports: []fabric.PortID{1}},
		&fabric.Interface{ID: 10, RouterID: 0, VlanID: 10, Name: "fboss10", MTU: 1500},
	)
	reg := endpointregistry.New()
	reg.Insert(tapendpoint.NewForTest("fboss10", 0, 42, 10, 10))
	counting := newCountingSwitch(sw)
	d := New(reg, counting, stats.NoopSink{})

	update := netlink.NeighUpdate{
		Type: unix.RTM_NEWNEIGH,
		Neigh: netlink.Neigh{
			LinkIndex:    42,
			Family:       unix.AF_INET,
			IP:           net.ParseIP("192.168.1.5"),
			HardwareAddr: net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee},
		},
	}

	d.HandleNeighbor(update)
	d.HandleNeighbor(update)

	require.Equal(t, []string{"neighbor-add"}, counting.commits,
		"replaying an identical neighbor-new must commit exactly once")

	entry, ok := sw.CurrentState().ArpEntry(10, net.ParseIP("192.168.1.5"))
	require.True(t, ok)
	require.Equal(t, fabric.PortID(1), entry.Port)
	require.Equal(t, fabric.InterfaceID(10), entry.InterfaceID)
	require.False(t, entry.Pending)
}

func TestHandleAddress_AddThenDuplicateDropped(t *testing.T) {
	d, sw, _ := newFixture(t)
	addr := net.ParseIP("192.168.1.1")

	d.HandleAddress(netlink.AddrUpdate{
		LinkIndex:   42,
		LinkAddress: net.IPNet{IP: addr, Mask: net.CIDRMask(24, 32)},
		NewAddr:     true,
	})
	iface, _ := sw.CurrentState().Interface(1)
	require.Len(t, iface.Addresses, 1)

	d.HandleAddress(netlink.AddrUpdate{
		LinkIndex:   42,
		LinkAddress: net.IPNet{IP: addr, Mask: net.CIDRMask(24, 32)},
		NewAddr:     true,
	})
	iface, _ = sw.CurrentState().Interface(1)
	require.Len(t, iface.Addresses, 1, "duplicate address must be dropped, not appended")
}

func TestHandleAddress_DeleteRemovesAddress(t *testing.T) {
	d, sw, _ := newFixture(t)
	addr := net.ParseIP("192.168.1.1")

	d.HandleAddress(netlink.AddrUpdate{
		LinkIndex:   42,
		LinkAddress: net.IPNet{IP: addr, Mask: net.CIDRMask(24, 32)},
		NewAddr:     true,
	})
	d.HandleAddress(netlink.AddrUpdate{
		LinkIndex:   42,
		LinkAddress: net.IPNet{IP: addr, Mask: net.CIDRMask(24, 32)},
		NewAddr:     false,
	})

	iface, _ := sw.CurrentState().Interface(1)
	require.Empty(t, iface.Addresses)
}
