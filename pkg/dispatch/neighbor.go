package dispatch

import (
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/fabric"
)

// HandleNeighbor reconciles a single ARP (IPv4) or NDP (IPv6) table
// change. Both families are structurally identical per spec §4.4.3; only
// the target table and address parsing differ.
//
// As with links and routes, RTM_NEWNEIGH is the only message type used
// for both install and replace, so "change" is unreachable here; the
// compare-before-overwrite policy below already makes replace idempotent.
func (d *Dispatcher) HandleNeighbor(u netlink.NeighUpdate) {
	switch u.Family {
	case unix.AF_INET, unix.AF_INET6:
	default:
		return
	}
	isV6 := u.Family == unix.AF_INET6

	ep, snap, iface, ok := d.preamble(u.LinkIndex)
	if !ok {
		return
	}

	ip := u.IP
	if ip == nil {
		klog.V(4).Infof("dispatch: dropping neighbor event on %s, no IP", ep.Name())
		return
	}

	vlan := ep.VlanID()
	vlanRecord, ok := snap.Vlan(vlan)
	if !ok {
		klog.Warningf("dispatch: endpoint %s has no vlan record for id %d", ep.Name(), vlan)
		return
	}
	port, ok := vlanRecord.CanonicalPort()
	if !ok {
		klog.V(4).Infof("dispatch: dropping neighbor event, vlan %d has no canonical port", vlan)
		return
	}

	pending := u.State&unix.NUD_INCOMPLETE != 0
	entry := fabric.NeighborEntry{
		MAC:         net.HardwareAddr(u.HardwareAddr),
		Port:        port,
		InterfaceID: iface.ID,
		Pending:     pending,
	}

	switch u.Type {
	case unix.RTM_NEWNEIGH:
		d.handleNeighborNew(vlan, ip, entry, isV6)
	case unix.RTM_DELNEIGH:
		d.handleNeighborDel(vlan, ip, isV6)
	default:
		klog.V(4).Infof("dispatch: ignoring neighbor message type %d on %s", u.Type, ep.Name())
	}
}

func (d *Dispatcher) handleNeighborNew(vlan fabric.VlanID, ip net.IP, entry fabric.NeighborEntry, isV6 bool) {
	d.sw.UpdateStateBlocking("neighbor-add", func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		var existing fabric.NeighborEntry
		var exists bool
		if isV6 {
			existing, exists = snap.NdpEntry(vlan, ip)
		} else {
			existing, exists = snap.ArpEntry(vlan, ip)
		}
		if exists && existing.Equal(entry) {
			return snap, false
		}
		if isV6 {
			return snap.WithNdpEntry(vlan, ip, entry), true
		}
		return snap.WithArpEntry(vlan, ip, entry), true
	})
}

func (d *Dispatcher) handleNeighborDel(vlan fabric.VlanID, ip net.IP, isV6 bool) {
	d.sw.UpdateStateBlocking("neighbor-del", func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		var exists bool
		if isV6 {
			_, exists = snap.NdpEntry(vlan, ip)
		} else {
			_, exists = snap.ArpEntry(vlan, ip)
		}
		if !exists {
			return snap, false
		}
		if isV6 {
			return snap.WithoutNdpEntry(vlan, ip), true
		}
		return snap.WithoutArpEntry(vlan, ip), true
	})
}
