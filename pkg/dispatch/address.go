package dispatch

import (
	"net"

	"github.com/vishvananda/netlink"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/fabric"
)

// HandleAddress reconciles a single host-address change on an owned
// interface. Prefix length is elided: addresses are stored address-only,
// since the tap is a point-to-host conduit rather than a routed subnet
// participant (spec §4.4.4).
//
// AddrUpdate carries no message type at all — only a NewAddr bool — so
// there is no "change" case to consider here; every event is either an
// add or a delete.
func (d *Dispatcher) HandleAddress(u netlink.AddrUpdate) {
	ep, _, iface, ok := d.preamble(u.LinkIndex)
	if !ok {
		return
	}

	addr := u.LinkAddress.IP
	if addr == nil {
		klog.V(4).Infof("dispatch: dropping address event on %s, no address", ep.Name())
		return
	}

	if u.NewAddr {
		d.handleAddressNew(iface.ID, addr)
	} else {
		d.handleAddressDel(iface.ID, addr)
	}
}

func (d *Dispatcher) handleAddressNew(id fabric.InterfaceID, addr net.IP) {
	d.sw.UpdateStateBlocking("address-add", func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		cur, found := snap.Interface(id)
		if !found {
			return snap, false
		}
		if cur.HasAddress(addr) {
			return snap, false
		}
		next := cur.Clone()
		next.Addresses = append(next.Addresses, addr)
		return snap.WithInterface(next), true
	})
}

func (d *Dispatcher) handleAddressDel(id fabric.InterfaceID, addr net.IP) {
	d.sw.UpdateStateBlocking("address-del", func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		cur, found := snap.Interface(id)
		if !found {
			return snap, false
		}
		if !cur.HasAddress(addr) {
			return snap, false
		}
		next := cur.Clone()
		filtered := next.Addresses[:0]
		for _, a := range next.Addresses {
			if !a.Equal(addr) {
				filtered = append(filtered, a)
			}
		}
		next.Addresses = filtered
		return snap.WithInterface(next), true
	})
}
