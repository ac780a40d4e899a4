package dispatch

import (
	"bytes"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/fabric"
)

// HandleLink reconciles a single link-change event against the owning
// interface's MAC and MTU. Administrative state (up/down) is deliberately
// ignored per spec §4.4.1: the forwarding tables alone determine
// reachability, and a down tap has no matching routes anyway.
//
// netlink has no distinct RTM_CHANGE message type for links — RTM_NEWLINK
// covers both creation and attribute updates — so the "new" and "change"
// branches of the source policy collapse into one path here; only
// RTM_DELLINK is distinguished, and it is ignored on an owned endpoint
// (expected only during shutdown, spec §4.4.1).
func (d *Dispatcher) HandleLink(u netlink.LinkUpdate) {
	attrs := u.Link.Attrs()
	ep, _, iface, ok := d.preamble(attrs.Index)
	if !ok {
		return
	}

	if u.Header.Type == unix.RTM_DELLINK {
		klog.V(4).Infof("dispatch: ignoring delete of owned link %s", ep.Name())
		return
	}

	mac := attrs.HardwareAddr
	mtu := attrs.MTU

	if bytesEqual(mac, iface.MAC) && mtu == iface.MTU {
		return
	}

	label := fmt.Sprintf("NetlinkListener update Interface %s", iface.Name)
	d.sw.UpdateStateBlocking(label, func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		cur, found := snap.Interface(iface.ID)
		if !found {
			return snap, false
		}
		if bytesEqual(mac, cur.MAC) && mtu == cur.MTU {
			return snap, false
		}
		next := cur.Clone()
		next.MAC = append([]byte(nil), mac...)
		next.MTU = mtu
		return snap.WithInterface(next), true
	})
}

func bytesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
