package dispatch

import (
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/fabric"
)

// HandleRoute reconciles a single route-change event. Only IPv4 and IPv6
// families are considered; anything else is dropped per spec §4.4.2.
//
// Like links, netlink carries no distinct "change" message type for
// routes — RTM_NEWROUTE covers both install and replace — so only the
// new/delete split from spec §4.4.2 is reachable here.
func (d *Dispatcher) HandleRoute(u netlink.RouteUpdate) {
	switch u.Route.Family {
	case unix.AF_INET, unix.AF_INET6:
	default:
		return
	}
	isV6 := u.Route.Family == unix.AF_INET6

	dst := u.Route.Dst
	if dst == nil {
		dst = defaultRouteNet(isV6)
	}
	ones, _ := dst.Mask.Size()

	switch u.Type {
	case unix.RTM_NEWROUTE:
		d.handleRouteNew(u.Route, dst.IP, ones, isV6)
	case unix.RTM_DELROUTE:
		d.handleRouteDel(u.Route, dst.IP, ones, isV6)
	default:
		klog.V(4).Infof("dispatch: ignoring route message type %d for %s/%d", u.Type, dst.IP, ones)
	}
}

func (d *Dispatcher) handleRouteNew(route netlink.Route, prefix net.IP, mask int, isV6 bool) {
	gw, oif, ok := firstNextHop(route)
	if !ok {
		klog.V(4).Infof("dispatch: dropping route to %s/%d, no usable next hop", prefix, mask)
		return
	}
	ep, _, _, ok := d.preamble(oif)
	if !ok {
		klog.V(4).Infof("dispatch: dropping route to %s/%d, oif %d not owned", prefix, mask, oif)
		return
	}

	if isV6 {
		d.stats.AddRouteV6()
	} else {
		d.stats.AddRouteV4()
	}

	router := ep.RouterID()
	nextHops := []net.IP{gw}

	d.sw.UpdateStateBlocking("add route", func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		updater := d.sw.NewRouteUpdater(snap.RouteTables())
		if len(nextHops) == 0 {
			updater.AddRouteDrop(router, prefix, mask)
		} else {
			updater.AddRoute(router, prefix, mask, nextHops)
		}
		rt, changed := updater.Done()
		if !changed {
			return snap, false
		}
		return snap.WithRouteTables(rt), true
	})
}

func (d *Dispatcher) handleRouteDel(route netlink.Route, prefix net.IP, mask int, isV6 bool) {
	_, oif, ok := firstNextHop(route)
	if !ok {
		return
	}
	ep, _, _, ok := d.preamble(oif)
	if !ok {
		return
	}

	if isV6 {
		d.stats.DelRouteV6()
	} else {
		d.stats.DelRouteV4()
	}

	router := ep.RouterID()

	d.sw.UpdateStateBlocking("del route", func(snap fabric.Snapshot) (fabric.Snapshot, bool) {
		updater := d.sw.NewRouteUpdater(snap.RouteTables())
		updater.DelRoute(router, prefix, mask)
		rt, changed := updater.Done()
		if !changed {
			return snap, false
		}
		return snap.WithRouteTables(rt), true
	})
}

// firstNextHop returns the gateway and outgoing interface index of a
// route's first next hop, covering both the multipath and single-hop
// encodings vishvananda/netlink uses.
func firstNextHop(route netlink.Route) (gw net.IP, oif int, ok bool) {
	if len(route.MultiPath) > 0 {
		nh := route.MultiPath[0]
		if nh.Gw == nil {
			return nil, 0, false
		}
		return nh.Gw, nh.LinkIndex, true
	}
	if route.Gw == nil {
		return nil, 0, false
	}
	return route.Gw, route.LinkIndex, true
}

func defaultRouteNet(isV6 bool) *net.IPNet {
	if isV6 {
		return &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
	}
	return &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}
}
