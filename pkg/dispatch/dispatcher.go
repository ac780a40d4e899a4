// Package dispatch reconciles a single routing-netlink event against the
// switch's forwarding state. Each handler shares the same preamble:
// resolve the event's interface index against the endpoint registry,
// discard if unowned, then read the current snapshot and the owning
// interface record.
//
// Grounded line-for-line on original_source/fboss/agent/NetlinkListener.cpp's
// netlink_link_updated / netlink_route_updated / netlink_neighbor_updated /
// netlink_addr_updated callbacks.
package dispatch

import (
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/endpointregistry"
	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/stats"
	"github.com/rizard/fboss/pkg/tapendpoint"
)

// Dispatcher owns the collaborators every handler needs: the registry to
// resolve an interface index to an owned endpoint, the switch to read and
// mutate forwarding state, and the stats sink for route accounting.
//
// Exactly one goroutine — the listener loop's serialized worker — ever
// calls into a Dispatcher; none of its methods take a lock of their own.
type Dispatcher struct {
	registry *endpointregistry.Registry
	sw       fabric.Switch
	stats    stats.Sink
}

// New builds a Dispatcher over the given collaborators.
func New(registry *endpointregistry.Registry, sw fabric.Switch, sink stats.Sink) *Dispatcher {
	return &Dispatcher{registry: registry, sw: sw, stats: sink}
}

// preamble resolves ifIndex to an owned endpoint and its current
// interface record. ok is false if the event should be dropped: either
// the interface index isn't owned, or (unexpectedly) the registry and
// switch state have diverged and no interface record exists for the
// endpoint's interface id.
func (d *Dispatcher) preamble(ifIndex int) (ep *tapendpoint.Endpoint, snap fabric.Snapshot, iface *fabric.Interface, ok bool) {
	ep, found := d.registry.LookupByIndex(ifIndex)
	if !found {
		return nil, nil, nil, false
	}
	snap = d.sw.CurrentState()
	iface, found = snap.Interface(ep.InterfaceID())
	if !found {
		klog.Warningf("dispatch: endpoint %s has no interface record for id %d", ep.Name(), ep.InterfaceID())
		return ep, snap, nil, false
	}
	return ep, snap, iface, true
}
