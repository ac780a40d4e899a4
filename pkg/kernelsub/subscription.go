// Package kernelsub owns the routing-netlink subscriptions this bridge
// reconciles against: link, route, neighbor, and address changes. It is
// the Go-idiomatic replacement for libnl3's cache manager and callback
// registration — see original_source/fboss/agent/NetlinkListener.cpp's
// registerLinkNetlinkCallback and friends for the source this generalizes.
//
// Grounded on pkg/node/routemanager/route_manager.go and
// pkg/ovn/routeimport/route_import.go's subscribeNetlinkRouteEvents-style
// helpers, generalized from route/link to all four update kinds.
package kernelsub

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vishvananda/netlink"
	"k8s.io/klog/v2"
)

const subscribeBuffer = 128

// Subscription is a live set of netlink update channels. Each channel
// delivers an initial dump (ListExisting: true) before live events, which
// reproduces spec.md §4.3's "publish before manager attach" ordering
// without a separate cache-priming pass.
type Subscription struct {
	LinkUpdates  chan netlink.LinkUpdate
	RouteUpdates chan netlink.RouteUpdate
	NeighUpdates chan netlink.NeighUpdate
	AddrUpdates  chan netlink.AddrUpdate
}

// Open establishes all four subscriptions in the order spec.md §4.3
// prescribes for cache attachment: link, route, neighbor, address. stop
// closing tears every channel's goroutine down; Open itself never blocks.
func Open(stop <-chan struct{}) *Subscription {
	s := &Subscription{
		LinkUpdates:  make(chan netlink.LinkUpdate, subscribeBuffer),
		RouteUpdates: make(chan netlink.RouteUpdate, subscribeBuffer),
		NeighUpdates: make(chan netlink.NeighUpdate, subscribeBuffer),
		AddrUpdates:  make(chan netlink.AddrUpdate, subscribeBuffer),
	}

	go resubscribeLoop(stop, "link", func(errCh chan error) error {
		return netlink.LinkSubscribeWithOptions(s.LinkUpdates, stop, netlink.LinkSubscribeOptions{
			ErrorCallback: func(err error) { errCh <- err },
			ListExisting:  true,
		})
	})
	go resubscribeLoop(stop, "route", func(errCh chan error) error {
		return netlink.RouteSubscribeWithOptions(s.RouteUpdates, stop, netlink.RouteSubscribeOptions{
			ErrorCallback: func(err error) { errCh <- err },
			ListExisting:  true,
		})
	})
	go resubscribeLoop(stop, "neigh", func(errCh chan error) error {
		return netlink.NeighSubscribeWithOptions(s.NeighUpdates, stop, netlink.NeighSubscribeOptions{
			ErrorCallback: func(err error) { errCh <- err },
			ListExisting:  true,
		})
	})
	go resubscribeLoop(stop, "addr", func(errCh chan error) error {
		return netlink.AddrSubscribeWithOptions(s.AddrUpdates, stop, netlink.AddrSubscribeOptions{
			ErrorCallback: func(err error) { errCh <- err },
			ListExisting:  true,
		})
	})

	return s
}

// resubscribeLoop calls subscribe once, then waits for either stop or a
// reported subscription error before calling subscribe again, backing off
// exponentially so a persistently broken netlink socket doesn't spin.
// This generalizes route_manager.go's fixed-ticker resubscribe into a
// backoff, since a kernel-socket failure here is longer-lived than the
// occasional dropped route-cache channel that pattern was written for.
func resubscribeLoop(stop <-chan struct{}, kind string, subscribe func(chan error) error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry forever; only stop ends the loop

	for {
		errCh := make(chan error, 1)
		if err := subscribe(errCh); err != nil {
			klog.Errorf("kernelsub: %s subscribe failed: %v", kind, err)
			select {
			case <-stop:
				return
			case <-time.After(b.NextBackOff()):
				continue
			}
		}
		b.Reset()

		select {
		case <-stop:
			return
		case err := <-errCh:
			klog.Warningf("kernelsub: %s subscription reported error, resubscribing: %v", kind, err)
			select {
			case <-stop:
				return
			case <-time.After(b.NextBackOff()):
			}
		}
	}
}
