// Package listener drains the four kernelsub subscription channels and
// serializes their delivery to a single dispatch.Dispatcher, so exactly
// one goroutine ever runs a C4 handler at a time — the "listener thread
// is exclusive caller of C4 handlers" invariant from spec §5.
//
// Grounded on original_source/fboss/agent/NetlinkListener.cpp's
// nl_cache_mngr_poll-driven ListenerLoop, adapted from a single blocking
// poll call to Go's channel-select idiom: one forwarding goroutine per
// subscription channel, feeding a shared work queue that a single worker
// goroutine drains. Each goroutine's "process one item, then check for
// shutdown" body is driven by wait.Until, the same worker-loop idiom the
// reference stack uses in pkg/informer/informer.go
// ("go wait.Until(e.runWorker, time.Second, stopCh)") and
// pkg/metrics/ovnkube_controller.go ("wait.Until(pr.runWorker,
// queueCheckPeriod, stop)").
package listener

import (
	"sync"

	"github.com/vishvananda/netlink"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/dispatch"
	"github.com/rizard/fboss/pkg/endpointregistry"
	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/kernelsub"
)

const workQueueBuffer = 256

// event is a tagged union of the four subscription payload kinds,
// queued so the single dispatch worker can process them in arrival order
// across all four sources.
type event struct {
	link  *netlink.LinkUpdate
	route *netlink.RouteUpdate
	neigh *netlink.NeighUpdate
	addr  *netlink.AddrUpdate
}

// Listener owns the work queue and the goroutines feeding it.
type Listener struct {
	dispatcher *dispatch.Dispatcher
	registry   *endpointregistry.Registry

	stop chan struct{}
	work chan event
	wg   sync.WaitGroup
}

// New builds a Listener over the given dispatcher and registry. Start
// must be called to begin draining a Subscription.
func New(d *dispatch.Dispatcher, registry *endpointregistry.Registry) *Listener {
	return &Listener{
		dispatcher: d,
		registry:   registry,
		stop:       make(chan struct{}),
		work:       make(chan event, workQueueBuffer),
	}
}

// Start spawns one forwarding goroutine per subscription channel plus the
// single serialized dispatch worker. Each goroutine runs its one-item body
// under wait.Until(fn, 0, l.stop), which calls fn repeatedly until l.stop
// closes — the zero period means "again immediately", since fn itself
// blocks on a channel receive rather than a timer. It does not block.
func (l *Listener) Start(sub *kernelsub.Subscription) {
	l.wg.Add(5)
	go func() { defer l.wg.Done(); wait.Until(l.forwardLinkOnce(sub.LinkUpdates), 0, l.stop) }()
	go func() { defer l.wg.Done(); wait.Until(l.forwardRouteOnce(sub.RouteUpdates), 0, l.stop) }()
	go func() { defer l.wg.Done(); wait.Until(l.forwardNeighborOnce(sub.NeighUpdates), 0, l.stop) }()
	go func() { defer l.wg.Done(); wait.Until(l.forwardAddressOnce(sub.AddrUpdates), 0, l.stop) }()
	go func() { defer l.wg.Done(); wait.Until(l.runDispatchOnce, 0, l.stop) }()
}

// Stop signals every goroutine spawned by Start to exit and blocks until
// they have. It is the listener side of spec §5's cooperative-cancellation
// shutdown sequence; it does not touch the ingress pump, which the caller
// stops separately through the pump's own Stop.
func (l *Listener) Stop() {
	close(l.stop)
	l.wg.Wait()
}

// forwardLinkOnce returns the single-iteration body wait.Until drives:
// forward one link update to the work queue, or return promptly on
// shutdown. If ch is ever closed without l.stop closing first — not
// expected in normal operation, since kernelsub resubscribes forever —
// it blocks on l.stop rather than busy-looping on a drained channel.
func (l *Listener) forwardLinkOnce(ch <-chan netlink.LinkUpdate) func() {
	return func() {
		select {
		case <-l.stop:
			return
		case u, ok := <-ch:
			if !ok {
				<-l.stop
				return
			}
			select {
			case l.work <- event{link: &u}:
			case <-l.stop:
			}
		}
	}
}

func (l *Listener) forwardRouteOnce(ch <-chan netlink.RouteUpdate) func() {
	return func() {
		select {
		case <-l.stop:
			return
		case u, ok := <-ch:
			if !ok {
				<-l.stop
				return
			}
			select {
			case l.work <- event{route: &u}:
			case <-l.stop:
			}
		}
	}
}

func (l *Listener) forwardNeighborOnce(ch <-chan netlink.NeighUpdate) func() {
	return func() {
		select {
		case <-l.stop:
			return
		case u, ok := <-ch:
			if !ok {
				<-l.stop
				return
			}
			select {
			case l.work <- event{neigh: &u}:
			case <-l.stop:
			}
		}
	}
}

func (l *Listener) forwardAddressOnce(ch <-chan netlink.AddrUpdate) func() {
	return func() {
		select {
		case <-l.stop:
			return
		case u, ok := <-ch:
			if !ok {
				<-l.stop
				return
			}
			select {
			case l.work <- event{addr: &u}:
			case <-l.stop:
			}
		}
	}
}

// runDispatchOnce is the sole body that ever calls into the dispatcher,
// honoring spec §5's single-writer invariant. wait.Until calls it
// repeatedly until l.stop closes.
func (l *Listener) runDispatchOnce() {
	select {
	case <-l.stop:
	case ev := <-l.work:
		switch {
		case ev.link != nil:
			l.dispatcher.HandleLink(*ev.link)
		case ev.route != nil:
			l.dispatcher.HandleRoute(*ev.route)
		case ev.neigh != nil:
			l.dispatcher.HandleNeighbor(*ev.neigh)
		case ev.addr != nil:
			l.dispatcher.HandleAddress(*ev.addr)
		}
	}
}

// SendToHost writes frame to the tap endpoint fronting vlan, completing
// the fabric-to-host reverse path spec §6 describes only as "exposed back
// to the switch via a method on the listener." Returns false if no
// endpoint owns that VLAN.
func (l *Listener) SendToHost(vlan fabric.VlanID, frame []byte) bool {
	ep, ok := l.registry.LookupByVlan(vlan)
	if !ok {
		klog.V(4).Infof("listener: dropping host-bound frame for unowned vlan %d", vlan)
		return false
	}
	if err := ep.WriteFrame(frame); err != nil {
		klog.Errorf("listener: writing host-bound frame to %s: %v", ep.Name(), err)
		return false
	}
	return true
}
