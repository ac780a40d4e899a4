// Package endpointregistry tracks the live tapendpoint.Endpoint set this
// bridge owns, keyed both by kernel interface index and by VLAN id. Only
// the bootstrap/core thread mutates it; the dispatcher and listener only
// read, matching the thread-confinement model in spec §5.
//
// Grounded on original_source/fboss/agent/NetlinkListener.cpp's
// interfaceMap_/vlanMap_ pair and its destructor.
package endpointregistry

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/tapendpoint"
)

// Registry maps an owned endpoint by kernel interface index and by the
// VLAN it fronts. Every endpoint present in one index is present in the
// other; Insert and Clear maintain that invariant.
type Registry struct {
	mu      sync.RWMutex
	byIndex map[int]*tapendpoint.Endpoint
	byVlan  map[fabric.VlanID]*tapendpoint.Endpoint
	ordered []*tapendpoint.Endpoint // insertion order, for deterministic drain
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byIndex: map[int]*tapendpoint.Endpoint{},
		byVlan:  map[fabric.VlanID]*tapendpoint.Endpoint{},
	}
}

// Insert records ep under both indexes. Replacing an existing entry for
// the same interface index or VLAN is not supported and panics — the
// bootstrap sequence that calls Insert never re-registers a live VLAN.
func (r *Registry) Insert(ep *tapendpoint.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byIndex[ep.IfIndex()]; exists {
		panic("endpointregistry: duplicate interface index insert")
	}
	if _, exists := r.byVlan[ep.VlanID()]; exists {
		panic("endpointregistry: duplicate vlan insert")
	}
	r.byIndex[ep.IfIndex()] = ep
	r.byVlan[ep.VlanID()] = ep
	r.ordered = append(r.ordered, ep)
}

// LookupByIndex returns the endpoint owning kernel interface index i.
func (r *Registry) LookupByIndex(i int) (*tapendpoint.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.byIndex[i]
	return ep, ok
}

// LookupByVlan returns the endpoint fronting VLAN v.
func (r *Registry) LookupByVlan(v fabric.VlanID) (*tapendpoint.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.byVlan[v]
	return ep, ok
}

// IterateAll calls fn for every registered endpoint in insertion order.
// fn must not call back into the registry.
func (r *Registry) IterateAll(fn func(*tapendpoint.Endpoint)) {
	r.mu.RLock()
	snapshot := append([]*tapendpoint.Endpoint(nil), r.ordered...)
	r.mu.RUnlock()
	for _, ep := range snapshot {
		fn(ep)
	}
}

// Clear closes every registered endpoint, in insertion order, and empties
// both indexes. The source this is grounded on iterates the destruction
// loop backwards (end() instead of begin()), which produces an empty
// range and leaks every fd; this implementation iterates forward, per
// spec's resolution of that open question.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range r.ordered {
		if err := ep.Close(); err != nil {
			klog.Warningf("endpointregistry: closing %s during clear: %v", ep.Name(), err)
		}
	}
	if len(r.byIndex) != len(r.byVlan) {
		klog.Warningf("endpointregistry: index maps diverged before clear (byIndex=%d byVlan=%d)", len(r.byIndex), len(r.byVlan))
	}
	r.byIndex = map[int]*tapendpoint.Endpoint{}
	r.byVlan = map[fabric.VlanID]*tapendpoint.Endpoint{}
	r.ordered = nil
}

// Len reports the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
