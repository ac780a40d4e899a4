package endpointregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/tapendpoint"
)

func fixture(ifIndex int, vlan fabric.VlanID) *tapendpoint.Endpoint {
	return tapendpoint.NewForTest("tap-fixture", 0, ifIndex, fabric.InterfaceID(vlan), vlan)
}

func TestInsertAndLookup(t *testing.T) {
	r := New()
	r.Insert(fixture(3, 10))
	r.Insert(fixture(4, 20))

	ep, ok := r.LookupByIndex(3)
	require.True(t, ok)
	require.EqualValues(t, 10, ep.VlanID())

	ep, ok = r.LookupByVlan(20)
	require.True(t, ok)
	require.Equal(t, 4, ep.IfIndex())

	_, ok = r.LookupByIndex(99)
	require.False(t, ok)

	require.Equal(t, 2, r.Len())
}

func TestInsertDuplicateIndexPanics(t *testing.T) {
	r := New()
	r.Insert(fixture(1, 1))
	require.Panics(t, func() {
		r.Insert(fixture(1, 2))
	})
}

func TestInsertDuplicateVlanPanics(t *testing.T) {
	r := New()
	r.Insert(fixture(1, 1))
	require.Panics(t, func() {
		r.Insert(fixture(2, 1))
	})
}

func TestIterateAllPreservesInsertionOrder(t *testing.T) {
	r := New()
	order := []int{7, 3, 9, 1}
	for i, ifIndex := range order {
		r.Insert(fixture(ifIndex, fabric.VlanID(i)))
	}

	var seen []int
	r.IterateAll(func(ep *tapendpoint.Endpoint) {
		seen = append(seen, ep.IfIndex())
	})
	require.Equal(t, order, seen)
}

func TestClearEmptiesBothIndexesAndClosesEndpoints(t *testing.T) {
	r := New()
	r.Insert(fixture(5, 50))
	r.Insert(fixture(6, 60))
	require.Equal(t, 2, r.Len())

	r.Clear()
	require.Equal(t, 0, r.Len())
	_, ok := r.LookupByIndex(5)
	require.False(t, ok)
	_, ok = r.LookupByVlan(60)
	require.False(t, ok)

	var count int
	r.IterateAll(func(*tapendpoint.Endpoint) { count++ })
	require.Zero(t, count)
}
