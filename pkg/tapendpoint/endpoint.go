// Package tapendpoint owns the kernel tap file descriptors this bridge
// fronts each VLAN with. One Endpoint per VLAN, opened with layer-2
// framing and no packet-info prefix, non-blocking so the ingress pump
// (pkg/ingress) can multiplex many of them behind a single epoll set.
//
// Grounded on original_source/netlinkTestApp/TapIntf.{h,cpp}.
package tapendpoint

import (
	"fmt"

	"github.com/rizard/fboss/pkg/fabric"
)

// Outcome classifies the result of a single ReadFrame call.
type Outcome int

const (
	// Frame indicates a complete frame was copied into the caller's buffer.
	Frame Outcome = iota
	// WouldBlock means no frame was ready; normal, not logged.
	WouldBlock
	// EOF means the device signaled end-of-file; logged by the caller.
	EOF
	// Dropped means a frame arrived but exceeded the destination buffer
	// and was discarded; the caller should log and continue.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Frame:
		return "frame"
	case WouldBlock:
		return "would-block"
	case EOF:
		return "eof"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Endpoint is one kernel tap device fronting a single VLAN.
type Endpoint struct {
	name        string
	fd          int
	ifIndex     int
	interfaceID fabric.InterfaceID
	routerID    fabric.RouterID
	vlanID      fabric.VlanID
}

// Name returns the kernel device name (prefix + VLAN id, truncated to
// IFNAMSIZ-1 by the kernel if necessary).
func (e *Endpoint) Name() string { return e.name }

// FD returns the owned file descriptor, or 0 if the endpoint is closed.
func (e *Endpoint) FD() int { return e.fd }

// IfIndex returns the kernel-assigned interface index, learned after
// device creation.
func (e *Endpoint) IfIndex() int { return e.ifIndex }

// InterfaceID returns the stable switch-side interface identifier this
// endpoint fronts.
func (e *Endpoint) InterfaceID() fabric.InterfaceID { return e.interfaceID }

// RouterID returns the virtual router this endpoint's routes are
// installed against. Fixed to 0 in this revision.
func (e *Endpoint) RouterID() fabric.RouterID { return e.routerID }

// VlanID returns the VLAN this endpoint fronts.
func (e *Endpoint) VlanID() fabric.VlanID { return e.vlanID }

// live reports whether the endpoint currently owns an open fd.
func (e *Endpoint) live() bool { return e.fd != 0 }

// NewForTest builds an Endpoint around an already-open fd, bypassing the
// tap-device ioctl sequence in Open. Intended for tests (in this and other
// packages of the module) that need registry-shaped fixtures without
// root or /dev/net/tun access; production code always goes through Open.
func NewForTest(name string, fd, ifIndex int, interfaceID fabric.InterfaceID, vlan fabric.VlanID) *Endpoint {
	return &Endpoint{
		name:        name,
		fd:          fd,
		ifIndex:     ifIndex,
		interfaceID: interfaceID,
		vlanID:      vlan,
	}
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s(ifindex=%d,vlan=%d)", e.name, e.ifIndex, e.vlanID)
}
