//go:build linux

package tapendpoint

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/fabric"
)

const tunDevicePath = "/dev/net/tun"

// KernelIoError wraps a failing device-open/ioctl/fcntl syscall with the
// operation name that failed, per spec §4.1.
type KernelIoError struct {
	Op  string
	Err error
}

func (e *KernelIoError) Error() string { return fmt.Sprintf("tapendpoint: %s: %v", e.Op, e.Err) }
func (e *KernelIoError) Unwrap() error { return e.Err }

// Open acquires a tap character device, assigns it name (truncated to
// IFNAMSIZ-1 by the kernel), sets non-blocking mode, and resolves the
// kernel-assigned interface index. vlan/interfaceID are recorded for the
// dispatcher and registry; router is fixed to 0 per spec §3.
func Open(name string, vlan fabric.VlanID, interfaceID fabric.InterfaceID) (*Endpoint, error) {
	fd, err := unix.Open(tunDevicePath, unix.O_RDWR, 0)
	if err != nil {
		return nil, &KernelIoError{Op: "open(" + tunDevicePath + ")", Err: err}
	}

	req, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, &KernelIoError{Op: "build ifreq for " + name, Err: err}
	}
	req.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)

	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, req); err != nil {
		unix.Close(fd)
		return nil, &KernelIoError{Op: "ioctl(TUNSETIFF)", Err: err}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, &KernelIoError{Op: "fcntl(O_NONBLOCK)", Err: err}
	}

	assignedName := req.Name()
	iface, err := net.InterfaceByName(assignedName)
	if err != nil {
		unix.Close(fd)
		return nil, &KernelIoError{Op: "resolve ifindex for " + assignedName, Err: err}
	}

	ep := &Endpoint{
		name:        assignedName,
		fd:          fd,
		ifIndex:     iface.Index,
		interfaceID: interfaceID,
		routerID:    0,
		vlanID:      vlan,
	}
	klog.Infof("tapendpoint: opened %s (fd=%d, ifindex=%d)", ep.name, ep.fd, ep.ifIndex)
	return ep, nil
}

// Close releases the fd. Idempotent after the first successful close.
func (e *Endpoint) Close() error {
	if !e.live() {
		return nil
	}
	fd := e.fd
	e.fd = 0
	if err := unix.Close(fd); err != nil {
		return &KernelIoError{Op: "close", Err: err}
	}
	klog.Infof("tapendpoint: closed %s", e.name)
	return nil
}
