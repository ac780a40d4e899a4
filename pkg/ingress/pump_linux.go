//go:build linux

// Package ingress multiplexes reads across every owned tap endpoint using
// epoll, copying each frame into a fabric packet and handing it to the
// packet-I/O collaborator's send-to-fabric path.
//
// Grounded on original_source/fboss/agent/NetlinkListener.cpp's
// ingress-pump loop (EpollWait-driven, endpoint pointer as the user
// token). Recovers spec §9's cancellation-gap open question by adding a
// self-pipe fd to the epoll set alongside the tap fds, giving Stop() a
// real interruption point instead of relying solely on fd closure.
package ingress

import (
	"errors"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/rizard/fboss/pkg/endpointregistry"
	"github.com/rizard/fboss/pkg/fabric"
	"github.com/rizard/fboss/pkg/tapendpoint"
)

const (
	maxEpollEvents = 64
	scratchBufSize = 65536
)

// Pump owns the epoll set and the self-pipe cancellation fd.
type Pump struct {
	registry *endpointregistry.Registry
	io       fabric.PacketIO
	sw       fabric.Switch

	epfd        int
	cancelRead  int
	cancelWrite int

	// byFD resolves a ready epoll fd straight to its endpoint, built once
	// in Open from the registry's contents at that point; the registry is
	// immutable for C6's whole lifetime (spec §5), so this never goes stale.
	byFD map[int]*tapendpoint.Endpoint
}

// New builds a Pump. Open must be called before Run.
func New(registry *endpointregistry.Registry, io fabric.PacketIO, sw fabric.Switch) *Pump {
	return &Pump{registry: registry, io: io, sw: sw}
}

// Open creates the epoll set, registers every endpoint currently in the
// registry for read-readiness, and registers the self-pipe's read end for
// cancellation. Called once after bootstrap has finished populating the
// registry (spec §5: registry is read-only for C6's whole lifetime).
func (p *Pump) Open() error {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return &tapendpoint.KernelIoError{Op: "epoll_create1", Err: err}
	}
	p.epfd = epfd

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return &tapendpoint.KernelIoError{Op: "pipe2", Err: err}
	}
	p.cancelRead, p.cancelWrite = pipeFds[0], pipeFds[1]

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, p.cancelRead, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(p.cancelRead),
	}); err != nil {
		p.closeFds()
		return &tapendpoint.KernelIoError{Op: "epoll_ctl(cancel)", Err: err}
	}

	p.byFD = map[int]*tapendpoint.Endpoint{}
	var regErr error
	p.registry.IterateAll(func(ep *tapendpoint.Endpoint) {
		if regErr != nil {
			return
		}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, ep.FD(), &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(ep.FD()),
		}); err != nil {
			regErr = &tapendpoint.KernelIoError{Op: "epoll_ctl(" + ep.Name() + ")", Err: err}
			return
		}
		p.byFD[ep.FD()] = ep
	})
	if regErr != nil {
		p.closeFds()
		return regErr
	}

	return nil
}

// Run drains ready fds until Stop is called or an unrecoverable epoll
// error occurs, in which case it returns that error. It blocks; the
// caller runs it in its own goroutine and joins it after calling Stop.
// Run releases the epoll set and self-pipe before returning, whatever
// the exit path.
func (p *Pump) Run() error {
	defer p.closeFds()

	events := make([]unix.EpollEvent, maxEpollEvents)
	scratch := make([]byte, scratchBufSize)

	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return &tapendpoint.KernelIoError{Op: "epoll_wait", Err: err}
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.cancelRead {
				return nil
			}
			p.drainOne(fd, scratch)
		}
	}
}

func (p *Pump) drainOne(fd int, scratch []byte) {
	ep, ok := p.byFD[fd]
	if !ok {
		return
	}

	outcome, n, err := ep.ReadFrame(scratch)
	if err != nil {
		klog.Errorf("ingress: reading %s: %v", ep.Name(), err)
		return
	}
	switch outcome {
	case tapendpoint.EOF:
		klog.Warningf("ingress: %s reported EOF", ep.Name())
	case tapendpoint.Frame:
		p.deliver(ep, scratch[:n])
	}
}

// deliver copies a received frame into a switch-owned packet and hands it
// to the fabric send path, per spec §4.6 steps (a)-(d).
func (p *Pump) deliver(ep *tapendpoint.Endpoint, frame []byte) {
	snap := p.sw.CurrentState()
	iface, ok := snap.Interface(ep.InterfaceID())
	if !ok {
		klog.Warningf("ingress: dropping frame for %s, no interface record", ep.Name())
		return
	}
	if len(frame) > iface.MTU {
		klog.Warningf("ingress: dropping %d-byte frame on %s, exceeds MTU %d", len(frame), ep.Name(), iface.MTU)
		return
	}

	pkt := p.io.AllocateL2TxPacket(iface.MTU)
	pkt.Append(frame)
	if err := p.io.SendL2Packet(ep.InterfaceID(), pkt); err != nil {
		klog.Errorf("ingress: sending frame from %s to fabric: %v", ep.Name(), err)
	}
}

// Stop signals Run to return. It does not block and does not close tap
// fds; the caller (Bridge) must join the goroutine running Run and
// separately close tap fds via the registry, per spec §5's shutdown
// ordering.
func (p *Pump) Stop() {
	var one [1]byte
	unix.Write(p.cancelWrite, one[:])
}

// closeFds releases the epoll set and self-pipe. Safe to call once; Run
// calls it on every exit path via defer, and Open calls it on its own
// failure paths before Run ever starts.
func (p *Pump) closeFds() {
	if p.cancelRead != 0 {
		unix.Close(p.cancelRead)
		p.cancelRead = 0
	}
	if p.cancelWrite != 0 {
		unix.Close(p.cancelWrite)
		p.cancelWrite = 0
	}
	if p.epfd != 0 {
		unix.Close(p.epfd)
		p.epfd = 0
	}
}
