//go:build linux

package tapendpoint

import (
	"errors"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// maxFrameSize is the scratch buffer size used to detect oversized frames.
// Ethernet jumbo frames top out well under this; anything larger than the
// caller's destination buffer is dropped rather than split, per spec §4.1.
const maxFrameSize = 65536

// ReadFrame attempts to read a single frame from the endpoint into dst.
// It never blocks: a device with nothing ready returns (WouldBlock, 0, nil).
func (e *Endpoint) ReadFrame(dst []byte) (Outcome, int, error) {
	return readFrameFD(e.fd, dst)
}

// readFrameFD is the fd-parameterized core of ReadFrame, factored out so
// tests can exercise it against a unix.Pipe() fd pair instead of a real
// tap device.
func readFrameFD(fd int, dst []byte) (Outcome, int, error) {
	scratch := make([]byte, maxFrameSize)
	n, err := unix.Read(fd, scratch)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return WouldBlock, 0, nil
		}
		return Frame, 0, err
	}
	if n == 0 {
		return EOF, 0, nil
	}
	if n > len(dst) {
		klog.Warningf("tapendpoint: dropping %d-byte frame, destination buffer is %d", n, len(dst))
		return Dropped, 0, nil
	}
	copy(dst, scratch[:n])
	return Frame, n, nil
}

// WriteFrame writes a complete frame to the endpoint, retrying on
// EAGAIN/EINTR until the whole frame is accepted by the kernel.
func (e *Endpoint) WriteFrame(data []byte) error {
	return writeFrameFD(e.fd, data)
}

func writeFrameFD(fd int, data []byte) error {
	for {
		_, err := unix.Write(fd, data)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			if werr := waitWritable(fd); werr != nil {
				return werr
			}
			continue
		}
		return &KernelIoError{Op: "write", Err: err}
	}
}

// waitWritable blocks until fd is writable or poll fails, so WriteFrame
// can retry a would-block write without busy-looping.
func waitWritable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return &KernelIoError{Op: "poll", Err: err}
		}
		if n > 0 {
			return nil
		}
	}
}
