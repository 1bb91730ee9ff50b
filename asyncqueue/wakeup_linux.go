//go:build linux

package asyncqueue

import (
	"time"

	"golang.org/x/sys/unix"
)

// eventfdNotifier wakes a blocked Iterate call via a Linux eventfd,
// polled with a bounded timeout. Grounded directly on the teacher event
// loop's wakeup_linux.go, which uses the same eventfd-plus-poll idiom to
// wake its run loop from foreign goroutines.
type eventfdNotifier struct {
	fd int
}

func newNotifier() notifier {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return newChanNotifier()
	}
	return &eventfdNotifier{fd: fd}
}

func (n *eventfdNotifier) notify() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(n.fd, buf[:])
}

func (n *eventfdNotifier) wait(timeout time.Duration) bool {
	fds := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	nReady, err := unix.Poll(fds, ms)
	if err != nil || nReady <= 0 {
		return false
	}
	var buf [8]byte
	_, _ = unix.Read(n.fd, buf[:])
	return true
}

func (n *eventfdNotifier) close() error {
	return unix.Close(n.fd)
}
