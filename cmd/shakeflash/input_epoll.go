//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// useMonotonicClock asks evdev to stamp events from f with CLOCK_MONOTONIC
// instead of wall time.
func useMonotonicClock(f *os.File) error {
	if err := unix.IoctlSetPointerInt(int(f.Fd()), EVIOCSCLOCKID, unix.CLOCK_MONOTONIC); err != nil {
		return fmt.Errorf("EVIOCSCLOCKID %s: %w", f.Name(), err)
	}
	return nil
}

// readInputEventsEpoll multiplexes every device on one goroutine. Each wakeup
// drains up to inputReadBatch events from the ready device. A device that
// hangs up or fails is fatal: the gesture axis is gone, so the daemon exits
// and its supervisor restarts it.
func readInputEventsEpoll(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- errors.New("no input devices provided")
		return
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	byFD := make(map[int32]*os.File, len(files))
	for _, f := range files {
		fd := int32(f.Fd())
		byFD[fd] = f
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: fd}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
			readErr <- fmt.Errorf("watch %s: %w", f.Name(), err)
			return
		}
	}

	ready := make([]unix.EpollEvent, len(files))
	buf := make([]byte, inputEventSize*inputReadBatch)

	for {
		n, err := unix.EpollWait(epfd, ready, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for _, r := range ready[:n] {
			f := byFD[r.Fd]
			if r.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				readErr <- fmt.Errorf("%s: device error or hangup", f.Name())
				return
			}

			got, err := unix.Read(int(r.Fd), buf)
			if err != nil {
				readErr <- fmt.Errorf("read %s: %w", f.Name(), err)
				return
			}
			for off := 0; off+inputEventSize <= got; off += inputEventSize {
				events <- decodeInputEvent(buf[off:])
			}
		}
	}
}
