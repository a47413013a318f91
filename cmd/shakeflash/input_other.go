//go:build !linux

package main

import (
	"errors"
	"os"
)

func readInputEventsEpoll(_ []*os.File, _ chan<- inputEvent, readErr chan<- error) {
	readErr <- errors.New("epoll reader is only available on linux; use input.reader: goroutine")
}

func useMonotonicClock(_ *os.File) error {
	return errors.ErrUnsupported
}
