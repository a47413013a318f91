package main

import (
	"encoding/binary"
	"io"
	"time"

	"shakeflash/gesture"
)

// inputEvent mirrors struct input_event on 64-bit Linux:
// struct timeval time; __u16 type; __u16 code; __s32 value.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const (
	inputEventSize = 24

	// inputReadBatch is how many events one read may return.
	inputReadBatch = 64
)

func (ev inputEvent) timestamp() time.Duration {
	return time.Duration(ev.Sec)*time.Second + time.Duration(ev.Usec)*time.Microsecond
}

// decodeInputEvent decodes one event from the first inputEventSize bytes of b.
func decodeInputEvent(b []byte) inputEvent {
	le := binary.LittleEndian
	return inputEvent{
		Sec:   int64(le.Uint64(b[0:8])),
		Usec:  int64(le.Uint64(b[8:16])),
		Type:  le.Uint16(b[16:18]),
		Code:  le.Uint16(b[18:20]),
		Value: int32(le.Uint32(b[20:24])),
	}
}

// readInputEvents decodes events from r until a read fails, then reports the
// error on readErr. Character devices return whole events; other readers may
// split one across reads, so a partial tail is carried over.
func readInputEvents(r io.Reader, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, inputEventSize*inputReadBatch)
	have := 0

	for {
		n, err := r.Read(buf[have:])
		have += n

		whole := have - have%inputEventSize
		for off := 0; off < whole; off += inputEventSize {
			events <- decodeInputEvent(buf[off:])
		}
		have = copy(buf, buf[whole:have])

		if err != nil {
			readErr <- err
			return
		}
	}
}

// sampleAssembler turns a stream of evdev events into gesture samples.
//
// EV_ABS events on the configured axis update the current value and every
// SYN_REPORT emits it. evdev only reports axes that changed, so a frame
// without an axis event repeats the last value. Sample time is the event
// time relative to the first event seen. Devices are switched to
// CLOCK_MONOTONIC when opened; if the kernel refuses, a backwards step of the
// event clock rebases the origin so sample time never decreases.
type sampleAssembler struct {
	axis  uint16
	scale float64

	started bool
	origin  time.Duration
	last    time.Duration

	value float64
	known bool
}

func newSampleAssembler(axis uint16, scale float64) *sampleAssembler {
	return &sampleAssembler{axis: axis, scale: scale}
}

// feed consumes one event and returns a sample when a frame completes.
func (a *sampleAssembler) feed(ev inputEvent) (gesture.Sample, bool) {
	ts := ev.timestamp()
	if !a.started {
		a.started = true
		a.origin = ts
	}
	if ts-a.origin < a.last {
		a.origin = ts - a.last
	}

	switch ev.Type {
	case EV_ABS:
		if ev.Code == a.axis {
			a.value = float64(ev.Value) * a.scale
			a.known = true
		}
	case EV_SYN:
		if ev.Code == SYN_REPORT && a.known {
			a.last = ts - a.origin
			return gesture.Sample{
				Kind: gesture.KindAccelerometer,
				At:   a.last,
				X:    a.value,
			}, true
		}
	}
	return gesture.Sample{}, false
}
