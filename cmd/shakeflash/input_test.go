package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"shakeflash/gesture"
)

func absEvent(ms int64, code uint16, value int32) inputEvent {
	return inputEvent{Sec: ms / 1000, Usec: (ms % 1000) * 1000, Type: EV_ABS, Code: code, Value: value}
}

func synEvent(ms int64) inputEvent {
	return inputEvent{Sec: ms / 1000, Usec: (ms % 1000) * 1000, Type: EV_SYN, Code: SYN_REPORT}
}

func TestReadInputEvents_DecodesStream(t *testing.T) {
	want := []inputEvent{
		absEvent(1000, ABS_X, -42),
		synEvent(1000),
	}

	var buf bytes.Buffer
	for _, ev := range want {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	events := make(chan inputEvent, len(want))
	readErr := make(chan error, 1)
	go readInputEvents(&buf, events, readErr)

	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}

	select {
	case err := <-readErr:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("readErr = %v, want EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for reader to stop")
	}
}

func TestReadInputEvents_ReassemblesSplitReads(t *testing.T) {
	want := []inputEvent{absEvent(5, ABS_Y, 7), synEvent(5), absEvent(25, ABS_Y, -7)}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	events := make(chan inputEvent, len(want))
	readErr := make(chan error, 1)
	go readInputEvents(iotest.OneByteReader(&buf), events, readErr)

	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
	if err := <-readErr; !errors.Is(err, io.EOF) {
		t.Fatalf("readErr = %v, want EOF", err)
	}
}

func TestSampleAssembler_EmitsOnSynReport(t *testing.T) {
	a := newSampleAssembler(ABS_X, 0.5)

	if _, ok := a.feed(synEvent(5000)); ok {
		t.Fatalf("no sample expected before the axis has been seen")
	}
	if _, ok := a.feed(absEvent(5010, ABS_X, 30)); ok {
		t.Fatalf("ABS alone must not emit a sample")
	}
	if _, ok := a.feed(absEvent(5010, ABS_Y, 999)); ok {
		t.Fatalf("other axes must not emit a sample")
	}

	s, ok := a.feed(synEvent(5010))
	if !ok {
		t.Fatalf("expected a sample on SYN_REPORT")
	}
	want := gesture.Sample{Kind: gesture.KindAccelerometer, At: 10 * time.Millisecond, X: 15}
	if s != want {
		t.Fatalf("sample = %+v, want %+v", s, want)
	}

	// A frame without an X update repeats the last value.
	a.feed(absEvent(5020, ABS_Y, 1))
	s, ok = a.feed(synEvent(5020))
	if !ok || s.X != 15 || s.At != 20*time.Millisecond {
		t.Fatalf("repeat sample = %+v ok=%v", s, ok)
	}
}

func TestSampleAssembler_IgnoresOtherSynCodes(t *testing.T) {
	a := newSampleAssembler(ABS_Z, 1)
	a.feed(absEvent(0, ABS_Z, 3))

	// SYN_DROPPED is code 3.
	if _, ok := a.feed(inputEvent{Type: EV_SYN, Code: 3}); ok {
		t.Fatalf("only SYN_REPORT should emit")
	}
}

func TestSampleAssembler_BackwardClockStepKeepsRecognizerLive(t *testing.T) {
	a := newSampleAssembler(ABS_X, 1)
	ps := newReplayParams(t)
	fired := 0
	recog := gesture.NewRecognizer(ps.recognizerParams(), func() { fired++ })

	chop := func(startMS int64) {
		for i, x := range []int32{30, -30, 30, -30} {
			ms := startMS + int64(i)*100
			a.feed(absEvent(ms, ABS_X, x))
			if s, ok := a.feed(synEvent(ms)); ok {
				recog.Process(s)
			}
		}
	}

	const wall = 1_700_000_000_000
	chop(wall)
	if fired != 1 {
		t.Fatalf("after first chop: fired = %d, want 1", fired)
	}

	// Wall clock stepped back an hour; a second later the user chops again.
	stepped := wall - 3605*1000
	a.feed(absEvent(stepped, ABS_X, 0))
	s, ok := a.feed(synEvent(stepped))
	if !ok || s.At != 300*time.Millisecond {
		t.Fatalf("sample after step = %+v ok=%v, want At=300ms", s, ok)
	}
	chop(stepped + 1000)
	if fired != 2 {
		t.Fatalf("after second chop: fired = %d, want 2", fired)
	}
}
