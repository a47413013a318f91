package main

import (
	"log/slog"
	"time"
)

// StateBroadcast is an externally visible state change, fanned out to
// websocket clients by runBroadcaster.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastTrigger is emitted once per recognized chop gesture.
type BroadcastTrigger struct {
	ID   string
	AtMS int64 // sample time of the completing edge
	At   time.Time
}

// BroadcastParamChanged is emitted after every parameter write.
type BroadcastParamChanged struct {
	Key         string
	Value       float64
	EngineValue float64
	At          time.Time
}

// BroadcastTorchChanged is emitted when the light switches.
type BroadcastTorchChanged struct {
	On bool
	At time.Time
}

func (BroadcastTrigger) broadcastMarker()      {}
func (BroadcastParamChanged) broadcastMarker() {}
func (BroadcastTorchChanged) broadcastMarker() {}

func nowUTC() time.Time { return time.Now().UTC() }

// newPublisher returns a non-blocking sender for ch. Broadcasts are
// best-effort: when the queue is full they are dropped, never waited on,
// because publishers include the sample loop.
func newPublisher(ch chan<- StateBroadcast, logger *slog.Logger) func(StateBroadcast) {
	return func(b StateBroadcast) {
		select {
		case ch <- b:
		default:
			logger.Warn("broadcast queue full, dropping", "broadcast", b)
		}
	}
}
