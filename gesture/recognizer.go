// Package gesture recognizes a "chop" motion, four alternating direction
// changes on one accelerometer axis, and turns it into a debounced trigger.
//
// Thresholding converts the acceleration into a ternary direction signal.
// Only genuine direction changes are recorded, so detection does not depend
// on the sample rate. A gesture must complete before the inter-shake timeout
// expires, and after a trigger all input is ignored for the cooldown.
package gesture

import (
	"math"
	"time"
)

// Kind identifies the sensor that produced a Sample.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAccelerometer
)

// Sample is one reading of the gesture axis.
type Sample struct {
	Kind Kind
	// At is a monotonic timestamp; only differences between samples matter.
	At time.Duration
	// X is the acceleration on the gesture axis.
	X float64
}

// EngineValuer supplies a parameter in engine units. It is read on every
// sample, so implementations must be safe to call while being updated.
type EngineValuer interface {
	EngineValue() float64
}

// Params are the live parameters the recognizer consults.
type Params struct {
	// Threshold is the minimum |X| that counts as motion.
	Threshold EngineValuer
	// MaxGap is the inter-shake timeout in milliseconds.
	MaxGap EngineValuer
	// Cooldown is the dead time after a trigger in milliseconds.
	Cooldown EngineValuer
}

// Direction values.
const (
	DirNone int8 = 0
	DirUp   int8 = 1
	DirDown int8 = -1
)

var (
	chopUp   = [windowCap]int8{DirUp, DirDown, DirUp, DirDown}
	chopDown = [windowCap]int8{DirDown, DirUp, DirDown, DirUp}
)

// Recognizer is the chop state machine.
//
// Process is not safe for concurrent use; samples must be delivered from a
// single goroutine. The parameters may change concurrently.
type Recognizer struct {
	params    Params
	onTrigger func()

	pattern       window
	lastDirection int8
	patternStart  time.Duration
	lastTrigger   time.Duration
	triggered     bool
	triggers      uint64
}

// NewRecognizer returns a recognizer reading params on every sample and
// calling onTrigger (which may be nil) synchronously on each match.
func NewRecognizer(params Params, onTrigger func()) *Recognizer {
	return &Recognizer{
		params:    params,
		onTrigger: onTrigger,
	}
}

// Process feeds one sample and reports whether it completed a gesture.
func (r *Recognizer) Process(s Sample) bool {
	if s.Kind != KindAccelerometer || math.IsNaN(s.X) || math.IsInf(s.X, 0) {
		return false
	}
	t := s.At

	if msSince(t, r.patternStart) > r.params.MaxGap.EngineValue() {
		r.pattern.clear()
	}

	if r.triggered && msSince(t, r.lastTrigger) < r.params.Cooldown.EngineValue() {
		return false
	}

	dir := classify(s.X, r.params.Threshold.EngineValue())
	if dir != DirNone && dir != r.lastDirection {
		r.lastDirection = dir
		r.patternStart = t
		r.pattern.push(dir)
	}

	if !r.pattern.equals(chopUp) && !r.pattern.equals(chopDown) {
		return false
	}

	r.lastTrigger = t
	r.triggered = true
	r.triggers++
	r.pattern.clear()
	if r.onTrigger != nil {
		r.onTrigger()
	}
	return true
}

func classify(x, threshold float64) int8 {
	switch {
	case x < -threshold:
		return DirDown
	case x > threshold:
		return DirUp
	default:
		return DirNone
	}
}

func msSince(now, then time.Duration) float64 {
	return float64(now-then) / float64(time.Millisecond)
}

// State is a point-in-time copy of the recognizer state.
type State struct {
	Pattern       []int8
	LastDirection int8
	PatternStart  time.Duration
	LastTrigger   time.Duration
	Triggered     bool
	Triggers      uint64
}

// Snapshot returns a copy of the current state. Like Process, it must be
// called from the sample goroutine.
func (r *Recognizer) Snapshot() State {
	return State{
		Pattern:       r.pattern.Slice(),
		LastDirection: r.lastDirection,
		PatternStart:  r.patternStart,
		LastTrigger:   r.lastTrigger,
		Triggered:     r.triggered,
		Triggers:      r.triggers,
	}
}
