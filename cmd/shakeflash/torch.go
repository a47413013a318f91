package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TorchDriver switches the physical light.
type TorchDriver interface {
	SetTorch(on bool) error
}

// engineValuer is satisfied by tunable parameters.
type engineValuer interface {
	EngineValue() float64
}

// Torch owns the light state and the auto-off timer.
//
// The auto-off delay is read from the timeout parameter (milliseconds) every
// time the light is switched on, so changing it affects the next On.
type Torch struct {
	driver   TorchDriver
	timeout  engineValuer
	onChange func(on bool)
	logger   *slog.Logger

	mu    sync.Mutex
	on    bool
	timer *time.Timer
	// gen invalidates timers that fired after the state already changed.
	gen uint64
}

// NewTorch returns a torch that reports every state change to onChange
// (which may be nil). onChange runs under the torch lock and must not call
// back into the Torch.
func NewTorch(driver TorchDriver, timeout engineValuer, onChange func(bool), logger *slog.Logger) *Torch {
	return &Torch{
		driver:   driver,
		timeout:  timeout,
		onChange: onChange,
		logger:   logger,
	}
}

// ForceOff switches the light off regardless of the believed state. The
// daemon calls it at startup since a previous run may have left it on.
func (t *Torch) ForceOff() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTimerLocked()
	if err := t.driver.SetTorch(false); err != nil {
		return fmt.Errorf("torch off: %w", err)
	}
	t.setLocked(false)
	return nil
}

// On switches the light on and re-arms the auto-off timer.
func (t *Torch) On() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onLocked()
}

// Off switches the light off and cancels the auto-off timer.
func (t *Torch) Off() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offLocked()
}

// Toggle flips the light and returns the new state.
func (t *Torch) Toggle() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.on {
		err = t.offLocked()
	} else {
		err = t.onLocked()
	}
	return t.on, err
}

// State reports whether the light is on.
func (t *Torch) State() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}

func (t *Torch) onLocked() error {
	if err := t.driver.SetTorch(true); err != nil {
		return fmt.Errorf("torch on: %w", err)
	}
	t.setLocked(true)
	t.armLocked()
	return nil
}

func (t *Torch) offLocked() error {
	if err := t.driver.SetTorch(false); err != nil {
		return fmt.Errorf("torch off: %w", err)
	}
	t.stopTimerLocked()
	t.setLocked(false)
	return nil
}

func (t *Torch) setLocked(on bool) {
	changed := t.on != on
	t.on = on
	if changed && t.onChange != nil {
		t.onChange(on)
	}
}

func (t *Torch) armLocked() {
	t.stopTimerLocked()
	if t.timeout == nil {
		return
	}

	ms := t.timeout.EngineValue()
	if ms <= 0 {
		return
	}
	d := time.Duration(ms * float64(time.Millisecond))
	gen := t.gen
	t.timer = time.AfterFunc(d, func() { t.expire(gen) })
}

func (t *Torch) stopTimerLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Torch) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.on {
		return
	}
	t.logger.Info("torch auto-off")
	if err := t.offLocked(); err != nil {
		t.logger.Error("torch auto-off failed", "error", err)
	}
}

// ============================================================================
// Drivers
// ============================================================================

// sysfsTorch drives an LED class device (/sys/class/leds/<name>).
type sysfsTorch struct {
	dir string
}

func newSysfsTorch(dir string) *sysfsTorch {
	return &sysfsTorch{dir: dir}
}

func (s *sysfsTorch) SetTorch(on bool) error {
	level := []byte("0")
	if on {
		max, err := os.ReadFile(filepath.Join(s.dir, "max_brightness"))
		if err != nil {
			return fmt.Errorf("read max_brightness: %w", err)
		}
		level = bytes.TrimSpace(max)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "brightness"), level, 0o644); err != nil {
		return fmt.Errorf("write brightness: %w", err)
	}
	return nil
}

// logTorch only logs. Useful on machines without a controllable LED.
type logTorch struct {
	logger *slog.Logger
}

func (l logTorch) SetTorch(on bool) error {
	l.logger.Info("torch", "on", on)
	return nil
}

func newTorchDriver(cfg TorchConfig, logger *slog.Logger) (TorchDriver, error) {
	switch cfg.Driver {
	case driverSysfs:
		return newSysfsTorch(cfg.LED), nil
	case driverLog:
		return logTorch{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown torch driver %q", cfg.Driver)
	}
}
