package tunable

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Tunable is the type-erased view of a Parameter used by outer surfaces
// (IPC, CLI, websocket) that address parameters by key.
type Tunable interface {
	Key() string
	Label() string
	Bounds() (min, max, def float64)
	Float() float64
	EngineValue() float64
	Validate(v float64) error
	SetFloat(v float64) error
	ResetValue() error
	OnChange(fn func(v float64)) (cancel func())
}

// Erase wraps p as a Tunable.
func Erase[T Number](p *Parameter[T]) Tunable {
	return erased[T]{p}
}

type erased[T Number] struct {
	p *Parameter[T]
}

func (e erased[T]) Key() string   { return e.p.Key() }
func (e erased[T]) Label() string { return e.p.Label() }

func (e erased[T]) Bounds() (float64, float64, float64) {
	s := e.p.Spec()
	return float64(s.Min), float64(s.Max), float64(s.Default)
}

func (e erased[T]) Float() float64       { return float64(e.p.Get()) }
func (e erased[T]) EngineValue() float64 { return e.p.EngineValue() }

func (e erased[T]) Validate(v float64) error {
	min, max, _ := e.Bounds()
	if math.IsNaN(v) || v < min || v > max {
		return fmt.Errorf("%s=%g not in [%g, %g]: %w", e.p.Key(), v, min, max, ErrOutOfRange)
	}
	return e.checkIntegral(v)
}

// SetFloat stores v without a range check. Integer parameters reject
// fractional values instead of truncating them.
func (e erased[T]) SetFloat(v float64) error {
	if err := e.checkIntegral(v); err != nil {
		return err
	}
	return e.p.Set(T(v))
}

func (e erased[T]) checkIntegral(v float64) error {
	half := 0.5
	if float64(T(half)) != 0 {
		return nil
	}
	if v != math.Trunc(v) {
		return fmt.Errorf("%s=%g: %w", e.p.Key(), v, ErrNotIntegral)
	}
	return nil
}
func (e erased[T]) ResetValue() error        { return e.p.Reset() }

func (e erased[T]) OnChange(fn func(float64)) func() {
	return e.p.Subscribe(func(v T) { fn(float64(v)) })
}

// Registry holds parameters by key in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]Tunable
}

// NewRegistry returns a registry containing ts.
func NewRegistry(ts ...Tunable) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Tunable)}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Keys must be unique.
func (r *Registry) Register(t Tunable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[t.Key()]; dup {
		return fmt.Errorf("tunable: duplicate key %q", t.Key())
	}
	r.byKey[t.Key()] = t
	r.order = append(r.order, t.Key())
	return nil
}

// Lookup returns the parameter registered under key.
func (r *Registry) Lookup(key string) (Tunable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}
	return t, nil
}

// List returns all parameters in registration order.
func (r *Registry) List() []Tunable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tunable, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// ResetAll resets every parameter, returning the joined persistence errors.
func (r *Registry) ResetAll() error {
	var errs []error
	for _, t := range r.List() {
		if err := t.ResetValue(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
