// Package tunable provides named numeric settings that can be changed live
// while other goroutines keep reading them.
//
// A Parameter is a synchronized current-value cell: readers always see the
// latest fully-written value, writers persist through a Store and notify
// observers synchronously. There is no event queue; observers that miss an
// update can always call Get.
package tunable

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Number is the set of value types a Parameter can hold.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

var (
	// ErrOutOfRange is returned by Validate for values outside [Min, Max].
	ErrOutOfRange = errors.New("value out of range")

	// ErrUnknownKey is returned by Registry lookups for unregistered keys.
	ErrUnknownKey = errors.New("unknown parameter key")

	// ErrNotIntegral is returned for fractional values given to an
	// integer parameter.
	ErrNotIntegral = errors.New("value is not an integer")
)

// Spec describes a parameter: identity, valid range, default and the factor
// that converts the display unit into the unit the engine consumes.
type Spec[T Number] struct {
	Key     string
	Label   string
	Min     T
	Max     T
	Default T

	// Factor multiplies the display value to produce EngineValue
	// (e.g. 1000 for seconds -> milliseconds). Zero means 1.
	Factor float64
}

// Parameter is a live-tunable setting. All methods are safe for concurrent use.
type Parameter[T Number] struct {
	spec  Spec[T]
	store Store

	cur atomic.Pointer[T]

	// mu serializes writers and guards observers so that persist and
	// notify happen in write order.
	mu        sync.Mutex
	observers []*observer[T]
}

type observer[T Number] struct {
	fn func(T)
}

// New creates a Parameter, loading its value from store. A missing key yields
// the default. Loaded values are used as-is, even when outside [Min, Max].
func New[T Number](spec Spec[T], store Store) (*Parameter[T], error) {
	if spec.Key == "" {
		return nil, errors.New("tunable: empty key")
	}
	if spec.Factor == 0 {
		spec.Factor = 1
	}
	if store == nil {
		store = NewMemoryStore()
	}

	p := &Parameter[T]{spec: spec, store: store}
	v := spec.Default

	stored, ok, err := store.Load(spec.Key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", spec.Key, err)
	}
	if ok {
		v = T(stored)
	}
	p.cur.Store(&v)
	return p, nil
}

// Key returns the persistence key.
func (p *Parameter[T]) Key() string { return p.spec.Key }

// Label returns the human-readable label.
func (p *Parameter[T]) Label() string { return p.spec.Label }

// Spec returns the parameter description.
func (p *Parameter[T]) Spec() Spec[T] { return p.spec }

// Get returns the current display-unit value.
func (p *Parameter[T]) Get() T {
	return *p.cur.Load()
}

// EngineValue returns Get() expressed in engine units.
func (p *Parameter[T]) EngineValue() float64 {
	return float64(p.Get()) * p.spec.Factor
}

// InRange reports whether v lies within [Min, Max].
func (p *Parameter[T]) InRange(v T) bool {
	return v >= p.spec.Min && v <= p.spec.Max
}

// Set stores v as the current value, persists it and notifies observers.
//
// v is not clamped; callers that accept user input should check InRange
// first. The returned error only reports a persistence failure: the value is
// current and observers have run either way.
func (p *Parameter[T]) Set(v T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	nv := v
	p.cur.Store(&nv)

	err := p.store.Save(p.spec.Key, float64(v))

	for _, o := range p.observers {
		o.fn(v)
	}

	if err != nil {
		return fmt.Errorf("persist %s: %w", p.spec.Key, err)
	}
	return nil
}

// Reset restores the default value.
func (p *Parameter[T]) Reset() error {
	return p.Set(p.spec.Default)
}

// Subscribe registers fn to be called synchronously, on the writer's
// goroutine, after every Set. The returned function removes the observer.
//
// Observers must not call Set on the same parameter.
func (p *Parameter[T]) Subscribe(fn func(T)) (cancel func()) {
	o := &observer[T]{fn: fn}

	p.mu.Lock()
	p.observers = append(p.observers, o)
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, x := range p.observers {
				if x == o {
					p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
					return
				}
			}
		})
	}
}
