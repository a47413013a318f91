package main

import (
	"fmt"
	"log/slog"

	"shakeflash/gesture"
	"shakeflash/tunable"
)

// paramSet holds the daemon's live-tunable parameters.
type paramSet struct {
	threshold    *tunable.Parameter[float64]
	maxGap       *tunable.Parameter[float64]
	cooldown     *tunable.Parameter[float64]
	torchTimeout *tunable.Parameter[float64]

	registry *tunable.Registry
}

func paramSpecs() []tunable.Spec[float64] {
	return []tunable.Spec[float64]{
		{
			Key:     keyShakeForceThreshold,
			Label:   "Shake force threshold",
			Min:     1.0,
			Max:     50.0,
			Default: 16.0,
			Factor:  1,
		},
		{
			Key:     keyMaxShakeGap,
			Label:   "Max time between consecutive shakes (seconds)",
			Min:     0.1,
			Max:     1.0,
			Default: 0.5,
			Factor:  1000,
		},
		{
			Key:     keyCooldownTime,
			Label:   "Cooldown between triggers (seconds)",
			Min:     0.1,
			Max:     1.0,
			Default: 0.5,
			Factor:  1000,
		},
		{
			Key:     keyFlashlightTimeout,
			Label:   "How long before flashlight turns off automatically to conserve battery (minutes)",
			Min:     1,
			Max:     120,
			Default: 15,
			Factor:  60000,
		},
	}
}

// newParamSet loads every parameter from store. Stored values outside their
// range are kept and logged.
func newParamSet(store tunable.Store, logger *slog.Logger) (*paramSet, error) {
	specs := paramSpecs()
	ps := make([]*tunable.Parameter[float64], len(specs))
	for i, spec := range specs {
		p, err := tunable.New(spec, store)
		if err != nil {
			return nil, fmt.Errorf("load parameter %s: %w", spec.Key, err)
		}
		if !p.InRange(p.Get()) {
			logger.Warn("stored parameter out of range",
				"key", spec.Key, "value", p.Get(), "min", spec.Min, "max", spec.Max)
		}
		ps[i] = p
	}

	set := &paramSet{
		threshold:    ps[0],
		maxGap:       ps[1],
		cooldown:     ps[2],
		torchTimeout: ps[3],
	}

	reg, err := tunable.NewRegistry(
		tunable.Erase(set.threshold),
		tunable.Erase(set.maxGap),
		tunable.Erase(set.cooldown),
		tunable.Erase(set.torchTimeout),
	)
	if err != nil {
		return nil, err
	}
	set.registry = reg
	return set, nil
}

// recognizerParams exposes the gesture parameters to the recognizer.
func (s *paramSet) recognizerParams() gesture.Params {
	return gesture.Params{
		Threshold: s.threshold,
		MaxGap:    s.maxGap,
		Cooldown:  s.cooldown,
	}
}

// paramView is the JSON shape of a parameter on IPC and websocket.
type paramView struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Value       float64 `json:"value"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Default     float64 `json:"default"`
	EngineValue float64 `json:"engine_value"`
}

func viewOf(t tunable.Tunable) paramView {
	lo, hi, def := t.Bounds()
	return paramView{
		Key:         t.Key(),
		Label:       t.Label(),
		Value:       t.Float(),
		Min:         lo,
		Max:         hi,
		Default:     def,
		EngineValue: t.EngineValue(),
	}
}

func (s *paramSet) views() []paramView {
	list := s.registry.List()
	out := make([]paramView, 0, len(list))
	for _, t := range list {
		out = append(out, viewOf(t))
	}
	return out
}

// watch publishes a BroadcastParamChanged for every change. The returned
// func removes the observers.
func (s *paramSet) watch(publish func(StateBroadcast)) func() {
	var cancels []func()
	for _, t := range s.registry.List() {
		t := t
		cancels = append(cancels, t.OnChange(func(v float64) {
			publish(BroadcastParamChanged{
				Key:         t.Key(),
				Value:       v,
				EngineValue: t.EngineValue(),
				At:          nowUTC(),
			})
		}))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
