package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// IPC requests
// ============================================================================
// Requests travel as line-delimited JSON envelopes: {"type": "...", "data": {...}}.
// ============================================================================

// Request is a marker interface for everything a client can ask the daemon.
type Request interface {
	requestMarker()
}

// ParamList lists every parameter with its bounds and current value.
type ParamList struct{}

// ParamGet reads one parameter.
type ParamGet struct {
	Key string `json:"key"`
}

// ParamSet writes one parameter. Out-of-range values are rejected.
type ParamSet struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// ParamReset restores one parameter, or all of them when Key is empty.
type ParamReset struct {
	Key string `json:"key,omitempty"`
}

// TorchToggle flips the light.
type TorchToggle struct{}

// StatusQuery returns the recognizer and torch state.
type StatusQuery struct{}

func (ParamList) requestMarker()   {}
func (ParamGet) requestMarker()    {}
func (ParamSet) requestMarker()    {}
func (ParamReset) requestMarker()  {}
func (TorchToggle) requestMarker() {}
func (StatusQuery) requestMarker() {}

// RequestEnvelope is the wire form of a Request.
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalRequest decodes one envelope into a typed Request.
func UnmarshalRequest(b []byte) (Request, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	decode := func(dst any) error {
		if len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case "param_list":
		return ParamList{}, nil

	case "param_get":
		var r ParamGet
		if err := decode(&r); err != nil {
			return nil, err
		}
		if r.Key == "" {
			return nil, errors.New("param_get: key is required")
		}
		return r, nil

	case "param_set":
		var r ParamSet
		if err := decode(&r); err != nil {
			return nil, err
		}
		if r.Key == "" {
			return nil, errors.New("param_set: key is required")
		}
		return r, nil

	case "param_reset":
		var r ParamReset
		if err := decode(&r); err != nil {
			return nil, err
		}
		return r, nil

	case "torch_toggle":
		return TorchToggle{}, nil

	case "status":
		return StatusQuery{}, nil

	default:
		return nil, fmt.Errorf("unknown request type: %q", env.Type)
	}
}

// MarshalRequest encodes r into an envelope.
func MarshalRequest(r Request) ([]byte, error) {
	var env RequestEnvelope

	switch r := r.(type) {
	case ParamList:
		env.Type = "param_list"
	case ParamGet:
		env.Type = "param_get"
	case ParamSet:
		env.Type = "param_set"
	case ParamReset:
		env.Type = "param_reset"
	case TorchToggle:
		env.Type = "torch_toggle"
	case StatusQuery:
		env.Type = "status"
	default:
		return nil, fmt.Errorf("unsupported request type: %T", r)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	if string(data) != "{}" {
		env.Data = data
	}
	return json.Marshal(env)
}
