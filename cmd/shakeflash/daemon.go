package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"shakeflash/gesture"
)

// ============================================================================
// Sample loop
// ============================================================================
//
// The recognizer is owned by exactly one goroutine (runDaemon). Everything
// else talks to it through channels:
//   - samples arrive from the input pump
//   - status requests carry a reply channel
//   - triggers leave through a buffered channel to the effects loop, so the
//     torch driver and websocket fan-out never stall sample processing
//
// Parameters are read by the recognizer on every sample and may be written
// concurrently from IPC.
// ============================================================================

// statusRequest asks the sample loop for a snapshot.
type statusRequest struct {
	Reply chan<- statusSnapshot
}

// statusSnapshot is the JSON payload for IPC "status" and WS "state_init".
type statusSnapshot struct {
	Pattern       []int8      `json:"pattern"`
	LastDirection int8        `json:"last_direction"`
	Triggered     bool        `json:"triggered"`
	LastTriggerMS int64       `json:"last_trigger_ms"`
	Triggers      uint64      `json:"triggers"`
	Samples       uint64      `json:"samples"`
	TorchOn       bool        `json:"torch_on"`
	Params        []paramView `json:"params"`
}

// runDaemon feeds samples to the recognizer until ctx is canceled or the
// samples channel is closed.
func runDaemon(
	ctx context.Context,
	samples <-chan gesture.Sample,
	status <-chan statusRequest,
	params *paramSet,
	torch *Torch,
	triggers chan<- BroadcastTrigger,
	logger *slog.Logger,
) {
	var (
		current gesture.Sample
		count   uint64
	)

	rec := gesture.NewRecognizer(params.recognizerParams(), func() {
		trig := BroadcastTrigger{
			ID:   uuid.NewString(),
			AtMS: current.At.Milliseconds(),
			At:   nowUTC(),
		}
		select {
		case triggers <- trig:
		default:
			logger.Warn("trigger queue full, dropping trigger", "id", trig.ID)
		}
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case s, ok := <-samples:
			if !ok {
				logger.Info("daemon stopping (samples channel closed)")
				return
			}
			count++
			current = s
			rec.Process(s)

		case req := <-status:
			st := rec.Snapshot()
			snap := statusSnapshot{
				Pattern:       st.Pattern,
				LastDirection: st.LastDirection,
				Triggered:     st.Triggered,
				LastTriggerMS: st.LastTrigger.Milliseconds(),
				Triggers:      st.Triggers,
				Samples:       count,
				TorchOn:       torch.State(),
				Params:        params.views(),
			}
			// Reply channels are buffered by the requester.
			select {
			case req.Reply <- snap:
			default:
			}
		}
	}
}

// runEffects executes trigger side effects off the sample loop: it announces
// the trigger and toggles the light.
func runEffects(ctx context.Context, triggers <-chan BroadcastTrigger, torch *Torch, publish func(StateBroadcast), logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case trig := <-triggers:
			logger.Info("trigger fired", "id", trig.ID, "at_ms", trig.AtMS)
			publish(trig)

			on, err := torch.Toggle()
			if err != nil {
				logger.Error("torch toggle failed", "id", trig.ID, "error", err)
				continue
			}
			logger.Debug("torch toggled", "id", trig.ID, "on", on)
		}
	}
}

// pumpSamples assembles input events into samples for the sample loop.
func pumpSamples(ctx context.Context, events <-chan inputEvent, asm *sampleAssembler, samples chan<- gesture.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s, ok := asm.feed(ev)
			if !ok {
				continue
			}
			select {
			case samples <- s:
			case <-ctx.Done():
				return
			}
		}
	}
}

// requestStatus asks the sample loop for a snapshot, giving up after
// statusTimeout or when ctx ends.
func requestStatus(ctx context.Context, status chan<- statusRequest) (statusSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	reply := make(chan statusSnapshot, 1)
	select {
	case status <- statusRequest{Reply: reply}:
	case <-ctx.Done():
		return statusSnapshot{}, ctx.Err()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return statusSnapshot{}, ctx.Err()
	}
}

// sampleTime converts a millisecond offset into a sample timestamp.
func sampleTime(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
