package main

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"shakeflash/tunable"
)

func newReplayParams(t *testing.T) *paramSet {
	t.Helper()
	ps, err := newParamSet(tunable.NewMemoryStore(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("newParamSet: %v", err)
	}
	return ps
}

const chopCSV = `t_ms,x
0,30
100,-30
200,30
300,-30
310,30
`

func TestReplaySamples_PrintsTriggers(t *testing.T) {
	var out bytes.Buffer
	res, err := replaySamples(strings.NewReader(chopCSV), newReplayParams(t), &out, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("replaySamples: %v", err)
	}
	if res.Samples != 5 || res.Triggers != 1 {
		t.Fatalf("result = %+v, want 5 samples and 1 trigger", res)
	}
	if !strings.Contains(out.String(), "trigger at 300 ms") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestReplaySamples_CommentsAndNoHeader(t *testing.T) {
	in := "# captured on a desk\n0, 30\n100, -30\n"
	res, err := replaySamples(strings.NewReader(in), newReplayParams(t), &bytes.Buffer{}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("replaySamples: %v", err)
	}
	if res.Samples != 2 || res.Triggers != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestReplaySamples_RejectsBadRows(t *testing.T) {
	for _, in := range []string{
		"0,30\nlater,-30\n",
		"0,30\n100\n",
	} {
		if _, err := replaySamples(strings.NewReader(in), newReplayParams(t), &bytes.Buffer{}, slog.New(slog.DiscardHandler)); err == nil {
			t.Fatalf("replaySamples(%q): expected error", in)
		}
	}
}

func TestApplyOverride(t *testing.T) {
	ps := newReplayParams(t)

	if err := applyOverride(ps, "shakeForceThreshold = 40"); err != nil {
		t.Fatalf("applyOverride: %v", err)
	}
	if got := ps.threshold.Get(); got != 40 {
		t.Fatalf("threshold = %v, want 40", got)
	}

	// 30 no longer clears the threshold.
	res, err := replaySamples(strings.NewReader(chopCSV), ps, &bytes.Buffer{}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("replaySamples: %v", err)
	}
	if res.Triggers != 0 {
		t.Fatalf("triggers = %d, want 0", res.Triggers)
	}

	if err := applyOverride(ps, "cooldownTime=5"); !errors.Is(err, tunable.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if err := applyOverride(ps, "nope=1"); !errors.Is(err, tunable.ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}
	if err := applyOverride(ps, "cooldownTime"); err == nil {
		t.Fatalf("expected error for missing value")
	}
}

func TestCopySettings_LeavesSourceUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	src, err := OpenYAMLStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := src.Save(keyCooldownTime, 0.9); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mem := tunable.NewMemoryStore()
	if err := copySettings(SettingsConfig{Backend: backendYAML, Path: path}, mem); err != nil {
		t.Fatalf("copySettings: %v", err)
	}
	ps, err := newParamSet(mem, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("newParamSet: %v", err)
	}
	if got := ps.cooldown.Get(); got != 0.9 {
		t.Fatalf("cooldown = %v, want 0.9", got)
	}

	if err := ps.cooldown.Set(0.2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	reopened, err := OpenYAMLStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok, _ := reopened.Load(keyCooldownTime); !ok || v != 0.9 {
		t.Fatalf("stored cooldown = %v (%v), want 0.9", v, ok)
	}
}
