package gesture

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakeflash/tunable"
)

type fixed float64

func (f fixed) EngineValue() float64 { return float64(f) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func accel(atMS int, x float64) Sample {
	return Sample{Kind: KindAccelerometer, At: ms(atMS), X: x}
}

// newTestRecognizer uses threshold=10, cooldown=1000ms, expiry=500ms.
func newTestRecognizer(t *testing.T) (*Recognizer, *int) {
	t.Helper()
	fired := 0
	r := NewRecognizer(Params{
		Threshold: fixed(10),
		MaxGap:    fixed(500),
		Cooldown:  fixed(1000),
	}, func() { fired++ })
	return r, &fired
}

func TestRecognizer_ChopTriggersOnFourthEdge(t *testing.T) {
	t.Parallel()

	r, fired := newTestRecognizer(t)

	assert.False(t, r.Process(accel(0, 15)))
	assert.False(t, r.Process(accel(100, -15)))
	assert.False(t, r.Process(accel(200, 15)))
	assert.True(t, r.Process(accel(300, -15)))
	assert.Equal(t, 1, *fired)

	st := r.Snapshot()
	assert.Empty(t, st.Pattern)
	assert.Equal(t, ms(300), st.LastTrigger)

	// Cooldown is active until t=1300ms.
	assert.False(t, r.Process(accel(310, 15)))
	assert.Equal(t, 1, *fired)
}

func TestRecognizer_MirroredChopTriggers(t *testing.T) {
	t.Parallel()

	r, fired := newTestRecognizer(t)

	r.Process(accel(0, -20))
	r.Process(accel(100, 20))
	r.Process(accel(200, -20))
	assert.True(t, r.Process(accel(300, 20)))
	assert.Equal(t, 1, *fired)
}

func TestRecognizer_SlowFourthEdgeExpires(t *testing.T) {
	t.Parallel()

	r, fired := newTestRecognizer(t)

	r.Process(accel(0, 20))
	r.Process(accel(100, -20))
	r.Process(accel(200, 20))
	assert.False(t, r.Process(accel(701, -20)))
	assert.Equal(t, 0, *fired)

	st := r.Snapshot()
	assert.Equal(t, []int8{DirDown}, st.Pattern, "pattern restarts from the late edge")
}

func TestRecognizer_ExpiryRunsOnUnclassifiedSamples(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecognizer(t)

	r.Process(accel(0, 20))
	r.Process(accel(100, -20))
	r.Process(accel(650, 0))

	assert.Empty(t, r.Snapshot().Pattern)
}

func TestRecognizer_EachEdgeRefreshesExpiry(t *testing.T) {
	t.Parallel()

	r, fired := newTestRecognizer(t)

	// Whole gesture spans 1200ms but no gap exceeds 500ms.
	r.Process(accel(0, 20))
	r.Process(accel(400, -20))
	r.Process(accel(800, 20))
	assert.True(t, r.Process(accel(1200, -20)))
	assert.Equal(t, 1, *fired)
}

func TestRecognizer_CooldownSuppressesStateUpdates(t *testing.T) {
	t.Parallel()

	r, fired := newTestRecognizer(t)

	r.Process(accel(0, 15))
	r.Process(accel(100, -15))
	r.Process(accel(200, 15))
	require.True(t, r.Process(accel(300, -15)))
	before := r.Snapshot()

	// A full second gesture inside the cooldown is ignored entirely.
	for i, x := range []float64{15, -15, 15, -15} {
		assert.False(t, r.Process(accel(400+i*100, x)))
	}
	after := r.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, *fired)

	// After the cooldown the next gesture is recognized.
	r.Process(accel(1400, 15))
	r.Process(accel(1500, -15))
	r.Process(accel(1600, 15))
	assert.True(t, r.Process(accel(1700, -15)))
	assert.Equal(t, 2, *fired)
}

func TestRecognizer_FirstSamplesNotInCooldown(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecognizer(t)
	r.Process(accel(0, 15))

	assert.Equal(t, []int8{DirUp}, r.Snapshot().Pattern)
}

func TestRecognizer_SubThresholdAndRepeatsIgnored(t *testing.T) {
	t.Parallel()

	r, fired := newTestRecognizer(t)

	r.Process(accel(0, 15))
	r.Process(accel(10, 25))
	r.Process(accel(20, 9.9))
	r.Process(accel(30, -10))
	r.Process(accel(40, 12))

	st := r.Snapshot()
	assert.Equal(t, []int8{DirUp}, st.Pattern)
	assert.Equal(t, DirUp, st.LastDirection)
	assert.Equal(t, 0, *fired)
}

func TestRecognizer_MalformedSamplesIgnored(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecognizer(t)
	r.Process(accel(0, 15))
	before := r.Snapshot()

	assert.False(t, r.Process(Sample{Kind: KindUnknown, At: ms(5000), X: -50}))
	assert.False(t, r.Process(accel(5000, math.NaN())))
	assert.False(t, r.Process(accel(5000, math.Inf(-1))))

	assert.Equal(t, before, r.Snapshot())
}

func TestRecognizer_PatternNeverExceedsFour(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecognizer(t)
	rng := rand.New(rand.NewSource(42))

	at := 0
	for range 5000 {
		at += rng.Intn(300)
		r.Process(accel(at, rng.Float64()*80-40))

		st := r.Snapshot()
		require.LessOrEqual(t, len(st.Pattern), 4)
		for i := 1; i < len(st.Pattern); i++ {
			require.NotEqual(t, st.Pattern[i-1], st.Pattern[i], "adjacent edges must alternate")
		}
	}
}

func TestRecognizer_ReadsLiveParameters(t *testing.T) {
	t.Parallel()

	store := tunable.NewMemoryStore()
	threshold, err := tunable.New(tunable.Spec[float64]{Key: "shakeForceThreshold", Min: 1, Max: 50, Default: 16}, store)
	require.NoError(t, err)
	maxGap, err := tunable.New(tunable.Spec[float64]{Key: "maxTimeBetweenConsecutiveShakes", Min: 0.1, Max: 1, Default: 0.5, Factor: 1000}, store)
	require.NoError(t, err)
	cooldown, err := tunable.New(tunable.Spec[float64]{Key: "cooldownTime", Min: 0.1, Max: 1, Default: 0.5, Factor: 1000}, store)
	require.NoError(t, err)

	fired := 0
	r := NewRecognizer(Params{Threshold: threshold, MaxGap: maxGap, Cooldown: cooldown}, func() { fired++ })

	// 15 is below the default threshold of 16.
	for i, x := range []float64{15, -15, 15, -15} {
		r.Process(accel(i*100, x))
	}
	assert.Equal(t, 0, fired)

	require.NoError(t, threshold.Set(10))
	for i, x := range []float64{15, -15, 15, -15} {
		r.Process(accel(1000+i*100, x))
	}
	assert.Equal(t, 1, fired)
}

func TestRecognizer_ExtremeParametersDoNotPanic(t *testing.T) {
	t.Parallel()

	r := NewRecognizer(Params{
		Threshold: fixed(-5),
		MaxGap:    fixed(-1),
		Cooldown:  fixed(math.Inf(1)),
	}, nil)

	assert.NotPanics(t, func() {
		for i := range 100 {
			r.Process(accel(i, float64(i%7)-3))
		}
	})
}
