package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStabilizeMapsCurrentToDuty(t *testing.T) {
	s := NewArcStabilizer(DefaultConfig())
	cases := map[float64]int{
		10.0:  1,
		200.0: 255,
		15.0:  7,
		105.0: 128,
		4.0:   1,
		260.0: 255,
	}
	for current, want := range cases {
		st := WeldState{Arc: true, Current: current, PWMDuty: 99}
		s.Stabilize(&st)
		assert.Equal(t, want, st.PWMDuty, "current %.1f", current)
	}
}

func TestStabilizeIsMonotonic(t *testing.T) {
	s := NewArcStabilizer(DefaultConfig())
	prev := 0
	for a := 10.0; a <= 200.0; a += 0.5 {
		st := WeldState{Current: a}
		s.Stabilize(&st)
		assert.GreaterOrEqual(t, st.PWMDuty, prev)
		prev = st.PWMDuty
	}
}

func TestSuperviseClearsArcAfterConsecutiveLowSamples(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArcLossSamples = 3
	s := NewArcStabilizer(cfg)
	st := WeldState{Arc: true, PWMDuty: 40}

	st.Current = 2
	assert.False(t, s.Supervise(&st))
	assert.False(t, s.Supervise(&st))
	st.Current = 30
	assert.False(t, s.Supervise(&st), "a healthy sample resets the count")
	st.Current = 2
	assert.False(t, s.Supervise(&st))
	assert.False(t, s.Supervise(&st))
	assert.True(t, st.Arc)
	assert.True(t, s.Supervise(&st))
	assert.False(t, st.Arc)
	assert.Equal(t, 0, st.PWMDuty)
}

// With ArcLossSamples == 0 the arc latches forever, even with no current at
// all, which means a broken arc is never re-struck.
func TestSuperviseLatchedArcNeverClears(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArcLossSamples = 0
	s := NewArcStabilizer(cfg)
	st := WeldState{Arc: true, Current: 0}

	for i := 0; i < 100; i++ {
		assert.False(t, s.Supervise(&st))
	}
	assert.True(t, st.Arc)
}
