package control

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmitsOneStepPulsePerCall(t *testing.T) {
	io := newFakeIO()
	a := NewActuatorOutput(io, io, io)
	st := WeldState{PWMDuty: 42, Direction: Backward, StepDelay: 30001}

	require.NoError(t, a.Render(&st))
	assert.Equal(t, []int{42}, io.duties)
	assert.Equal(t, []bool{false}, io.dirs)
	assert.Equal(t, []bool{true, false}, io.steps)
	assert.Equal(t, []time.Duration{15000 * time.Microsecond, 15000 * time.Microsecond}, io.holds)

	st.Direction = Forward
	require.NoError(t, a.Render(&st))
	assert.Equal(t, []bool{false, true}, io.dirs)
	assert.Equal(t, []bool{true, false, true, false}, io.steps)
}

func TestSafeZeroesDutyAndLowersStep(t *testing.T) {
	io := newFakeIO()
	a := NewActuatorOutput(io, io, io)
	st := WeldState{PWMDuty: 200}

	require.NoError(t, a.Safe(&st))
	assert.Equal(t, 0, st.PWMDuty)
	assert.Equal(t, []int{0}, io.duties)
	assert.Equal(t, []bool{false}, io.steps)
}

func TestSafeStillLowersStepWhenDutyWriteFails(t *testing.T) {
	io := newFakeIO()
	io.dutyErr = errors.New("pwm timer fault")
	a := NewActuatorOutput(io, io, io)

	err := a.Safe(&WeldState{PWMDuty: 10})
	require.Error(t, err)
	assert.Equal(t, []bool{false}, io.steps)
}
