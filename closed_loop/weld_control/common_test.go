package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleClampsToInputDomain(t *testing.T) {
	assert.InDelta(t, 0.0, Scale(-20, 0, 1023, 0, 50), 1e-9)
	assert.InDelta(t, 50.0, Scale(4000, 0, 1023, 0, 50), 1e-9)
	assert.InDelta(t, 25.0, Scale(511.5, 0, 1023, 0, 50), 1e-9)
	assert.InDelta(t, 0.5, Scale(511.5, 0, 1023, 0.1, 0.9), 1e-9)
}

func TestScaleTruncMatchesIntegerMap(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{10, 1},
		{200, 255},
		{15, 7},
		{15.9, 7},
		{105, 128},
		{0, 1},
		{-3, 1},
		{350, 255},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScaleTrunc(tc.in, 10, 200, 1, 255), "current %.1f", tc.in)
	}
}

func TestScaleDegenerateRange(t *testing.T) {
	assert.Equal(t, 3.0, Scale(7, 5, 5, 3, 9))
	assert.Equal(t, 3, ScaleTrunc(7, 5, 5, 3, 9))
}

func TestStepDelayFormula(t *testing.T) {
	assert.Equal(t, 30000, StepDelay(10, 200))
	assert.Equal(t, 60000, StepDelay(5, 200))
	assert.Equal(t, 20000, StepDelay(15, 200))
	delay73 := 60_000_000 / (7.3 * 200)
	assert.Equal(t, int(delay73), StepDelay(7.3, 200))
	assert.Positive(t, StepDelay(0, 200))
	assert.Positive(t, StepDelay(1e9, 200))
}
