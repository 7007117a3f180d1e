package control

import (
	"math"
	"time"
)

// fakeIO scripts raw readings and enable levels and records every output.
// Each scripted queue pops one value per read and repeats its last value.
type fakeIO struct {
	raw    map[AnalogChannel][]int
	enable []bool

	freqs  []int
	duties []int
	dirs   []bool
	steps  []bool
	holds  []time.Duration

	dutyErr error
	readErr error
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		raw: map[AnalogChannel][]int{
			ChannelVoltage:   {rawVolts(20)},
			ChannelCurrent:   {0},
			ChannelFeedRate:  {512},
			ChannelBurnPulse: {512},
		},
		enable: []bool{true},
	}
}

func (f *fakeIO) script(ch AnalogChannel, values ...int) *fakeIO {
	f.raw[ch] = values
	return f
}

func (f *fakeIO) ReadRaw(ch AnalogChannel) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	q := f.raw[ch]
	if len(q) == 0 {
		return 0, nil
	}
	v := q[0]
	if len(q) > 1 {
		f.raw[ch] = q[1:]
	}
	return v, nil
}

func (f *fakeIO) Enabled() (bool, error) {
	if len(f.enable) == 0 {
		return false, nil
	}
	v := f.enable[0]
	if len(f.enable) > 1 {
		f.enable = f.enable[1:]
	}
	return v, nil
}

func (f *fakeIO) SetFrequency(hz int) error {
	f.freqs = append(f.freqs, hz)
	return nil
}

func (f *fakeIO) SetDuty(duty int) error {
	f.duties = append(f.duties, duty)
	return f.dutyErr
}

func (f *fakeIO) SetDirection(forward bool) error {
	f.dirs = append(f.dirs, forward)
	return nil
}

func (f *fakeIO) SetStep(high bool) error {
	f.steps = append(f.steps, high)
	return nil
}

func (f *fakeIO) Hold(d time.Duration) {
	f.holds = append(f.holds, d)
}

func (f *fakeIO) hardware() Hardware {
	return Hardware{Analog: f, Enable: f, Power: f, Stepper: f, Clock: f}
}

func (f *fakeIO) lastDuty() int {
	if len(f.duties) == 0 {
		return -1
	}
	return f.duties[len(f.duties)-1]
}

func (f *fakeIO) lastStep() bool {
	if len(f.steps) == 0 {
		return false
	}
	return f.steps[len(f.steps)-1]
}

func rawVolts(v float64) int { return int(math.Round(v / 50 * 1023)) }

func rawAmps(a float64) int { return int(math.Round(a / 200 * 1023)) }

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
