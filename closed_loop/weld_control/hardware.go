package control

import "time"

// AnalogChannel identifies a raw analog input.
type AnalogChannel int

const (
	ChannelVoltage AnalogChannel = iota
	ChannelCurrent
	ChannelFeedRate
	ChannelBurnPulse
)

func (c AnalogChannel) String() string {
	switch c {
	case ChannelVoltage:
		return "voltage"
	case ChannelCurrent:
		return "current"
	case ChannelFeedRate:
		return "feed_rate"
	case ChannelBurnPulse:
		return "burn_pulse"
	default:
		return "unknown"
	}
}

// AnalogInputs reads raw converter values.
type AnalogInputs interface {
	ReadRaw(ch AnalogChannel) (int, error)
}

// EnableInput reads the external start/stop gate.
type EnableInput interface {
	Enabled() (bool, error)
}

// PowerOutput renders duty and frequency to the power stage.
type PowerOutput interface {
	SetFrequency(hz int) error
	SetDuty(duty int) error
}

// StepperOutput drives the feeder's direction and step lines.
type StepperOutput interface {
	SetDirection(forward bool) error
	SetStep(high bool) error
}

// Clock holds the step line for a given time.
type Clock interface {
	Hold(d time.Duration)
}

// Hardware bundles the collaborators the controller talks to.
type Hardware struct {
	Analog  AnalogInputs
	Enable  EnableInput
	Power   PowerOutput
	Stepper StepperOutput
	Clock   Clock
}

func (h Hardware) validate() error {
	if h.Analog == nil || h.Enable == nil || h.Power == nil || h.Stepper == nil || h.Clock == nil {
		return ErrInvalidConfig
	}
	return nil
}

// SleepClock holds with time.Sleep.
type SleepClock struct{}

func (SleepClock) Hold(d time.Duration) { time.Sleep(d) }
