package control

import "time"

// ActuatorOutput renders the duty to the power stage and emits one step
// pulse per iteration whose width is the current StepDelay.
type ActuatorOutput struct {
	power   PowerOutput
	stepper StepperOutput
	clock   Clock
}

// NewActuatorOutput returns an actuator stage over the given outputs.
func NewActuatorOutput(power PowerOutput, stepper StepperOutput, clock Clock) *ActuatorOutput {
	return &ActuatorOutput{power: power, stepper: stepper, clock: clock}
}

// Render writes PWMDuty, sets the direction line, then holds the step line
// high and low for StepDelay/2 µs each.
func (a *ActuatorOutput) Render(st *WeldState) error {
	if err := a.power.SetDuty(st.PWMDuty); err != nil {
		return hardwareFault("power_duty", err)
	}
	if err := a.stepper.SetDirection(st.Direction.Level()); err != nil {
		return hardwareFault("direction", err)
	}
	half := time.Duration(st.StepDelay/2) * time.Microsecond
	if err := a.stepper.SetStep(true); err != nil {
		return hardwareFault("step", err)
	}
	a.clock.Hold(half)
	if err := a.stepper.SetStep(false); err != nil {
		return hardwareFault("step", err)
	}
	a.clock.Hold(half)
	return nil
}

// Safe zeroes the power output and drives the step line low. Both writes
// are attempted even if the first fails.
func (a *ActuatorOutput) Safe(st *WeldState) error {
	st.PWMDuty = 0
	dutyErr := a.power.SetDuty(0)
	stepErr := a.stepper.SetStep(false)
	if dutyErr != nil {
		return hardwareFault("power_duty", dutyErr)
	}
	if stepErr != nil {
		return hardwareFault("step", stepErr)
	}
	return nil
}
