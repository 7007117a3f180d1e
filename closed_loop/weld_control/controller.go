package control

import (
	"context"
	"errors"
	"fmt"
)

// RunState is the top-level gate of the controller.
type RunState int

const (
	Stopped RunState = iota
	Running
	Faulted
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Report summarises one iteration for logging and metrics.
type Report struct {
	Run        RunState
	Swept      bool // an arc sweep ran this iteration
	ArcResult  ArcResult
	SweepSteps int
	ArcLost    bool
	Correction Correction
	State      WeldState
}

// Controller owns the WeldState and runs the control pipeline once per Step.
// It is not safe for concurrent use; a single goroutine must drive it.
type Controller struct {
	cfg   Config
	hw    Hardware
	log   Logger
	state WeldState
	run   RunState
	fault error

	sampler    *FeedbackSampler
	initiator  *ArcInitiator
	stabilizer *ArcStabilizer
	pulse      *PulseScheduler
	corrector  *FeedCorrector
	actuator   *ActuatorOutput

	arcFailures int
}

// NewController validates cfg and builds the pipeline over hw.
func NewController(cfg Config, hw Hardware, log Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := hw.validate(); err != nil {
		return nil, fmt.Errorf("%w: hardware collaborators missing", err)
	}
	if log == nil {
		log = nopLogger{}
	}
	sampler := NewFeedbackSampler(cfg, hw.Analog)
	return &Controller{
		cfg:        cfg,
		hw:         hw,
		log:        log,
		state:      NewWeldState(cfg),
		run:        Stopped,
		sampler:    sampler,
		initiator:  NewArcInitiator(cfg, sampler, hw.Power, hw.Enable, log),
		stabilizer: NewArcStabilizer(cfg),
		pulse:      NewPulseScheduler(cfg),
		corrector:  NewFeedCorrector(cfg),
		actuator:   NewActuatorOutput(hw.Power, hw.Stepper, hw.Clock),
	}, nil
}

// Snapshot returns a copy of the current WeldState.
func (c *Controller) Snapshot() WeldState { return c.state }

// RunState returns the current gate state.
func (c *Controller) RunState() RunState { return c.run }

// Fault returns the error that latched the controller, if any.
func (c *Controller) Fault() error { return c.fault }

// Step runs one iteration. With enable low it only forces the safe output.
// With enable high it samples, detects contact, strikes the arc if needed,
// stabilizes, schedules the burn pulse, corrects the feed and renders the
// actuators, strictly in that order.
//
// A timed-out arc sweep returns an error wrapping ErrArcInitiationFailed;
// the next Step may try again until MaxArcAttempts consecutive sweeps have
// failed. Fatal conditions zero the power output, latch the controller in
// Faulted and return a *FaultError; every later Step returns ErrFaulted.
func (c *Controller) Step(ctx context.Context) (Report, error) {
	if c.run == Faulted {
		if err := c.actuator.Safe(&c.state); err != nil {
			c.log.Critical("Safe output failed while faulted: %v", err)
		}
		return c.report(Report{}), fmt.Errorf("%w: %v", ErrFaulted, c.fault)
	}

	on, err := c.hw.Enable.Enabled()
	if err != nil {
		return c.trip(Report{}, &FaultError{Kind: FaultHardware, Channel: "enable", Err: err})
	}
	if !on {
		if c.run != Stopped {
			c.log.Info("Welding stopped (duty=0, step low)")
		}
		c.run = Stopped
		if err := c.actuator.Safe(&c.state); err != nil {
			return c.trip(Report{}, err)
		}
		return c.report(Report{}), nil
	}
	if c.run != Running {
		c.log.Info("Welding started: feed=%.2f mm/s arc=%v", c.state.WireFeedRate, c.state.Arc)
		c.run = Running
	}

	st := &c.state
	if err := c.sampler.Sample(st); err != nil {
		return c.trip(Report{}, err)
	}
	if err := c.sampler.SampleSetpoints(st); err != nil {
		return c.trip(Report{}, err)
	}
	DetectContact(st, c.cfg.ContactVoltage)

	var rep Report
	if st.Contact && !st.Arc {
		res, steps, err := c.initiator.Initiate(ctx, st)
		rep.Swept, rep.ArcResult, rep.SweepSteps = true, res, steps
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				_ = c.actuator.Safe(st)
				return c.report(rep), err
			}
			return c.trip(rep, err)
		}
		switch res {
		case ArcAborted:
			return c.report(rep), nil
		case ArcTimedOut:
			c.arcFailures++
			if c.arcFailures >= c.cfg.MaxArcAttempts {
				return c.trip(rep, &FaultError{
					Kind:  FaultArcRetries,
					Value: float64(c.arcFailures),
					Err:   ErrArcInitiationFailed,
				})
			}
			if err := c.actuator.Safe(st); err != nil {
				return c.trip(rep, err)
			}
			return c.report(rep), fmt.Errorf("%w: no arc after %d Hz sweep (attempt %d/%d)",
				ErrArcInitiationFailed, rep.SweepSteps, c.arcFailures, c.cfg.MaxArcAttempts)
		case ArcEstablished:
			c.arcFailures = 0
		}
	}

	if st.Arc {
		if c.stabilizer.Supervise(st) {
			rep.ArcLost = true
			c.log.Warn("Arc lost: I=%.2f A below %.2f A for %d samples", st.Current, c.cfg.ArcCurrent, c.cfg.ArcLossSamples)
		} else {
			c.stabilizer.Stabilize(st)
			c.pulse.Toggle(st)
			rep.Correction = c.corrector.Correct(st)
		}
	}

	if err := c.actuator.Render(st); err != nil {
		return c.trip(rep, err)
	}
	c.log.Trace("V=%.2f I=%.2f contact=%v arc=%v pulse=%v duty=%d feed=%.3f dir=%s delay=%d err=%.4f",
		st.Voltage, st.Current, st.Contact, st.Arc, st.Pulse, st.PWMDuty, st.WireFeedRate,
		st.Direction, st.StepDelay, st.WireFeedError)
	return c.report(rep), nil
}

// Shutdown forces the safe output and leaves the controller Stopped unless
// it is latched in Faulted. Call it once the loop has exited.
func (c *Controller) Shutdown() error {
	if c.run != Faulted {
		c.run = Stopped
	}
	if err := c.actuator.Safe(&c.state); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	c.log.Info("Controller shut down, power output zeroed")
	return nil
}

// trip zeroes the power output first, then latches the fault and reports it.
func (c *Controller) trip(rep Report, err error) (Report, error) {
	if safeErr := c.actuator.Safe(&c.state); safeErr != nil {
		c.log.Critical("Safe output failed during shutdown: %v", safeErr)
	}
	c.run = Faulted
	c.fault = err
	c.log.Critical("Fault, power output zeroed: %v", err)
	return c.report(rep), err
}

func (c *Controller) report(rep Report) Report {
	rep.Run = c.run
	rep.State = c.state
	return rep
}
