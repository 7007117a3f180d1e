package control

import "context"

// ArcResult is the outcome of a frequency sweep.
type ArcResult int

const (
	ArcEstablished ArcResult = iota
	ArcTimedOut
	ArcAborted
)

func (r ArcResult) String() string {
	switch r {
	case ArcEstablished:
		return "established"
	case ArcTimedOut:
		return "timed_out"
	case ArcAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ignitionDuty is the duty held on the output while sweeping.
const ignitionDuty = 1

// ArcInitiator strikes the arc by sweeping the output frequency upward from
// half the base frequency until the current crosses the arc threshold.
type ArcInitiator struct {
	cfg     Config
	sampler *FeedbackSampler
	power   PowerOutput
	enable  EnableInput
	log     Logger
}

// NewArcInitiator wires an initiator to its sampler and outputs.
func NewArcInitiator(cfg Config, sampler *FeedbackSampler, power PowerOutput, enable EnableInput, log Logger) *ArcInitiator {
	if log == nil {
		log = nopLogger{}
	}
	return &ArcInitiator{cfg: cfg, sampler: sampler, power: power, enable: enable, log: log}
}

// Initiate runs one bounded sweep. Each step raises ArcFreq by 1 Hz,
// re-samples feedback and checks the current. The sweep stops on success,
// after MaxSweepSteps, when the enable input drops, or when ctx is done.
// On any outcome other than ArcEstablished the duty is forced to 0.
// It returns the result and the number of frequency steps taken.
func (a *ArcInitiator) Initiate(ctx context.Context, st *WeldState) (ArcResult, int, error) {
	st.PWMDuty = ignitionDuty
	st.ArcFreq = a.cfg.BaseFrequencyHz / 2
	if err := a.power.SetDuty(st.PWMDuty); err != nil {
		return ArcAborted, 0, hardwareFault("power_duty", err)
	}
	if err := a.power.SetFrequency(st.ArcFreq); err != nil {
		return ArcAborted, 0, hardwareFault("power_frequency", err)
	}

	for step := 1; step <= a.cfg.MaxSweepSteps; step++ {
		if err := ctx.Err(); err != nil {
			return a.quench(st, ArcAborted, step-1, err)
		}
		on, err := a.enable.Enabled()
		if err != nil {
			return a.quench(st, ArcAborted, step-1, hardwareFault("enable", err))
		}
		if !on {
			a.log.Info("Arc sweep aborted at %d Hz: enable dropped", st.ArcFreq)
			return a.quench(st, ArcAborted, step-1, nil)
		}

		st.ArcFreq++
		if err := a.power.SetFrequency(st.ArcFreq); err != nil {
			return a.quench(st, ArcAborted, step, hardwareFault("power_frequency", err))
		}
		if err := a.sampler.Sample(st); err != nil {
			return a.quench(st, ArcAborted, step, err)
		}
		a.log.Trace("sweep f=%d Hz I=%.2f A", st.ArcFreq, st.Current)

		if st.Current > a.cfg.ArcCurrent {
			st.Arc = true
			a.log.Info("Arc established at %d Hz after %d steps (I=%.2f A)", st.ArcFreq, step, st.Current)
			return ArcEstablished, step, nil
		}
	}

	a.log.Warn("Arc sweep timed out at %d Hz after %d steps (I=%.2f A)", st.ArcFreq, a.cfg.MaxSweepSteps, st.Current)
	return a.quench(st, ArcTimedOut, a.cfg.MaxSweepSteps, nil)
}

// quench forces the output to zero before returning result.
func (a *ArcInitiator) quench(st *WeldState, result ArcResult, steps int, cause error) (ArcResult, int, error) {
	st.PWMDuty = 0
	if err := a.power.SetDuty(0); err != nil && cause == nil {
		cause = hardwareFault("power_duty", err)
	}
	return result, steps, cause
}

func hardwareFault(channel string, err error) error {
	return &FaultError{Kind: FaultHardware, Channel: channel, Err: err}
}
