package control

import "math"

// Correction names the branch the feed corrector took.
type Correction int

const (
	CorrectionNone Correction = iota
	CorrectionOverBurn
	CorrectionUnderBurn
	CorrectionSetpoint
)

func (c Correction) String() string {
	switch c {
	case CorrectionNone:
		return "none"
	case CorrectionOverBurn:
		return "over_burn"
	case CorrectionUnderBurn:
		return "under_burn"
	case CorrectionSetpoint:
		return "setpoint"
	default:
		return "unknown"
	}
}

// FeedCorrector compares the estimated burn against the wire fed in one
// output cycle and corrects the feeder.
type FeedCorrector struct {
	cfg Config
}

// NewFeedCorrector returns a corrector for cfg.
func NewFeedCorrector(cfg Config) *FeedCorrector {
	return &FeedCorrector{cfg: cfg}
}

// Correct is a deadband proportional step. Outside the margin the feed rate
// moves by the error magnitude (backward when over-burning, forward when
// under-burning). Inside the margin the corrected rate is discarded and the
// operator setpoint is restored. The rate never drops below MinFeedRate.
func (f *FeedCorrector) Correct(st *WeldState) Correction {
	st.WireFeedError = st.WireBurnt - st.WireFeedRate/float64(st.ArcFreq)
	mag := math.Abs(st.WireFeedError)

	var c Correction
	switch {
	case st.WireFeedError > st.Margin:
		st.Direction = Backward
		st.WireFeedRate += mag
		c = CorrectionOverBurn
	case st.WireFeedError < -st.Margin:
		st.Direction = Forward
		st.WireFeedRate -= mag
		c = CorrectionUnderBurn
	default:
		st.Direction = Forward
		st.WireFeedRate = st.FeedSetpoint
		c = CorrectionSetpoint
	}

	if st.WireFeedRate < f.cfg.MinFeedRate {
		st.WireFeedRate = f.cfg.MinFeedRate
	}
	st.StepDelay = StepDelay(st.WireFeedRate, f.cfg.StepsPerRevolution)
	return c
}
