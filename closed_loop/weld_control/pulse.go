package control

// PulseScheduler alternates burn and feed phases on every call.
type PulseScheduler struct {
	cfg Config
}

// NewPulseScheduler returns a scheduler for cfg.
func NewPulseScheduler(cfg Config) *PulseScheduler {
	return &PulseScheduler{cfg: cfg}
}

// Toggle flips Pulse. Entering the burn phase latches the operator burn
// fraction, slows the feed by it and clears WireBurnt. Entering the feed
// phase divides by the same fraction and estimates the wire burnt from the
// duty, since nothing measures burn length directly. StepDelay follows the
// new feed rate.
func (p *PulseScheduler) Toggle(st *WeldState) {
	st.Pulse = !st.Pulse
	if st.Pulse {
		st.WireBurnPulse = st.BurnSetpoint
		st.WireFeedRate *= st.WireBurnPulse
		st.WireBurnt = 0
	} else {
		st.WireFeedRate /= st.WireBurnPulse
		st.WireBurnt = p.cfg.ElectrodeDiameter * float64(st.PWMDuty) / float64(p.cfg.MaxDuty)
	}
	st.StepDelay = StepDelay(st.WireFeedRate, p.cfg.StepsPerRevolution)
}
