package control

// ArcStabilizer maps arc current to output duty while arcing and decides
// when the arc has gone out.
type ArcStabilizer struct {
	cfg Config
	low int
}

// NewArcStabilizer returns a stabilizer for cfg.
func NewArcStabilizer(cfg Config) *ArcStabilizer {
	return &ArcStabilizer{cfg: cfg}
}

// Stabilize sets PWMDuty from the current over the calibrated range. Current
// outside the range is clamped, never extrapolated. There is no hysteresis.
func (s *ArcStabilizer) Stabilize(st *WeldState) {
	d := ScaleTrunc(st.Current,
		s.cfg.StabilizerRange.Lo, s.cfg.StabilizerRange.Hi,
		s.cfg.StabilizerDuty.Lo, s.cfg.StabilizerDuty.Hi)
	st.PWMDuty = ClampInt(d, 0, s.cfg.MaxDuty)
}

// Supervise clears Arc after ArcLossSamples consecutive samples below the
// arc threshold and reports whether it did. With ArcLossSamples == 0 the
// arc never clears once set.
func (s *ArcStabilizer) Supervise(st *WeldState) bool {
	if !st.Arc || s.cfg.ArcLossSamples == 0 {
		s.low = 0
		return false
	}
	if st.Current >= s.cfg.ArcCurrent {
		s.low = 0
		return false
	}
	s.low++
	if s.low < s.cfg.ArcLossSamples {
		return false
	}
	s.low = 0
	st.Arc = false
	st.PWMDuty = 0
	return true
}
