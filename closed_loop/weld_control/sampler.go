package control

// FeedbackSampler converts raw feedback and operator inputs into physical
// units and watches for readings the stabilizer has no calibration for.
type FeedbackSampler struct {
	cfg       Config
	in        AnalogInputs
	saturated int
}

// NewFeedbackSampler returns a sampler reading from in.
func NewFeedbackSampler(cfg Config, in AnalogInputs) *FeedbackSampler {
	return &FeedbackSampler{cfg: cfg, in: in}
}

// Sample reads voltage and current into st. Out-of-range raw values are
// clamped by the map before conversion, but they are also reported as a
// fault, as is a current that sits at full scale for MaxSaturatedSamples
// consecutive samples.
func (s *FeedbackSampler) Sample(st *WeldState) error {
	rawV, err := s.read(ChannelVoltage)
	if err != nil {
		return err
	}
	rawI, err := s.read(ChannelCurrent)
	if err != nil {
		return err
	}

	st.Voltage = scaleRange(float64(rawV), s.cfg.RawInput, s.cfg.VoltageRange)
	st.Current = scaleRange(float64(rawI), s.cfg.RawInput, s.cfg.CurrentRange)

	if err := s.checkRaw(ChannelVoltage, rawV); err != nil {
		return err
	}
	if err := s.checkRaw(ChannelCurrent, rawI); err != nil {
		return err
	}

	if float64(rawI) >= s.cfg.RawInput.Hi {
		s.saturated++
		if s.saturated >= s.cfg.MaxSaturatedSamples {
			return &FaultError{
				Kind:    FaultCurrentSaturate,
				Channel: ChannelCurrent.String(),
				Value:   st.Current,
				Err:     ErrFeedbackImplausible,
			}
		}
	} else {
		s.saturated = 0
	}
	return nil
}

// SampleSetpoints reads the operator feed rate and burn fraction. They are
// clamped to their ranges and never fault.
func (s *FeedbackSampler) SampleSetpoints(st *WeldState) error {
	rawF, err := s.read(ChannelFeedRate)
	if err != nil {
		return err
	}
	rawB, err := s.read(ChannelBurnPulse)
	if err != nil {
		return err
	}
	st.FeedSetpoint = scaleRange(float64(rawF), s.cfg.RawInput, s.cfg.FeedRateRange)
	st.BurnSetpoint = scaleRange(float64(rawB), s.cfg.RawInput, s.cfg.BurnPulseRange)
	return nil
}

func (s *FeedbackSampler) read(ch AnalogChannel) (int, error) {
	v, err := s.in.ReadRaw(ch)
	if err != nil {
		return 0, &FaultError{Kind: FaultHardware, Channel: ch.String(), Err: err}
	}
	return v, nil
}

func (s *FeedbackSampler) checkRaw(ch AnalogChannel, raw int) error {
	if s.cfg.RawInput.Contains(float64(raw)) {
		return nil
	}
	return &FaultError{
		Kind:    FaultRawOutOfRange,
		Channel: ch.String(),
		Value:   float64(raw),
		Err:     ErrFeedbackImplausible,
	}
}

// DetectContact classifies electrode contact from the sampled voltage.
func DetectContact(st *WeldState, threshold float64) {
	st.Contact = st.Voltage < threshold
}
