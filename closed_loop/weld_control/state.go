package control

// Direction is the wire feed direction.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// Level returns the direction line level. High means forward.
func (d Direction) Level() bool {
	return d == Forward
}

// WeldState is the single record every stage reads and mutates each iteration.
// It lives for the lifetime of the controller and is never reset when welding
// stops; a restart resumes from the last values.
type WeldState struct {
	WireFeedRate  float64   // commanded feed speed, mm/s (> 0)
	WireBurnPulse float64   // burn-phase feed multiplier, (0,1)
	PWMDuty       int       // power output level, 0..255
	Direction     Direction // feed direction
	StepDelay     int       // step period in µs, held high then low for half each

	Voltage float64 // V
	Current float64 // A

	Contact bool // electrode touching workpiece
	Arc     bool // arc established and sustained
	ArcFreq int  // output frequency during/after initiation, Hz
	Pulse   bool // true = burn phase

	WireBurnt     float64 // estimated wire consumed in the last burn phase, mm
	WireFeedError float64 // burnt vs fed discrepancy, mm
	Margin        float64 // correction deadband, mm

	// Operator setpoints sampled this iteration.
	FeedSetpoint float64 // mm/s
	BurnSetpoint float64 // fraction
}

// NewWeldState returns the startup state for cfg.
func NewWeldState(cfg Config) WeldState {
	s := WeldState{
		WireFeedRate:  cfg.InitialFeedRate,
		WireBurnPulse: cfg.InitialBurnPulse,
		PWMDuty:       0,
		Direction:     Forward,
		ArcFreq:       cfg.BaseFrequencyHz,
		Margin:        cfg.Margin(),
		FeedSetpoint:  cfg.InitialFeedRate,
		BurnSetpoint:  cfg.InitialBurnPulse,
	}
	s.StepDelay = StepDelay(s.WireFeedRate, cfg.StepsPerRevolution)
	return s
}

// StepDelay converts a feed rate into the stepper period in microseconds.
// A non-positive rate or step count yields idleStepDelay.
func StepDelay(feedRate float64, stepsPerRev int) int {
	if feedRate <= 0 || stepsPerRev <= 0 {
		return idleStepDelay
	}
	d := int(60_000_000 / (feedRate * float64(stepsPerRev)))
	if d < 1 {
		return 1
	}
	return d
}

const idleStepDelay = 1_000_000
