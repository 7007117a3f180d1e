package bench

import (
	"fmt"
	"math"
	"sync"
	"time"

	control "arc-weld-core/closed_loop/weld_control"
)

// PlantParams describes the simulated feeder, wire and arc.
type PlantParams struct {
	IgnitionFrequencyHz int     `json:"ignition_frequency_hz"` // sweep frequency at which a touching wire strikes
	MMPerStep           float64 `json:"mm_per_step"`
	InitialGapMM        float64 `json:"initial_gap_mm"`
	MaxArcLengthMM      float64 `json:"max_arc_length_mm"` // arc breaks beyond this gap
	OpenCircuitVoltage  float64 `json:"open_circuit_voltage_v"`
	ShortVoltage        float64 `json:"short_voltage_v"`
	ArcVoltage          float64 `json:"arc_voltage_v"`
	ArcVoltsPerMM       float64 `json:"arc_volts_per_mm"`
	BaseCurrent         float64 `json:"base_current_a"`
	ShortCurrent        float64 `json:"short_current_a"` // current while the arcing wire is shorted
	AmpsPerDuty         float64 `json:"amps_per_duty"`
	BurnMMPerAmpSecond  float64 `json:"burn_mm_per_amp_s"`
}

// DefaultPlantParams returns a plant that strikes and sustains an arc with
// the default controller calibration.
func DefaultPlantParams() PlantParams {
	return PlantParams{
		IgnitionFrequencyHz: 620,
		MMPerStep:           0.3,
		InitialGapMM:        0.6,
		MaxArcLengthMM:      4.0,
		OpenCircuitVoltage:  45,
		ShortVoltage:        0.3,
		ArcVoltage:          17,
		ArcVoltsPerMM:       2,
		BaseCurrent:         12,
		ShortCurrent:        120,
		AmpsPerDuty:         0.7,
		BurnMMPerAmpSecond:  0.05,
	}
}

func (p PlantParams) validate() error {
	switch {
	case p.MMPerStep <= 0:
		return fmt.Errorf("plant: mm_per_step must be positive")
	case p.MaxArcLengthMM <= 0:
		return fmt.Errorf("plant: max_arc_length_mm must be positive")
	case p.IgnitionFrequencyHz <= 0:
		return fmt.Errorf("plant: ignition_frequency_hz must be positive")
	}
	return nil
}

// Plant simulates the weld cell behind every hardware interface the
// controller uses. Simulated time advances with step holds and sweep steps,
// never with the wall clock.
type Plant struct {
	mu   sync.Mutex
	scen *Scenario
	cfg  control.Config

	now     time.Duration
	gap     float64 // wire tip above workpiece, mm; <= 0 is touching
	arcing  bool
	duty    int
	freq    int
	forward bool
	step    bool

	steps   int
	strikes int
	breaks  int
}

// NewPlant builds a plant for scen, converting to raw values with cfg's maps.
func NewPlant(scen *Scenario, cfg control.Config) *Plant {
	return &Plant{scen: scen, cfg: cfg, gap: scen.Plant.InitialGapMM, forward: true}
}

// Hardware returns the plant as the controller's collaborators.
func (p *Plant) Hardware() control.Hardware {
	return control.Hardware{Analog: p, Enable: p, Power: p, Stepper: p, Clock: p}
}

// Elapsed is the simulated time since start.
func (p *Plant) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// Done reports whether the scenario duration has elapsed.
func (p *Plant) Done() bool {
	return p.Elapsed().Seconds() >= p.scen.Timing.DurationS
}

// PlantStats are counters for assertions and end-of-run logs.
type PlantStats struct {
	Steps   int
	Strikes int
	Breaks  int
	GapMM   float64
	Arcing  bool
	Duty    int
}

func (p *Plant) Stats() PlantStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlantStats{Steps: p.steps, Strikes: p.strikes, Breaks: p.breaks, GapMM: p.gap, Arcing: p.arcing, Duty: p.duty}
}

func (p *Plant) inputs() Inputs {
	return EvalInputs(p.scen, p.now.Seconds())
}

func (p *Plant) ReadRaw(ch control.AnalogChannel) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	in := p.inputs()
	c := p.cfg
	switch ch {
	case control.ChannelVoltage:
		return toRaw(p.voltage(), c.VoltageRange, c.RawInput), nil
	case control.ChannelCurrent:
		switch in.Fault {
		case FaultSaturate:
			return int(c.RawInput.Hi), nil
		case FaultSenseGlitch:
			return int(c.RawInput.Hi) + 512, nil
		}
		return toRaw(p.current(in), c.CurrentRange, c.RawInput), nil
	case control.ChannelFeedRate:
		return toRaw(in.FeedRateMMS, c.FeedRateRange, c.RawInput), nil
	case control.ChannelBurnPulse:
		return toRaw(in.BurnFraction, c.BurnPulseRange, c.RawInput), nil
	}
	return 0, fmt.Errorf("plant: no analog channel %v", ch)
}

// Enabled is read once per controller iteration and charges the loop
// overhead to simulated time, so a stopped loop still moves the clock.
func (p *Plant) Enabled() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(time.Duration(p.scen.Timing.LoopOverheadUS) * time.Microsecond)
	return p.inputs().Enable, nil
}

// SetFrequency is only called by the ignition sweep; each call costs one
// sweep step of simulated time and may strike the arc.
func (p *Plant) SetFrequency(hz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freq = hz
	p.advance(time.Duration(p.scen.Timing.SweepStepUS) * time.Microsecond)
	p.maybeStrike()
	return nil
}

func (p *Plant) SetDuty(duty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if duty < 0 || duty > 255 {
		return fmt.Errorf("plant: duty %d out of range", duty)
	}
	p.duty = duty
	if duty == 0 && p.arcing {
		p.arcing = false
		p.breaks++
	}
	return nil
}

func (p *Plant) SetDirection(forward bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forward = forward
	return nil
}

// SetStep moves the wire one step on each rising edge.
func (p *Plant) SetStep(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if high && !p.step {
		p.steps++
		if p.forward {
			// the wire stalls against the workpiece
			p.gap = math.Max(p.gap-p.scen.Plant.MMPerStep, -p.scen.Plant.MMPerStep)
		} else {
			p.gap += p.scen.Plant.MMPerStep
		}
	}
	p.step = high
	return nil
}

func (p *Plant) Hold(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(d)
}

// advance integrates burn-off over d and breaks an over-long arc.
func (p *Plant) advance(d time.Duration) {
	in := p.inputs()
	if p.arcing {
		p.gap += p.scen.Plant.BurnMMPerAmpSecond * p.current(in) * d.Seconds()
		if p.gap > p.scen.Plant.MaxArcLengthMM || in.Fault == FaultOpenCircuit {
			p.arcing = false
			p.breaks++
		}
	}
	p.now += d
}

func (p *Plant) maybeStrike() {
	if p.arcing || p.gap > 0 || p.duty == 0 {
		return
	}
	if p.inputs().Fault == FaultOpenCircuit {
		return
	}
	if p.freq >= p.scen.Plant.IgnitionFrequencyHz {
		p.arcing = true
		p.strikes++
	}
}

func (p *Plant) voltage() float64 {
	pp := p.scen.Plant
	switch {
	case p.gap <= 0:
		return pp.ShortVoltage
	case p.arcing:
		return pp.ArcVoltage + pp.ArcVoltsPerMM*p.gap
	default:
		return pp.OpenCircuitVoltage
	}
}

func (p *Plant) current(in Inputs) float64 {
	if in.Fault == FaultOpenCircuit || !p.arcing || p.duty == 0 {
		return 0
	}
	if p.gap <= 0 {
		return p.scen.Plant.ShortCurrent
	}
	return p.scen.Plant.BaseCurrent + p.scen.Plant.AmpsPerDuty*float64(p.duty)
}

// toRaw inverts the controller's linear map, clamped to the converter range.
func toRaw(v float64, phys, raw control.Range) int {
	r := control.Scale(v, phys.Lo, phys.Hi, raw.Lo, raw.Hi)
	return int(math.Round(r))
}
