package bench

import (
	"encoding/json"
	"fmt"
	"os"
)

// Scenario scripts the operator inputs and plant behaviour of a bench run.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Plant    PlantParams       `json:"plant"`
	Defaults Inputs            `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
}

// ScenarioMeta contains scenario metadata
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ScenarioTiming defines timing parameters
type ScenarioTiming struct {
	DurationS      float64 `json:"duration_s"`
	SweepStepUS    int     `json:"sweep_step_us"`    // simulated time per sweep frequency step
	LoopOverheadUS int     `json:"loop_overhead_us"` // simulated time per controller iteration
}

// Fault names a plant failure a segment can inject.
type Fault string

const (
	FaultNone        Fault = ""
	FaultOpenCircuit Fault = "open_circuit"     // no current can flow
	FaultSaturate    Fault = "saturate_current" // current sense pinned at full scale
	FaultSenseGlitch Fault = "sense_glitch"     // current sense reads outside the converter range
)

// ScenarioSegment overrides inputs inside [T0, T1). T1 < 0 runs to the end.
type ScenarioSegment struct {
	T0           float64 `json:"t0"`
	T1           float64 `json:"t1"`
	Enable       *bool   `json:"enable,omitempty"`
	FeedRateMMS  float64 `json:"feed_rate_mm_s,omitempty"`
	BurnFraction float64 `json:"burn_pulse,omitempty"`
	Fault        Fault   `json:"fault,omitempty"`
	Comment      string  `json:"comment,omitempty"`
}

// Inputs is what the operator panel and plant present at one instant.
type Inputs struct {
	Enable       bool    `json:"enable"`
	FeedRateMMS  float64 `json:"feed_rate_mm_s"`
	BurnFraction float64 `json:"burn_pulse"`
	Fault        Fault   `json:"-"`
}

// LoadScenario loads a scenario from JSON file
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario JSON, filling plant defaults.
func ParseScenario(data []byte) (Scenario, error) {
	scen := Scenario{Plant: DefaultPlantParams()}
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if scen.Timing.DurationS <= 0 {
		return Scenario{}, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if scen.Timing.SweepStepUS <= 0 {
		scen.Timing.SweepStepUS = 100
	}
	if scen.Timing.LoopOverheadUS <= 0 {
		scen.Timing.LoopOverheadUS = 1000
	}
	if scen.Defaults.FeedRateMMS <= 0 {
		return Scenario{}, fmt.Errorf("invalid defaults.feed_rate_mm_s: %f", scen.Defaults.FeedRateMMS)
	}
	if scen.Defaults.BurnFraction <= 0 || scen.Defaults.BurnFraction >= 1 {
		return Scenario{}, fmt.Errorf("invalid defaults.burn_pulse: %f", scen.Defaults.BurnFraction)
	}
	for i, seg := range scen.Segments {
		switch seg.Fault {
		case FaultNone, FaultOpenCircuit, FaultSaturate, FaultSenseGlitch:
		default:
			return Scenario{}, fmt.Errorf("segment %d: unknown fault %q", i, seg.Fault)
		}
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return Scenario{}, fmt.Errorf("segment %d: t1 %.3f not after t0 %.3f", i, seg.T1, seg.T0)
		}
	}
	if err := scen.Plant.validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

// EvalInputs evaluates the scenario at time t
func EvalInputs(scen *Scenario, t float64) Inputs {
	in := scen.Defaults

	// First matching segment wins
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}

		if t >= seg.T0 && t < t1 {
			if seg.Enable != nil {
				in.Enable = *seg.Enable
			}
			if seg.FeedRateMMS != 0 {
				in.FeedRateMMS = seg.FeedRateMMS
			}
			if seg.BurnFraction != 0 {
				in.BurnFraction = seg.BurnFraction
			}
			in.Fault = seg.Fault
			break
		}
	}

	return in
}
