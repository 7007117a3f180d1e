package control

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Range is a closed interval used by the linear maps.
type Range struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Contains reports whether v lies in [Lo, Hi].
func (r Range) Contains(v float64) bool {
	return v >= r.Lo && v <= r.Hi
}

// Config holds the physical constants and safety bounds of the weld loop.
type Config struct {
	// Output stage
	BaseFrequencyHz int `yaml:"base_frequency_hz" json:"base_frequency_hz"`
	MaxDuty         int `yaml:"max_duty" json:"max_duty"`

	// Feeder
	StepsPerRevolution int     `yaml:"steps_per_revolution" json:"steps_per_revolution"`
	ElectrodeDiameter  float64 `yaml:"electrode_diameter_mm" json:"electrode_diameter_mm"`
	InitialFeedRate    float64 `yaml:"initial_feed_rate_mm_s" json:"initial_feed_rate_mm_s"`
	InitialBurnPulse   float64 `yaml:"initial_burn_pulse" json:"initial_burn_pulse"`
	MinFeedRate        float64 `yaml:"min_feed_rate_mm_s" json:"min_feed_rate_mm_s"`

	// Thresholds
	ContactVoltage float64 `yaml:"contact_voltage_v" json:"contact_voltage_v"`
	ArcCurrent     float64 `yaml:"arc_current_a" json:"arc_current_a"`

	// Linear maps
	RawInput        Range `yaml:"raw_input" json:"raw_input"`
	VoltageRange    Range `yaml:"voltage_range_v" json:"voltage_range_v"`
	CurrentRange    Range `yaml:"current_range_a" json:"current_range_a"`
	FeedRateRange   Range `yaml:"feed_rate_range_mm_s" json:"feed_rate_range_mm_s"`
	BurnPulseRange  Range `yaml:"burn_pulse_range" json:"burn_pulse_range"`
	StabilizerRange Range `yaml:"stabilizer_current_range_a" json:"stabilizer_current_range_a"`
	StabilizerDuty  Range `yaml:"stabilizer_duty_range" json:"stabilizer_duty_range"`

	// Bounds
	MaxSweepSteps       int `yaml:"max_sweep_steps" json:"max_sweep_steps"`
	MaxArcAttempts      int `yaml:"max_arc_attempts" json:"max_arc_attempts"`
	MaxSaturatedSamples int `yaml:"max_saturated_samples" json:"max_saturated_samples"`
	ArcLossSamples      int `yaml:"arc_loss_samples" json:"arc_loss_samples"` // 0 latches the arc
}

// DefaultConfig returns the calibration of the reference machine.
func DefaultConfig() Config {
	return Config{
		BaseFrequencyHz:     1000,
		MaxDuty:             255,
		StepsPerRevolution:  200,
		ElectrodeDiameter:   0.8,
		InitialFeedRate:     10.0,
		InitialBurnPulse:    0.5,
		MinFeedRate:         0.1,
		ContactVoltage:      1.0,
		ArcCurrent:          10.0,
		RawInput:            Range{Lo: 0, Hi: 1023},
		VoltageRange:        Range{Lo: 0, Hi: 50},
		CurrentRange:        Range{Lo: 0, Hi: 200},
		FeedRateRange:       Range{Lo: 5, Hi: 15},
		BurnPulseRange:      Range{Lo: 0.1, Hi: 0.9},
		StabilizerRange:     Range{Lo: 10, Hi: 200},
		StabilizerDuty:      Range{Lo: 1, Hi: 255},
		MaxSweepSteps:       2000,
		MaxArcAttempts:      3,
		MaxSaturatedSamples: 3,
		ArcLossSamples:      3,
	}
}

// Margin is the feed correction deadband: a tenth of the electrode diameter.
func (c Config) Margin() float64 {
	return c.ElectrodeDiameter / 10
}

// Validate checks that the configuration describes a usable machine.
func (c Config) Validate() error {
	switch {
	case c.BaseFrequencyHz < 2:
		return fmt.Errorf("%w: base_frequency_hz %d", ErrInvalidConfig, c.BaseFrequencyHz)
	case c.MaxDuty <= 0 || c.MaxDuty > 255:
		return fmt.Errorf("%w: max_duty %d", ErrInvalidConfig, c.MaxDuty)
	case c.StepsPerRevolution <= 0:
		return fmt.Errorf("%w: steps_per_revolution %d", ErrInvalidConfig, c.StepsPerRevolution)
	case c.ElectrodeDiameter <= 0:
		return fmt.Errorf("%w: electrode_diameter_mm %f", ErrInvalidConfig, c.ElectrodeDiameter)
	case c.InitialFeedRate <= 0:
		return fmt.Errorf("%w: initial_feed_rate_mm_s %f", ErrInvalidConfig, c.InitialFeedRate)
	case c.InitialBurnPulse <= 0 || c.InitialBurnPulse >= 1:
		return fmt.Errorf("%w: initial_burn_pulse %f not in (0,1)", ErrInvalidConfig, c.InitialBurnPulse)
	case c.MinFeedRate <= 0:
		return fmt.Errorf("%w: min_feed_rate_mm_s %f", ErrInvalidConfig, c.MinFeedRate)
	case c.MaxSweepSteps <= 0:
		return fmt.Errorf("%w: max_sweep_steps %d", ErrInvalidConfig, c.MaxSweepSteps)
	case c.MaxArcAttempts <= 0:
		return fmt.Errorf("%w: max_arc_attempts %d", ErrInvalidConfig, c.MaxArcAttempts)
	case c.MaxSaturatedSamples <= 0:
		return fmt.Errorf("%w: max_saturated_samples %d", ErrInvalidConfig, c.MaxSaturatedSamples)
	case c.ArcLossSamples < 0:
		return fmt.Errorf("%w: arc_loss_samples %d", ErrInvalidConfig, c.ArcLossSamples)
	}
	if c.BurnPulseRange.Lo <= 0 || c.BurnPulseRange.Hi >= 1 {
		return fmt.Errorf("%w: burn_pulse_range must lie inside (0,1)", ErrInvalidConfig)
	}
	if c.FeedRateRange.Lo <= 0 {
		return fmt.Errorf("%w: feed_rate_range_mm_s must be positive", ErrInvalidConfig)
	}
	for name, r := range map[string]Range{
		"raw_input":                  c.RawInput,
		"voltage_range_v":            c.VoltageRange,
		"current_range_a":            c.CurrentRange,
		"feed_rate_range_mm_s":       c.FeedRateRange,
		"burn_pulse_range":           c.BurnPulseRange,
		"stabilizer_current_range_a": c.StabilizerRange,
		"stabilizer_duty_range":      c.StabilizerDuty,
	} {
		if r.Hi <= r.Lo {
			return fmt.Errorf("%w: %s empty (%g..%g)", ErrInvalidConfig, name, r.Lo, r.Hi)
		}
	}
	if c.StabilizerDuty.Lo < 0 || c.StabilizerDuty.Hi > float64(c.MaxDuty) {
		return fmt.Errorf("%w: stabilizer_duty_range outside 0..%d", ErrInvalidConfig, c.MaxDuty)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the file
// keep their defaults; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config bytes over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
