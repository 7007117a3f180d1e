package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.einride.tech/can"

	control "arc-weld-core/closed_loop/weld_control"
	"arc-weld-core/utils"
)

// Frame names the bridge expects in the CAN map.
const (
	feedbackFrame = "WELD_FEEDBACK"
	powerFrame    = "POWER_CMD"
	feederFrame   = "FEEDER_CMD"
)

var feedbackSignals = []string{"voltage_raw", "current_raw", "feed_rate_raw", "burn_pulse_raw", "enable", "sequence"}

var (
	// errNoFeedback is returned by ReadRaw before the first feedback frame.
	errNoFeedback = errors.New("no feedback frame received")
	// ErrFeedbackTimeout is returned by ReadRaw when no newer feedback frame
	// arrives within FreshTimeout.
	ErrFeedbackTimeout = errors.New("no fresh feedback frame")
)

// CANIOConfig tunes the bridge.
type CANIOConfig struct {
	StaleAfter   time.Duration // feedback older than this reads as enable low
	WriteTimeout time.Duration
	FreshTimeout time.Duration // longest ReadRaw waits for a newer frame
}

// DefaultCANIOConfig suits a 1 kHz I/O node.
func DefaultCANIOConfig() CANIOConfig {
	return CANIOConfig{
		StaleAfter:   100 * time.Millisecond,
		WriteTimeout: 20 * time.Millisecond,
		FreshTimeout: 100 * time.Millisecond,
	}
}

// feedback is the latest decoded WELD_FEEDBACK frame.
type feedback struct {
	raw      [4]int // indexed by control.AnalogChannel
	enable   bool
	sequence uint8
	at       time.Time
}

// CANIO implements the controller's hardware interfaces on a remote I/O node.
// Inputs are latched by Listen from WELD_FEEDBACK frames; every output call
// transmits the complete POWER_CMD or FEEDER_CMD state. Each channel read
// waits for a frame newer than the one that channel last returned, so a
// sweep samples the node's answer to its own frequency step.
type CANIO struct {
	ctx  context.Context
	bus  utils.CANBus
	cmap *utils.CANMap
	cfg  CANIOConfig
	log  *utils.Logger
	now  func() time.Time

	mu      sync.Mutex
	latest  feedback
	haveRx  bool
	stale   bool
	dropped uint64
	rxCount uint64
	readSeq [4]uint64     // rxCount at each channel's last read
	fresh   chan struct{} // closed and replaced on every latched frame

	duty    int
	freq    int
	forward bool
	step    bool
	edges   uint16
}

// NewCANIO builds a bridge over bus. ctx bounds every transmit.
func NewCANIO(ctx context.Context, bus utils.CANBus, cmap *utils.CANMap, cfg CANIOConfig, log *utils.Logger) (*CANIO, error) {
	if err := checkCANMap(cmap); err != nil {
		return nil, err
	}
	if cfg.StaleAfter <= 0 || cfg.WriteTimeout <= 0 || cfg.FreshTimeout <= 0 {
		return nil, fmt.Errorf("can io: stale_after, write_timeout and fresh_timeout must be positive")
	}
	return &CANIO{
		ctx:     ctx,
		bus:     bus,
		cmap:    cmap,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		fresh:   make(chan struct{}),
		forward: true,
	}, nil
}

// checkCANMap verifies cmap describes every frame and signal the bridge uses.
func checkCANMap(cmap *utils.CANMap) error {
	required := map[string][]string{
		feedbackFrame: feedbackSignals,
		powerFrame:    {"duty", "frequency_hz"},
		feederFrame:   {"step", "direction_fwd", "edge_count"},
	}
	for name, signals := range required {
		fd, err := cmap.FrameByName(name)
		if err != nil {
			return err
		}
		for _, s := range signals {
			if _, ok := fd.Signal(s); !ok {
				return fmt.Errorf("frame %s: missing signal %q", name, s)
			}
		}
	}
	return nil
}

// Hardware returns the bridge as the controller's collaborators.
func (c *CANIO) Hardware() control.Hardware {
	return control.Hardware{Analog: c, Enable: c, Power: c, Stepper: c, Clock: control.SleepClock{}}
}

// Listen latches feedback frames until ctx is done or the bus fails.
// Frames other than WELD_FEEDBACK are ignored.
func (c *CANIO) Listen(ctx context.Context) error {
	c.log.Debug("RX loop started")
	defer c.log.Debug("RX loop stopped")

	fd, err := c.cmap.FrameByName(feedbackFrame)
	if err != nil {
		return err
	}
	for {
		frame, err := c.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("can rx: %w", err)
		}
		if frame.ID != fd.ID {
			continue
		}
		if err := c.latch(frame); err != nil {
			c.log.Error("RX decode id=0x%X: %v", frame.ID, err)
			continue
		}
		if c.log.Enabled(utils.TRACE) {
			c.log.Trace("RX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
		}
	}
}

func (c *CANIO) latch(frame can.Frame) error {
	values, err := c.cmap.DecodeFrame(frame)
	if err != nil {
		return err
	}
	fb := feedback{
		raw: [4]int{
			control.ChannelVoltage:   int(values["voltage_raw"]),
			control.ChannelCurrent:   int(values["current_raw"]),
			control.ChannelFeedRate:  int(values["feed_rate_raw"]),
			control.ChannelBurnPulse: int(values["burn_pulse_raw"]),
		},
		enable:   values["enable"] != 0,
		sequence: uint8(values["sequence"]),
		at:       c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveRx {
		if gap := fb.sequence - c.latest.sequence - 1; gap != 0 {
			c.dropped += uint64(gap)
			c.log.Debug("RX sequence jump %d -> %d", c.latest.sequence, fb.sequence)
		}
	}
	c.latest = fb
	c.haveRx = true
	c.rxCount++
	close(c.fresh)
	c.fresh = make(chan struct{})
	return nil
}

// RxStats returns received and dropped feedback frame counts.
func (c *CANIO) RxStats() (received, dropped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rxCount, c.dropped
}

// ReadRaw returns ch from the first feedback frame newer than the one this
// channel last returned, waiting up to FreshTimeout for it.
func (c *CANIO) ReadRaw(ch control.AnalogChannel) (int, error) {
	if int(ch) < 0 || int(ch) >= len(c.readSeq) {
		return 0, fmt.Errorf("can io: no analog channel %v", ch)
	}

	var timeout <-chan time.Time
	for {
		c.mu.Lock()
		if !c.haveRx {
			c.mu.Unlock()
			return 0, errNoFeedback
		}
		if c.rxCount > c.readSeq[ch] {
			c.readSeq[ch] = c.rxCount
			v := c.latest.raw[ch]
			c.mu.Unlock()
			return v, nil
		}
		fresh := c.fresh
		c.mu.Unlock()

		if timeout == nil {
			timer := time.NewTimer(c.cfg.FreshTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-fresh:
		case <-timeout:
			return 0, fmt.Errorf("%w on %v after %v", ErrFeedbackTimeout, ch, c.cfg.FreshTimeout)
		case <-c.ctx.Done():
			return 0, c.ctx.Err()
		}
	}
}

// Enabled reads low until feedback arrives and whenever it goes stale, so a
// silent I/O node stops the weld.
func (c *CANIO) Enabled() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveRx {
		return false, nil
	}
	if age := c.now().Sub(c.latest.at); age > c.cfg.StaleAfter {
		if !c.stale {
			c.log.Warn("Feedback stale for %v, treating enable as low", age)
			c.stale = true
		}
		return false, nil
	}
	c.stale = false
	return c.latest.enable, nil
}

func (c *CANIO) SetFrequency(hz int) error {
	c.freq = hz
	return c.sendPower()
}

func (c *CANIO) SetDuty(duty int) error {
	c.duty = duty
	return c.sendPower()
}

func (c *CANIO) SetDirection(forward bool) error {
	c.forward = forward
	return c.sendFeeder()
}

func (c *CANIO) SetStep(high bool) error {
	if high && !c.step {
		c.edges++
	}
	c.step = high
	return c.sendFeeder()
}

func (c *CANIO) sendPower() error {
	return c.send(powerFrame, map[string]float64{
		"duty":         float64(c.duty),
		"frequency_hz": float64(c.freq),
	})
}

func (c *CANIO) sendFeeder() error {
	return c.send(feederFrame, map[string]float64{
		"step":          control.BoolToFloat(c.step),
		"direction_fwd": control.BoolToFloat(c.forward),
		"edge_count":    float64(c.edges),
	})
}

func (c *CANIO) send(name string, values map[string]float64) error {
	frame, err := c.cmap.EncodeFrame(name, values)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := c.bus.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("can tx %s: %w", name, err)
	}
	if c.log.Enabled(utils.TRACE) {
		c.log.Trace("TX %s id=0x%X data=% X", name, frame.ID, frame.Data[:frame.Length])
	}
	return nil
}
