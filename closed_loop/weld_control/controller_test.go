package control

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, cfg Config, io *fakeIO) *Controller {
	t.Helper()
	c, err := NewController(cfg, io.hardware(), nil)
	require.NoError(t, err)
	return c
}

func TestNewControllerRejectsMissingHardware(t *testing.T) {
	io := newFakeIO()
	hw := io.hardware()
	hw.Clock = nil
	_, err := NewController(DefaultConfig(), hw, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStepEnableLowForcesSafeOutputRegardlessOfState(t *testing.T) {
	cfg := DefaultConfig()
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4), rawVolts(20)).
		script(ChannelCurrent, 0, rawAmps(80))
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	_, err := c.Step(ctx)
	require.NoError(t, err)
	require.True(t, c.Snapshot().Arc)
	require.NotZero(t, io.lastDuty())

	io.enable = []bool{false}
	rep, err := c.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stopped, rep.Run)
	assert.Equal(t, 0, io.lastDuty())
	assert.False(t, io.lastStep())
	assert.Equal(t, 0, rep.State.PWMDuty)
}

func TestStepStrikesArcAndStabilizesWithinOneIteration(t *testing.T) {
	cfg := DefaultConfig()
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4)).
		script(ChannelCurrent, 0, 0, 0, 0, rawAmps(15))
	c := newTestController(t, cfg, io)

	rep, err := c.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Running, rep.Run)
	assert.True(t, rep.Swept)
	assert.Equal(t, ArcEstablished, rep.ArcResult)
	assert.Equal(t, 4, rep.SweepSteps)
	assert.True(t, rep.State.Arc)
	assert.True(t, rep.State.Contact)

	want := ScaleTrunc(15.0, 10, 200, 1, 255)
	assert.Equal(t, 7, want)
	assert.Equal(t, want, rep.State.PWMDuty)
	assert.Equal(t, want, io.lastDuty())
	assert.True(t, rep.State.Pulse, "first arcing iteration enters the burn phase")
	assert.Equal(t, []bool{true, false}, io.steps)
	assert.Equal(t, StepDelay(rep.State.WireFeedRate, 200), rep.State.StepDelay)
}

func TestStepPipelineAlternatesPhasesWhileArcing(t *testing.T) {
	cfg := DefaultConfig()
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4), rawVolts(20)).
		script(ChannelCurrent, rawAmps(60))
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	var pulses []bool
	for i := 0; i < 6; i++ {
		rep, err := c.Step(ctx)
		require.NoError(t, err)
		pulses = append(pulses, rep.State.Pulse)
		assert.Positive(t, rep.State.WireFeedRate)
		assert.Equal(t, StepDelay(rep.State.WireFeedRate, 200), rep.State.StepDelay)
		assert.NotEqual(t, CorrectionNone, rep.Correction)
	}
	assert.Equal(t, []bool{true, false, true, false, true, false}, pulses)
	assert.Len(t, io.steps, 12)
}

func TestStepArcTimeoutRetriesThenFaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSweepSteps = 20
	cfg.MaxArcAttempts = 2
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4)).
		script(ChannelCurrent, 0)
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	rep, err := c.Step(ctx)
	require.ErrorIs(t, err, ErrArcInitiationFailed)
	assert.False(t, IsFatal(err))
	assert.Equal(t, ArcTimedOut, rep.ArcResult)
	assert.Equal(t, Running, rep.Run)
	assert.Equal(t, 0, io.lastDuty())
	assert.False(t, io.lastStep())

	rep, err = c.Step(ctx)
	require.ErrorIs(t, err, ErrArcInitiationFailed)
	assert.True(t, IsFatal(err))
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FaultArcRetries, fe.Kind)
	assert.Equal(t, Faulted, rep.Run)
	assert.Equal(t, 0, io.lastDuty())

	n := len(io.freqs)
	_, err = c.Step(ctx)
	require.ErrorIs(t, err, ErrFaulted)
	assert.Len(t, io.freqs, n, "a faulted controller does not sweep")
	assert.Equal(t, 0, io.lastDuty())
}

func TestStepSuccessfulStrikeResetsArcAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSweepSteps = 5
	cfg.MaxArcAttempts = 2
	cfg.ArcLossSamples = 1
	io := newFakeIO().script(ChannelVoltage, rawVolts(0.4))
	// timeout, strike, lose, timeout: never two timeouts in a row
	io.script(ChannelCurrent, append(append(repeat(0, 6), 0, rawAmps(50)), repeat(0, 20)...)...)
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	_, err := c.Step(ctx)
	require.ErrorIs(t, err, ErrArcInitiationFailed)
	rep, err := c.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, ArcEstablished, rep.ArcResult)
	rep, err = c.Step(ctx)
	require.NoError(t, err)
	require.True(t, rep.ArcLost)
	_, err = c.Step(ctx)
	require.ErrorIs(t, err, ErrArcInitiationFailed)
	assert.False(t, IsFatal(err))
}

func TestStepImplausibleFeedbackZeroesPowerBeforeReporting(t *testing.T) {
	cfg := DefaultConfig()
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(20)).
		script(ChannelCurrent, 2048)
	c := newTestController(t, cfg, io)

	rep, err := c.Step(context.Background())
	require.ErrorIs(t, err, ErrFeedbackImplausible)
	assert.True(t, IsFatal(err))
	assert.Equal(t, Faulted, rep.Run)
	assert.Equal(t, []int{0}, io.duties)
	assert.False(t, io.lastStep())
	assert.ErrorIs(t, c.Fault(), ErrFeedbackImplausible)

	io.enable = []bool{false}
	_, err = c.Step(context.Background())
	assert.ErrorIs(t, err, ErrFaulted, "a fault stays latched through enable low")
}

func TestStepEnableReadErrorFaults(t *testing.T) {
	io := newFakeIO()
	c := newTestController(t, DefaultConfig(), io)
	c.hw.Enable = enableFunc(func() (bool, error) { return false, errors.New("gpio gone") })

	_, err := c.Step(context.Background())
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FaultHardware, fe.Kind)
	assert.Equal(t, Faulted, c.RunState())
	assert.Equal(t, 0, io.lastDuty())
}

func TestStepFaultedLogsFailedSafeOutput(t *testing.T) {
	io := newFakeIO()
	log := &recordingLogger{}
	c, err := NewController(DefaultConfig(), io.hardware(), log)
	require.NoError(t, err)
	c.hw.Enable = enableFunc(func() (bool, error) { return false, errors.New("gpio gone") })

	_, err = c.Step(context.Background())
	require.Error(t, err)
	require.Equal(t, Faulted, c.RunState())

	io.dutyErr = errors.New("power stage not answering")
	log.critical = nil
	_, err = c.Step(context.Background())
	require.ErrorIs(t, err, ErrFaulted)
	require.Len(t, log.critical, 1)
	assert.Contains(t, log.critical[0], "power stage not answering")
}

// The arc flag used to be set once and never cleared; a broken arc was
// never re-struck. With ArcLossSamples > 0 the loss is an explicit
// transition and the next contact strikes again.
func TestStepArcLossReinitiatesOnNextContact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArcLossSamples = 2
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4), rawVolts(20), rawVolts(20), rawVolts(20), rawVolts(0.4)).
		script(ChannelCurrent, rawAmps(40), rawAmps(40), rawAmps(40), 0, 0, rawAmps(40))
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	rep, err := c.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, ArcEstablished, rep.ArcResult)

	_, err = c.Step(ctx)
	require.NoError(t, err)
	rep, err = c.Step(ctx)
	require.NoError(t, err)
	assert.True(t, rep.State.Arc)
	rep, err = c.Step(ctx)
	require.NoError(t, err)
	assert.True(t, rep.ArcLost)
	assert.False(t, rep.State.Arc)
	assert.Equal(t, 0, io.lastDuty())

	rep, err = c.Step(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Swept)
	assert.Equal(t, ArcEstablished, rep.ArcResult)
}

func TestStepLatchedArcSurvivesCurrentLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArcLossSamples = 0
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4), rawVolts(20)).
		script(ChannelCurrent, rawAmps(40), rawAmps(40), 0)
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rep, err := c.Step(ctx)
		require.NoError(t, err)
		assert.True(t, rep.State.Arc)
		assert.False(t, rep.ArcLost)
	}
}

func TestStepResumesWithPreviousStateAfterRestart(t *testing.T) {
	cfg := DefaultConfig()
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4), rawVolts(20)).
		script(ChannelCurrent, rawAmps(60))
	c := newTestController(t, cfg, io)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Step(ctx)
		require.NoError(t, err)
	}
	before := c.Snapshot()

	io.enable = []bool{false, false, true}
	for i := 0; i < 2; i++ {
		rep, err := c.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stopped, rep.Run)
	}
	stopped := c.Snapshot()
	assert.Equal(t, before.WireFeedRate, stopped.WireFeedRate)
	assert.Equal(t, before.Pulse, stopped.Pulse)
	assert.True(t, stopped.Arc)

	rep, err := c.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Running, rep.Run)
	assert.False(t, rep.Swept, "resume does not re-strike a seated arc")
	assert.Equal(t, !before.Pulse, rep.State.Pulse)
}

func TestShutdownZeroesOutputAndKeepsFault(t *testing.T) {
	cfg := DefaultConfig()
	io := newFakeIO().
		script(ChannelVoltage, rawVolts(0.4)).
		script(ChannelCurrent, rawAmps(80))
	c := newTestController(t, cfg, io)

	_, err := c.Step(context.Background())
	require.NoError(t, err)
	require.NotZero(t, io.lastDuty())

	require.NoError(t, c.Shutdown())
	assert.Equal(t, Stopped, c.RunState())
	assert.Equal(t, 0, io.lastDuty())
	assert.False(t, io.lastStep())

	io.script(ChannelCurrent, 1100)
	_, err = c.Step(context.Background())
	require.Error(t, err)
	require.NoError(t, c.Shutdown())
	assert.Equal(t, Faulted, c.RunState())
}

type enableFunc func() (bool, error)

func (f enableFunc) Enabled() (bool, error) { return f() }

// recordingLogger keeps Critical lines and drops the rest.
type recordingLogger struct {
	nopLogger
	critical []string
}

func (l *recordingLogger) Critical(msg string, args ...any) {
	l.critical = append(l.critical, fmt.Sprintf(msg, args...))
}
