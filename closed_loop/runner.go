package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"arc-weld-core/closed_loop/bench"
	control "arc-weld-core/closed_loop/weld_control"
	"arc-weld-core/utils"
)

const (
	BackendSim = "sim"
	BackendCAN = "can"
)

type RunnerConfig struct {
	Backend      string
	ConfigPath   string // empty uses control.DefaultConfig
	Interface    string
	MapPath      string
	ScenarioPath string
	Period       time.Duration // 0 runs the loop free
	Iterations   int           // 0 runs until cancelled, faulted or the scenario ends
	StatusEvery  time.Duration
	MetricsPath  string // empty disables the textfile
	MetricsEvery time.Duration

	// Bus overrides the SocketCAN connection of the can backend.
	Bus utils.CANBus
}

type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	weld    control.Config
	ctrl    *control.Controller
	metrics *utils.Metrics

	plant *bench.Plant // sim backend
	io    *CANIO       // can backend
	bus   utils.CANBus // owned when dialled here

	iterations uint64
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	weld := control.DefaultConfig()
	if cfg.ConfigPath != "" {
		var err error
		if weld, err = control.LoadConfig(cfg.ConfigPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = time.Second
	}
	if cfg.MetricsEvery <= 0 {
		cfg.MetricsEvery = 5 * time.Second
	}

	r := &Runner{cfg: cfg, log: log, weld: weld, metrics: utils.NewMetrics()}

	var hw control.Hardware
	switch cfg.Backend {
	case BackendSim:
		scen, err := bench.LoadScenario(cfg.ScenarioPath)
		if err != nil {
			return nil, fmt.Errorf("load scenario: %w", err)
		}
		r.plant = bench.NewPlant(&scen, weld)
		hw = r.plant.Hardware()
		log.Info("Bench plant: scenario=%s duration=%.2fs ignition=%d Hz",
			scen.Meta.Name, scen.Timing.DurationS, scen.Plant.IgnitionFrequencyHz)

	case BackendCAN:
		cmap, err := utils.LoadCANMap(cfg.MapPath)
		if err != nil {
			return nil, fmt.Errorf("load can map: %w", err)
		}
		bus := cfg.Bus
		if bus == nil {
			sock, err := utils.NewSocketCANBus(ctx, cfg.Interface)
			if err != nil {
				return nil, err
			}
			bus, r.bus = sock, sock
		}
		// Shutdown writes must still go out after ctx is cancelled.
		r.io, err = NewCANIO(context.WithoutCancel(ctx), bus, cmap, DefaultCANIOConfig(), log.Named("can"))
		if err != nil {
			r.Close()
			return nil, err
		}
		hw = r.io.Hardware()
		log.Info("CAN I/O node: iface=%s map=%s", cfg.Interface, cfg.MapPath)

	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", cfg.Backend, BackendSim, BackendCAN)
	}

	ctrl, err := control.NewController(weld, hw, log.Named("control"))
	if err != nil {
		r.Close()
		return nil, err
	}
	r.ctrl = ctrl
	return r, nil
}

func (r *Runner) Close() {
	if r.bus != nil {
		_ = r.bus.Close()
	}
}

// Metrics returns the runner's metric set.
func (r *Runner) Metrics() *utils.Metrics { return r.metrics }

// Controller returns the controller the runner drives.
func (r *Runner) Controller() *control.Controller { return r.ctrl }

// Run drives the controller until ctx is cancelled, the iteration limit or
// scenario end is reached, or the controller faults. The power output is
// forced safe on every exit path.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting loop: backend=%s period=%v iterations=%d base=%d Hz diameter=%.2f mm",
		r.cfg.Backend, r.cfg.Period, r.cfg.Iterations, r.weld.BaseFrequencyHz, r.weld.ElectrodeDiameter)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	rxErr := make(chan error, 1)
	if r.io != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.io.Listen(ctx); err != nil {
				rxErr <- err
			}
		}()
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	err := r.loop(ctx, rxErr)

	if sErr := r.ctrl.Shutdown(); sErr != nil {
		r.log.Critical("Safe shutdown failed: %v", sErr)
		err = errors.Join(err, sErr)
	}
	r.logStatus("Completed")
	r.flushMetrics()
	return err
}

func (r *Runner) loop(ctx context.Context, rxErr <-chan error) error {
	var tick <-chan time.Time
	if r.cfg.Period > 0 {
		ticker := time.NewTicker(r.cfg.Period)
		defer ticker.Stop()
		tick = ticker.C
	}

	lastStatus, lastFlush := time.Now(), time.Now()
	for r.cfg.Iterations <= 0 || r.iterations < uint64(r.cfg.Iterations) {
		if tick != nil {
			select {
			case <-ctx.Done():
				r.log.Warn("Context canceled; stopping loop")
				return ctx.Err()
			case err := <-rxErr:
				return err
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				r.log.Warn("Context canceled; stopping loop")
				return ctx.Err()
			case err := <-rxErr:
				return err
			default:
			}
		}
		if r.plant != nil && r.plant.Done() {
			r.log.Info("Scenario complete at t=%.3fs", r.plant.Elapsed().Seconds())
			return nil
		}

		rep, err := r.ctrl.Step(ctx)
		r.iterations++
		r.observe(rep)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			if control.IsFatal(err) {
				var fe *control.FaultError
				if errors.As(err, &fe) {
					r.metrics.Fault(string(fe.Kind))
				}
				return err
			}
			r.log.Warn("Iteration %d: %v", r.iterations, err)
		}

		now := time.Now()
		if now.Sub(lastStatus) >= r.cfg.StatusEvery {
			r.logStatus("Status")
			lastStatus = now
		}
		if now.Sub(lastFlush) >= r.cfg.MetricsEvery {
			r.flushMetrics()
			lastFlush = now
		}
	}
	r.log.Info("Iteration limit %d reached", r.cfg.Iterations)
	return nil
}

func (r *Runner) observe(rep control.Report) {
	st := rep.State
	s := utils.LoopSample{
		State:      rep.Run.String(),
		Arc:        st.Arc,
		Duty:       st.PWMDuty,
		FeedRate:   st.WireFeedRate,
		StepDelay:  st.StepDelay,
		ArcFreq:    st.ArcFreq,
		Voltage:    st.Voltage,
		Current:    st.Current,
		WireBurnt:  st.WireBurnt,
		FeedError:  st.WireFeedError,
		Swept:      rep.Swept,
		SweepSteps: rep.SweepSteps,
		ArcLost:    rep.ArcLost,
	}
	if rep.Swept {
		s.ArcResult = rep.ArcResult.String()
	}
	r.metrics.Observe(s)
}

func (r *Runner) logStatus(prefix string) {
	st := r.ctrl.Snapshot()
	r.log.Info("%s: iterations=%d state=%s arc=%v duty=%d feed=%.2f mm/s dir=%s delay=%d us V=%.2f I=%.2f",
		prefix, r.iterations, r.ctrl.RunState(), st.Arc, st.PWMDuty, st.WireFeedRate,
		st.Direction, st.StepDelay, st.Voltage, st.Current)
	if r.plant != nil {
		ps := r.plant.Stats()
		r.log.Info("%s: plant t=%.3fs steps=%d strikes=%d breaks=%d gap=%.2f mm",
			prefix, r.plant.Elapsed().Seconds(), ps.Steps, ps.Strikes, ps.Breaks, ps.GapMM)
	}
	if r.io != nil {
		rx, dropped := r.io.RxStats()
		r.log.Info("%s: feedback frames=%d dropped=%d", prefix, rx, dropped)
	}
}

func (r *Runner) flushMetrics() {
	if r.cfg.MetricsPath == "" {
		return
	}
	if err := r.metrics.WriteTextfile(r.cfg.MetricsPath); err != nil {
		r.log.Error("%v", err)
	}
}
