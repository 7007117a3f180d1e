package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"arc-weld-core/utils"
)

var rootCmd = &cobra.Command{
	Use:   "weldctl",
	Short: "Short-circuit arc welding controller",
	Long: `weldctl runs the arc welding control loop against a simulated bench
plant or a SocketCAN I/O node, and checks configuration files.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop",
	RunE:  runLoop,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Weld config YAML (defaults built in when empty)")
	rootCmd.PersistentFlags().String("log", "info", "trace|debug|info|warn|error|critical")

	f := runCmd.Flags()
	f.String("backend", BackendSim, "sim|can")
	f.String("iface", "vcan0", "SocketCAN interface name")
	f.String("can-map", "config/can/weld_can_map.csv", "Path to the CAN signal map")
	f.String("scenario", "config/bench/steady_bead.json", "Bench scenario JSON (sim backend)")
	f.Duration("period", 0, "Loop period; 0 runs free")
	f.Int("iterations", 0, "Stop after this many iterations; 0 runs until done")
	f.Duration("status-every", 0, "Status log interval (default 1s)")
	f.String("log-file", "weldctl.log", "Log file; empty logs to stdout only")
	f.String("metrics-file", "", "Prometheus textfile to write; empty disables")
	f.Duration("metrics-every", 0, "Metrics textfile interval (default 5s)")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLoop(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	logLevel, _ := flags.GetString("log")
	logFile, _ := flags.GetString("log-file")

	log, err := openLogger(logFile, utils.ParseLevel(logLevel))
	if err != nil {
		return err
	}
	defer log.Close()

	cfg := RunnerConfig{ConfigPath: configPath}
	cfg.Backend, _ = flags.GetString("backend")
	cfg.Interface, _ = flags.GetString("iface")
	cfg.MapPath, _ = flags.GetString("can-map")
	cfg.ScenarioPath, _ = flags.GetString("scenario")
	cfg.Period, _ = flags.GetDuration("period")
	cfg.Iterations, _ = flags.GetInt("iterations")
	cfg.StatusEvery, _ = flags.GetDuration("status-every")
	cfg.MetricsPath, _ = flags.GetString("metrics-file")
	cfg.MetricsEvery, _ = flags.GetDuration("metrics-every")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log.Named("runner"))
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return err
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		return err
	}
	return nil
}

func openLogger(path string, level utils.LogLevel) (*utils.Logger, error) {
	if path == "" {
		return utils.NewLogger(os.Stdout, level), nil
	}
	log, err := utils.NewFileLogger(path, level, true)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return log, nil
}
